// Package sqlmap maps entities onto SQL tables through declarative column
// descriptors.
//
// Each entity type supplies an ObjectTable: a table name, a schema version
// and a []Column built with the generic constructors (GUIDCol, StringCol,
// IntCol, UintCol, NumericCol, TimestampCol, RefCol). The Engine derives
// everything else from those descriptors:
//
//   - schema creation, guarded by the versions table (a table is created
//     only while its recorded version is 0)
//   - statement choice on commit (delete, insert or update)
//   - row loading, resolving reference columns through the book's
//     registries
//   - metadata frames, flattened into the shared slots table
//   - batched loading with one IN (...) query per batch of keys
//
// Statement failures are returned as *qof.BackendError with a code chosen
// by the installed ErrorClassifier.
package sqlmap
