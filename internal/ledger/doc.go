// Package ledger holds the accounting records persisted through qof:
// accounts, transactions with their splits, and customers with an owned
// address.
//
// Every record embeds qof.Instance and follows the edit protocol:
//
//	tx.BeginEdit(ctx)
//	tx.SetDescription("Rent")
//	if err := tx.CommitEdit(ctx); err != nil {
//		// the backend rejected the change; tx is still dirty
//	}
//
// A failed commit is not rolled back. The record keeps the unsaved values
// and stays dirty; the error carries the backend code.
//
// Registry returns the column tables the SQL engine maps these records
// through.
package ledger
