// Package kvp provides the recursive key/value metadata frames attached to
// every entity.
//
// A Frame maps string keys to Values. Value is a sealed interface: only the
// variants declared here implement it. Frames nest (a *Frame is itself a
// Value) and lists may hold any variant, so a frame is a single-parent tree
// with no cycles.
//
// Key design constraints:
//   - Constructors copy their payload; Frame.Set takes ownership of the
//     value it is given.
//   - Accessors report a variant mismatch as ok == false, never as an error.
//   - Frames are allocated lazily: an empty frame holds no map.
//   - Keys are NFC-normalised at every entry point.
//
// Three external forms exist: the tagged tree (Encode/Decode) used by the
// file and RPC backends, and the flattened slot list (Flatten/Unflatten)
// persisted by the SQL engine.
package kvp
