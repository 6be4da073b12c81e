// Package qof implements the entity core: identity registries, the entity
// instance with its nested begin/commit edit protocol, the book that owns
// registries, and the contract persistence backends implement.
//
// A record type embeds Instance and wraps every mutation in an edit
// bracket:
//
//	acct.BeginEdit(ctx)
//	acct.SetName("Cash") // calls Instance.Touch
//	if acct.CommitEdit() {
//		acct.CommitEditPart2(ctx, onError, onDone, onFree)
//	}
//
// Backends report commit failures through their error channel rather than
// a return value; CommitEditPart2 reads the channel and hands the code to
// onError.
//
// Nothing in this package is safe for concurrent use. A book and all of its
// entities belong to one goroutine.
package qof
