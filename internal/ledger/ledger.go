package ledger

import (
	"context"

	"github.com/roach88/qofcore/internal/qof"
)

// Entity type tags.
const (
	TypeAccount     = "Account"
	TypeTransaction = "Trans"
	TypeSplit       = "Split"
	TypeCustomer    = "gncCustomer"
)

// commitEdit closes one edit level of e and, when it was the outermost,
// runs the backend commit. onDone runs after a successful commit that
// keeps the record; onFree after one that destroys it.
func commitEdit(ctx context.Context, e qof.Entity, onDone, onFree func()) error {
	inst := e.Inst()
	if !inst.CommitEdit() {
		return nil
	}
	book := inst.Book()

	code := qof.ErrBackendNoErr
	inst.CommitEditPart2(ctx,
		func(_ qof.Entity, c qof.ErrorCode) {
			code = c
		},
		func(ent qof.Entity) {
			if onDone != nil {
				onDone()
			}
			book.Notify(qof.EventModify, ent)
		},
		func(ent qof.Entity) {
			if onFree != nil {
				onFree()
			}
			book.Notify(qof.EventDestroy, ent)
		},
	)
	if code != qof.ErrBackendNoErr {
		return qof.NewBackendError(code, "ledger: commit "+inst.Type(), nil)
	}
	return nil
}

// destroy marks e for deletion inside its own edit bracket and commits.
func destroy(ctx context.Context, e qof.Entity, onFree func()) error {
	inst := e.Inst()
	inst.BeginEdit(ctx)
	inst.SetDestroying()
	return commitEdit(ctx, e, nil, onFree)
}
