package ledger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
)

// Reconcile states of a split.
const (
	NotReconciled = "n"
	Cleared       = "c"
	Reconciled    = "y"
)

// Transaction is a balanced set of splits posted on one date.
type Transaction struct {
	qof.Instance

	currency    string
	num         string
	description string
	postDate    time.Time
	enterDate   time.Time
	splits      []*Split
}

func allocTransaction(book *qof.Book) *Transaction {
	t := &Transaction{}
	t.Init(t, TypeTransaction, book)
	return t
}

// NewTransaction creates a transaction posted and entered now.
func NewTransaction(book *qof.Book) *Transaction {
	t := allocTransaction(book)
	now := book.Now()
	t.postDate = now
	t.enterDate = now
	book.Notify(qof.EventCreate, t)
	return t
}

// LookupTransaction finds a transaction by GUID.
func LookupTransaction(book *qof.Book, g guid.GUID) *Transaction {
	e, ok := book.Lookup(TypeTransaction, g)
	if !ok {
		return nil
	}
	return e.(*Transaction)
}

func (t *Transaction) Currency() string     { return t.currency }
func (t *Transaction) Num() string          { return t.num }
func (t *Transaction) Description() string  { return t.description }
func (t *Transaction) PostDate() time.Time  { return t.postDate }
func (t *Transaction) EnterDate() time.Time { return t.enterDate }

// Splits returns the transaction's splits in the order they were added.
func (t *Transaction) Splits() []*Split {
	return slices.Clone(t.splits)
}

func (t *Transaction) SetCurrency(s string) {
	t.currency = s
	t.Touch()
}

func (t *Transaction) SetNum(s string) {
	t.num = s
	t.Touch()
}

func (t *Transaction) SetDescription(s string) {
	t.description = s
	t.Touch()
}

func (t *Transaction) SetPostDate(d time.Time) {
	t.postDate = d
	t.Touch()
}

func (t *Transaction) SetEnterDate(d time.Time) {
	t.enterDate = d
	t.Touch()
}

// Imbalance sums the split values. A balanced transaction sums to zero.
func (t *Transaction) Imbalance() (numeric.Numeric, error) {
	sum := numeric.Zero
	for _, s := range t.splits {
		var err error
		sum, err = sum.Add(s.value)
		if err != nil {
			return numeric.Zero, fmt.Errorf("ledger: imbalance of %s: %w", t.GUID(), err)
		}
	}
	return sum, nil
}

// IsBalanced reports whether the split values sum to zero.
func (t *Transaction) IsBalanced() bool {
	sum, err := t.Imbalance()
	return err == nil && sum.IsZero()
}

// CommitEdit closes one edit level. The outermost one commits the
// transaction and then every new or changed split through its own
// instance.
func (t *Transaction) CommitEdit(ctx context.Context) error {
	outermost := t.EditLevel() == 1
	if err := commitEdit(ctx, t, nil, t.releaseSplits); err != nil {
		return err
	}
	if !outermost || t.Collection() == nil {
		return nil
	}
	for _, s := range t.Splits() {
		if !s.IsInfant() && !s.DirtyFlag() {
			continue
		}
		s.BeginEdit(ctx)
		if err := commitEdit(ctx, s, nil, nil); err != nil {
			return fmt.Errorf("ledger: commit split %s: %w", s.GUID(), err)
		}
	}
	return nil
}

// Destroy deletes the transaction together with its splits.
func (t *Transaction) Destroy(ctx context.Context) error {
	return destroy(ctx, t, t.releaseSplits)
}

func (t *Transaction) releaseSplits() {
	book := t.Book()
	for _, s := range t.splits {
		s.trans = nil
		s.Release()
		book.Notify(qof.EventDestroy, s)
	}
	t.splits = nil
}

func (t *Transaction) addSplit(s *Split) {
	if !slices.Contains(t.splits, s) {
		t.splits = append(t.splits, s)
	}
}

func (t *Transaction) removeSplit(s *Split) {
	t.splits = slices.DeleteFunc(t.splits, func(x *Split) bool { return x == s })
}

// Split is one leg of a transaction against one account.
type Split struct {
	qof.Instance

	trans         *Transaction
	account       *Account
	memo          string
	action        string
	reconcile     string
	reconcileDate time.Time
	value         numeric.Numeric
	amount        numeric.Numeric
}

func allocSplit(book *qof.Book) *Split {
	s := &Split{reconcile: NotReconciled, value: numeric.Zero, amount: numeric.Zero}
	s.Init(s, TypeSplit, book)
	return s
}

// NewSplit creates an unreconciled zero split in book.
func NewSplit(book *qof.Book) *Split {
	s := allocSplit(book)
	book.Notify(qof.EventCreate, s)
	return s
}

func (s *Split) Transaction() *Transaction { return s.trans }
func (s *Split) Account() *Account         { return s.account }
func (s *Split) Memo() string              { return s.memo }
func (s *Split) Action() string            { return s.action }
func (s *Split) Reconcile() string         { return s.reconcile }
func (s *Split) ReconcileDate() time.Time  { return s.reconcileDate }
func (s *Split) Value() numeric.Numeric    { return s.value }
func (s *Split) Amount() numeric.Numeric   { return s.amount }

// SetTransaction moves s into t. A nil t detaches it.
func (s *Split) SetTransaction(t *Transaction) {
	s.attach(t)
	s.Touch()
}

func (s *Split) attach(t *Transaction) {
	if s.trans == t {
		return
	}
	if s.trans != nil {
		s.trans.removeSplit(s)
	}
	s.trans = t
	if t != nil {
		t.addSplit(s)
	}
}

func (s *Split) SetAccount(a *Account) {
	s.account = a
	s.Touch()
}

func (s *Split) SetMemo(m string) {
	s.memo = m
	s.Touch()
}

func (s *Split) SetAction(a string) {
	s.action = a
	s.Touch()
}

// SetReconcile sets the reconcile state and stamps the reconcile date.
func (s *Split) SetReconcile(state string) {
	s.reconcile = state
	s.reconcileDate = s.Book().Now()
	s.Touch()
}

func (s *Split) SetValue(v numeric.Numeric) {
	s.value = v
	s.Touch()
}

func (s *Split) SetAmount(v numeric.Numeric) {
	s.amount = v
	s.Touch()
}

// CommitEdit closes one edit level and commits the outermost one.
func (s *Split) CommitEdit(ctx context.Context) error {
	return commitEdit(ctx, s, nil, nil)
}

// Destroy deletes the split and removes it from its transaction.
func (s *Split) Destroy(ctx context.Context) error {
	return destroy(ctx, s, func() {
		if s.trans != nil {
			s.trans.removeSplit(s)
			s.trans = nil
		}
	})
}
