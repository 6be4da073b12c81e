package ledger

import (
	"context"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/qof"
)

// Account types.
const (
	AccountAsset     = "ASSET"
	AccountBank      = "BANK"
	AccountEquity    = "EQUITY"
	AccountExpense   = "EXPENSE"
	AccountIncome    = "INCOME"
	AccountLiability = "LIABILITY"
)

// Account is a node of the chart of accounts.
type Account struct {
	qof.Instance

	name        string
	accountType string
	commodity   string
	code        string
	description string
	parent      *Account
}

func allocAccount(book *qof.Book) *Account {
	a := &Account{accountType: AccountAsset}
	a.Init(a, TypeAccount, book)
	return a
}

// NewAccount creates an asset account in book.
func NewAccount(book *qof.Book) *Account {
	a := allocAccount(book)
	book.Notify(qof.EventCreate, a)
	return a
}

// LookupAccount finds an account by GUID. It returns nil when book holds
// no such account.
func LookupAccount(book *qof.Book, g guid.GUID) *Account {
	e, ok := book.Lookup(TypeAccount, g)
	if !ok {
		return nil
	}
	return e.(*Account)
}

func (a *Account) Name() string        { return a.name }
func (a *Account) AccountType() string { return a.accountType }
func (a *Account) Commodity() string   { return a.commodity }
func (a *Account) Code() string        { return a.code }
func (a *Account) Description() string { return a.description }
func (a *Account) Parent() *Account    { return a.parent }

func (a *Account) SetName(s string) {
	a.name = s
	a.Touch()
}

func (a *Account) SetAccountType(s string) {
	a.accountType = s
	a.Touch()
}

func (a *Account) SetCommodity(s string) {
	a.commodity = s
	a.Touch()
}

func (a *Account) SetCode(s string) {
	a.code = s
	a.Touch()
}

func (a *Account) SetDescription(s string) {
	a.description = s
	a.Touch()
}

// SetParent moves a under p. A nil p makes a a top-level account.
func (a *Account) SetParent(p *Account) {
	a.parent = p
	a.Touch()
}

// FullName joins the names from the top-level ancestor down to a.
func (a *Account) FullName(sep string) string {
	if a.parent == nil {
		return a.name
	}
	return a.parent.FullName(sep) + sep + a.name
}

// CommitEdit closes one edit level and commits the outermost one.
func (a *Account) CommitEdit(ctx context.Context) error {
	return commitEdit(ctx, a, nil, nil)
}

// Destroy deletes the account.
func (a *Account) Destroy(ctx context.Context) error {
	return destroy(ctx, a, nil)
}
