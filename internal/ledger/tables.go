package ledger

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/numeric"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// SQL table names.
const (
	AccountTable     = "accounts"
	CustomerTable    = "customers"
	TransactionTable = "transactions"
	SplitTable       = "splits"
)

const (
	maxNameLen    = 2048
	maxAddressLen = 1024
)

var accountColumns = []sqlmap.Column{
	sqlmap.GUIDCol("guid", sqlmap.PrimaryKey,
		func(a *Account) guid.GUID { return a.GUID() },
		func(a *Account, g guid.GUID) { a.SetGUID(g) }),
	sqlmap.StringCol("name", maxNameLen, sqlmap.NotNull,
		func(a *Account) string { return a.name },
		func(a *Account, s string) { a.name = s }),
	sqlmap.StringCol("account_type", maxNameLen, sqlmap.NotNull,
		func(a *Account) string { return a.accountType },
		func(a *Account, s string) { a.accountType = s }),
	sqlmap.StringCol("commodity", maxNameLen, 0,
		func(a *Account) string { return a.commodity },
		func(a *Account, s string) { a.commodity = s }),
	sqlmap.RefCol("parent_guid", TypeAccount, 0,
		func(a *Account) *Account { return a.parent },
		func(a *Account, p *Account) { a.parent = p }),
	sqlmap.StringCol("code", maxNameLen, 0,
		func(a *Account) string { return a.code },
		func(a *Account, s string) { a.code = s }),
	sqlmap.StringCol("description", maxNameLen, 0,
		func(a *Account) string { return a.description },
		func(a *Account, s string) { a.description = s }),
}

var customerColumns = []sqlmap.Column{
	sqlmap.GUIDCol("guid", sqlmap.PrimaryKey,
		func(c *Customer) guid.GUID { return c.GUID() },
		func(c *Customer, g guid.GUID) { c.SetGUID(g) }),
	sqlmap.StringCol("name", maxNameLen, sqlmap.NotNull,
		func(c *Customer) string { return c.name },
		func(c *Customer, s string) { c.name = s }),
	sqlmap.StringCol("id", maxNameLen, sqlmap.NotNull,
		func(c *Customer) string { return c.id },
		func(c *Customer, s string) { c.id = s }),
	sqlmap.StringCol("notes", maxNameLen, 0,
		func(c *Customer) string { return c.notes },
		func(c *Customer, s string) { c.notes = s }),
	sqlmap.IntCol("active", sqlmap.NotNull,
		func(c *Customer) int64 {
			if c.active {
				return 1
			}
			return 0
		},
		func(c *Customer, n int64) { c.active = n != 0 }),
	sqlmap.StringCol("currency", maxNameLen, 0,
		func(c *Customer) string { return c.currency },
		func(c *Customer, s string) { c.currency = s }),
	sqlmap.StringCol("addr_name", maxAddressLen, 0,
		func(c *Customer) string { return c.addr.name },
		func(c *Customer, s string) { c.addr.name = s }),
	sqlmap.StringCol("addr_addr1", maxAddressLen, 0,
		func(c *Customer) string { return c.addr.addr1 },
		func(c *Customer, s string) { c.addr.addr1 = s }),
	sqlmap.StringCol("addr_addr2", maxAddressLen, 0,
		func(c *Customer) string { return c.addr.addr2 },
		func(c *Customer, s string) { c.addr.addr2 = s }),
	sqlmap.StringCol("addr_phone", maxAddressLen, 0,
		func(c *Customer) string { return c.addr.phone },
		func(c *Customer, s string) { c.addr.phone = s }),
	sqlmap.StringCol("addr_email", maxAddressLen, 0,
		func(c *Customer) string { return c.addr.email },
		func(c *Customer, s string) { c.addr.email = s }),
}

var transactionColumns = []sqlmap.Column{
	sqlmap.GUIDCol("guid", sqlmap.PrimaryKey,
		func(t *Transaction) guid.GUID { return t.GUID() },
		func(t *Transaction, g guid.GUID) { t.SetGUID(g) }),
	sqlmap.StringCol("currency", maxNameLen, sqlmap.NotNull,
		func(t *Transaction) string { return t.currency },
		func(t *Transaction, s string) { t.currency = s }),
	sqlmap.StringCol("num", maxNameLen, sqlmap.NotNull,
		func(t *Transaction) string { return t.num },
		func(t *Transaction, s string) { t.num = s }),
	sqlmap.TimestampCol("post_date", sqlmap.NotNull,
		func(t *Transaction) time.Time { return t.postDate },
		func(t *Transaction, d time.Time) { t.postDate = d }),
	sqlmap.TimestampCol("enter_date", sqlmap.NotNull,
		func(t *Transaction) time.Time { return t.enterDate },
		func(t *Transaction, d time.Time) { t.enterDate = d }),
	sqlmap.StringCol("description", maxNameLen, 0,
		func(t *Transaction) string { return t.description },
		func(t *Transaction, s string) { t.description = s }),
}

var splitColumns = []sqlmap.Column{
	sqlmap.GUIDCol("guid", sqlmap.PrimaryKey,
		func(s *Split) guid.GUID { return s.GUID() },
		func(s *Split, g guid.GUID) { s.SetGUID(g) }),
	sqlmap.RefCol("tx_guid", TypeTransaction, sqlmap.NotNull,
		func(s *Split) *Transaction { return s.trans },
		func(s *Split, t *Transaction) { s.attach(t) }),
	sqlmap.RefCol("account_guid", TypeAccount, sqlmap.NotNull,
		func(s *Split) *Account { return s.account },
		func(s *Split, a *Account) { s.account = a }),
	sqlmap.StringCol("memo", maxNameLen, sqlmap.NotNull,
		func(s *Split) string { return s.memo },
		func(s *Split, m string) { s.memo = m }),
	sqlmap.StringCol("action", maxNameLen, sqlmap.NotNull,
		func(s *Split) string { return s.action },
		func(s *Split, a string) { s.action = a }),
	sqlmap.StringCol("reconcile_state", 1, sqlmap.NotNull,
		func(s *Split) string { return s.reconcile },
		func(s *Split, r string) { s.reconcile = r }),
	sqlmap.TimestampCol("reconcile_date", 0,
		func(s *Split) time.Time { return s.reconcileDate },
		func(s *Split, d time.Time) { s.reconcileDate = d }),
	sqlmap.NumericCol("value", sqlmap.NotNull,
		func(s *Split) numeric.Numeric { return s.value },
		func(s *Split, v numeric.Numeric) { s.value = v }),
	sqlmap.NumericCol("quantity", sqlmap.NotNull,
		func(s *Split) numeric.Numeric { return s.amount },
		func(s *Split, v numeric.Numeric) { s.amount = v }),
}

var accountTable = &sqlmap.ObjectTable{
	Type:    TypeAccount,
	Table:   AccountTable,
	Version: 1,
	Columns: accountColumns,
	New:     func(b *qof.Book) qof.Entity { return allocAccount(b) },
	Load:    loadAccounts,
}

var customerTable = &sqlmap.ObjectTable{
	Type:    TypeCustomer,
	Table:   CustomerTable,
	Version: 1,
	Columns: customerColumns,
	New:     func(b *qof.Book) qof.Entity { return allocCustomer(b) },
}

var transactionTable = &sqlmap.ObjectTable{
	Type:    TypeTransaction,
	Table:   TransactionTable,
	Version: 1,
	Columns: transactionColumns,
	Indexes: []sqlmap.Index{{Name: "tx_post_date_index", Columns: []string{"post_date"}}},
	New:     func(b *qof.Book) qof.Entity { return allocTransaction(b) },
	Commit:  saveTransaction,
	Load:    loadTransactions,
}

var splitTable = &sqlmap.ObjectTable{
	Type:    TypeSplit,
	Table:   SplitTable,
	Version: 1,
	Columns: splitColumns,
	Indexes: []sqlmap.Index{
		{Name: "splits_tx_guid_index", Columns: []string{"tx_guid"}},
		{Name: "splits_account_guid_index", Columns: []string{"account_guid"}},
	},
	New:   func(b *qof.Book) qof.Entity { return allocSplit(b) },
	Child: true,
}

// Registry returns the object tables of every ledger record, in load
// order: referenced types come before the types that reference them.
func Registry() *sqlmap.Registry {
	return sqlmap.NewRegistry().MustRegister(accountTable, customerTable, transactionTable, splitTable)
}

// saveTransaction writes the transaction row and slots. Deleting a
// transaction deletes its splits and their slots. A pristine database also
// gets the splits, since nothing else will write them.
func saveTransaction(ctx context.Context, e *sqlmap.Engine, ent qof.Entity) error {
	t := ent.(*Transaction)
	if err := e.CommitInstance(ctx, TransactionTable, t, transactionColumns); err != nil {
		return err
	}
	if t.IsDestroying() {
		for _, s := range t.splits {
			if err := e.DeleteSlots(ctx, s.GUID()); err != nil {
				return err
			}
		}
		return e.DeleteWhere(ctx, SplitTable, "tx_guid", t.GUID().String())
	}
	if e.IsPristine() {
		for _, s := range t.splits {
			if err := e.CommitInstance(ctx, SplitTable, s, splitColumns); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadTransactions loads every transaction, then all of their splits in
// one batched query.
func loadTransactions(ctx context.Context, e *sqlmap.Engine, book *qof.Book, ot *sqlmap.ObjectTable) error {
	txs, err := e.LoadAll(ctx, book, ot)
	if err != nil {
		return err
	}
	_, err = e.LoadChildren(ctx, book, splitTable, "tx_guid", txs)
	return err
}

// loadAccounts loads accounts parents first, so parent references resolve
// whatever order the rows come back in.
func loadAccounts(ctx context.Context, e *sqlmap.Engine, book *qof.Book, ot *sqlmap.ObjectTable) error {
	rows, err := e.SelectAll(ctx, ot.Table, ot.Columns)
	if err != nil {
		return err
	}
	ents, err := e.LoadRows(book, ot, parentsFirst(rows))
	if err != nil {
		return err
	}
	return e.LoadSlotsForList(ctx, ents)
}

func parentsFirst(rows []sqlmap.Row) []sqlmap.Row {
	parentOf := make(map[string]string, len(rows))
	for _, r := range rows {
		parentOf[sqlmap.ToString(r["guid"])] = sqlmap.ToString(r["parent_guid"])
	}
	depth := func(id string) int {
		d := 0
		for p := parentOf[id]; p != "" && d <= len(rows); p = parentOf[p] {
			d++
		}
		return d
	}
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b sqlmap.Row) int {
		return cmp.Compare(depth(sqlmap.ToString(a["guid"])), depth(sqlmap.ToString(b["guid"])))
	})
	return out
}
