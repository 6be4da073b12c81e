package ledger

import (
	"context"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/qof"
)

// Customer is a business party invoices are issued to.
type Customer struct {
	qof.Instance

	id       string
	name     string
	notes    string
	currency string
	active   bool
	addr     *Address
}

// Address is owned by a Customer and saved with it. It has its own dirty
// flag, cleared when the owner commits.
type Address struct {
	owner *Customer
	dirty bool

	name  string
	addr1 string
	addr2 string
	phone string
	email string
}

func allocCustomer(book *qof.Book) *Customer {
	c := &Customer{active: true}
	c.addr = &Address{owner: c}
	c.Init(c, TypeCustomer, book)
	return c
}

// NewCustomer creates an active customer with an empty address.
func NewCustomer(book *qof.Book) *Customer {
	c := allocCustomer(book)
	book.Notify(qof.EventCreate, c)
	return c
}

// LookupCustomer finds a customer by GUID.
func LookupCustomer(book *qof.Book, g guid.GUID) *Customer {
	e, ok := book.Lookup(TypeCustomer, g)
	if !ok {
		return nil
	}
	return e.(*Customer)
}

func (c *Customer) ID() string       { return c.id }
func (c *Customer) Name() string     { return c.name }
func (c *Customer) Notes() string    { return c.notes }
func (c *Customer) Currency() string { return c.currency }
func (c *Customer) Active() bool     { return c.active }
func (c *Customer) Address() *Address {
	return c.addr
}

func (c *Customer) SetID(s string) {
	c.id = s
	c.Touch()
}

func (c *Customer) SetName(s string) {
	c.name = s
	c.Touch()
}

func (c *Customer) SetNotes(s string) {
	c.notes = s
	c.Touch()
}

func (c *Customer) SetCurrency(s string) {
	c.currency = s
	c.Touch()
}

func (c *Customer) SetActive(b bool) {
	c.active = b
	c.Touch()
}

// IsDirty reports unsaved changes to the customer or its address.
func (c *Customer) IsDirty() bool {
	return c.Instance.IsDirty() || c.addr.dirty
}

// CommitEdit closes one edit level and commits the outermost one. A
// successful commit also clears the address.
func (c *Customer) CommitEdit(ctx context.Context) error {
	return commitEdit(ctx, c, c.addr.clearDirty, nil)
}

// Destroy deletes the customer.
func (c *Customer) Destroy(ctx context.Context) error {
	return destroy(ctx, c, nil)
}

func (a *Address) Name() string  { return a.name }
func (a *Address) Addr1() string { return a.addr1 }
func (a *Address) Addr2() string { return a.addr2 }
func (a *Address) Phone() string { return a.phone }
func (a *Address) Email() string { return a.email }

// IsDirty reports whether the address changed since its owner last
// committed.
func (a *Address) IsDirty() bool { return a.dirty }

func (a *Address) clearDirty() { a.dirty = false }

func (a *Address) mark() {
	a.dirty = true
	a.owner.Touch()
}

func (a *Address) SetName(s string) {
	a.name = s
	a.mark()
}

func (a *Address) SetAddr1(s string) {
	a.addr1 = s
	a.mark()
}

func (a *Address) SetAddr2(s string) {
	a.addr2 = s
	a.mark()
}

func (a *Address) SetPhone(s string) {
	a.phone = s
	a.mark()
}

func (a *Address) SetEmail(s string) {
	a.email = s
	a.mark()
}
