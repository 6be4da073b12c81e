package qof

import "context"

// Backend is the contract every persistence backend satisfies. The hooks
// are optional interfaces discovered by type assertion; a backend that
// implements none of them still carries the error channel.
type Backend interface {
	// LastError returns the pending error code and clears it.
	LastError() ErrorCode

	// SetError records code unless an earlier error is still pending.
	SetError(code ErrorCode)
}

// BeginHook is implemented by backends that act when an entity's outermost
// edit starts (taking a row lock, for example).
type BeginHook interface {
	RunBegin(ctx context.Context, e Entity)
}

// CommitHook is implemented by backends that persist entities. Failures are
// reported through the error channel, not a return value.
type CommitHook interface {
	RunCommit(ctx context.Context, e Entity)
}

// Loader is implemented by backends that can populate a book.
type Loader interface {
	Load(ctx context.Context, book *Book) error
}

// Syncer is implemented by backends that can write a whole book at once.
type Syncer interface {
	Sync(ctx context.Context, book *Book) error
}

// ErrorChannel is an embeddable implementation of the Backend error slot.
// Only the earliest error is kept until it is read.
type ErrorChannel struct {
	last ErrorCode
}

// LastError returns the pending error code and clears it.
func (c *ErrorChannel) LastError() ErrorCode {
	code := c.last
	c.last = ErrBackendNoErr
	return code
}

// SetError records code unless an earlier error is still pending.
func (c *ErrorChannel) SetError(code ErrorCode) {
	if c.last != ErrBackendNoErr {
		return
	}
	c.last = code
}

// Peek returns the pending error code without clearing it.
func (c *ErrorChannel) Peek() ErrorCode {
	return c.last
}
