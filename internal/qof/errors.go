package qof

import (
	"errors"
	"fmt"
)

// ErrorCode is the flat enumeration of persistence errors. Codes are stable
// small integers grouped by subsystem so callers can branch on the numeric
// range.
type ErrorCode int

// Generic backend errors.
const (
	ErrBackendNoErr       ErrorCode = iota // no error
	ErrBackendNoBackend                    // book has no backend
	ErrBackendBadURL                       // cannot parse the book URI
	ErrBackendNoSuchDB                     // named database does not exist
	ErrBackendCantConnect                  // bad credentials or network failure
	ErrBackendConnLost                     // lost connection to server
	ErrBackendLocked                       // in use by another user
	ErrBackendReadonly                     // cannot write to file or database
	ErrBackendTooNew                       // data version newer than we can read
	ErrBackendDataCorrupt                  // stored data is corrupt
	ErrBackendServerErr                    // error in response from server
	ErrBackendAlloc                        // allocation failure
	ErrBackendPerm                         // logged in but lacking permissions
	ErrBackendModified                     // object modified by another writer
	ErrBackendModDestroy                   // object destroyed by another writer
	ErrBackendMisc                         // undetermined error
)

// File I/O errors.
const (
	ErrFileBadRead ErrorCode = 1000 + iota
	ErrFileEmpty
	ErrFileLockErr
	ErrFileNotFound
	ErrFileTooOld
	ErrFileUnknownType
	ErrFileParse
	ErrFileBackup
)

// Network errors.
const (
	ErrNetShortRead ErrorCode = 2000 + iota
	ErrNetWrongContentType
	ErrNetNotBook
)

// SQL errors.
const (
	ErrSQLMissingData ErrorCode = 3000 + iota
	ErrSQLDBTooOld
	ErrSQLDBBusy
)

// Remote procedure errors.
const (
	ErrRPCHostUnknown ErrorCode = 4000 + iota
	ErrRPCCantBind
	ErrRPCCantAccept
	ErrRPCNoConnection
	ErrRPCBadVersion
	ErrRPCFailed
	ErrRPCNotAdded
)

// ErrorCategory names the subsystem an ErrorCode belongs to.
type ErrorCategory string

const (
	CategoryBackend ErrorCategory = "backend"
	CategoryFile    ErrorCategory = "file"
	CategoryNetwork ErrorCategory = "network"
	CategorySQL     ErrorCategory = "sql"
	CategoryRPC     ErrorCategory = "rpc"
	CategoryUnknown ErrorCategory = "unknown"
)

// Category returns the subsystem of c, decided by numeric range.
func (c ErrorCode) Category() ErrorCategory {
	switch {
	case c >= 0 && c < 1000:
		return CategoryBackend
	case c >= 1000 && c < 2000:
		return CategoryFile
	case c >= 2000 && c < 3000:
		return CategoryNetwork
	case c >= 3000 && c < 4000:
		return CategorySQL
	case c >= 4000 && c < 5000:
		return CategoryRPC
	}
	return CategoryUnknown
}

var codeNames = map[ErrorCode]string{
	ErrBackendNoErr:        "NO_ERR",
	ErrBackendNoBackend:    "NO_BACKEND",
	ErrBackendBadURL:       "BAD_URL",
	ErrBackendNoSuchDB:     "NO_SUCH_DB",
	ErrBackendCantConnect:  "CANT_CONNECT",
	ErrBackendConnLost:     "CONN_LOST",
	ErrBackendLocked:       "LOCKED",
	ErrBackendReadonly:     "READONLY",
	ErrBackendTooNew:       "TOO_NEW",
	ErrBackendDataCorrupt:  "DATA_CORRUPT",
	ErrBackendServerErr:    "SERVER_ERR",
	ErrBackendAlloc:        "ALLOC",
	ErrBackendPerm:         "PERM",
	ErrBackendModified:     "MODIFIED",
	ErrBackendModDestroy:   "MOD_DESTROY",
	ErrBackendMisc:         "MISC",
	ErrFileBadRead:         "FILE_BAD_READ",
	ErrFileEmpty:           "FILE_EMPTY",
	ErrFileLockErr:         "FILE_LOCKERR",
	ErrFileNotFound:        "FILE_NOT_FOUND",
	ErrFileTooOld:          "FILE_TOO_OLD",
	ErrFileUnknownType:     "UNKNOWN_FILE_TYPE",
	ErrFileParse:           "PARSE_ERROR",
	ErrFileBackup:          "BACKUP_ERROR",
	ErrNetShortRead:        "SHORT_READ",
	ErrNetWrongContentType: "WRONG_CONTENT_TYPE",
	ErrNetNotBook:          "NOT_BOOK",
	ErrSQLMissingData:      "MISSING_DATA",
	ErrSQLDBTooOld:         "DB_TOO_OLD",
	ErrSQLDBBusy:           "DB_BUSY",
	ErrRPCHostUnknown:      "HOST_UNK",
	ErrRPCCantBind:         "CANT_BIND",
	ErrRPCCantAccept:       "CANT_ACCEPT",
	ErrRPCNoConnection:     "NO_CONNECTION",
	ErrRPCBadVersion:       "BAD_VERSION",
	ErrRPCFailed:           "FAILED",
	ErrRPCNotAdded:         "NOT_ADDED",
}

// String returns "<category>:<NAME>", or the bare number for unknown codes.
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return string(c.Category()) + ":" + name
	}
	return fmt.Sprintf("%s:%d", c.Category(), int(c))
}

// BackendError is an error carrying an ErrorCode.
//
// Backends return BackendError from their Go-level methods (Load, Sync,
// statement execution) and push the Code onto their error channel when the
// failure happens inside a commit hook.
type BackendError struct {
	// Code identifies the failure.
	Code ErrorCode

	// Op names the failing operation, e.g. "sqlbe: insert splits".
	Op string

	// Err is the underlying driver or transport error, if any.
	Err error
}

// NewBackendError creates a BackendError.
func NewBackendError(code ErrorCode, op string, err error) *BackendError {
	return &BackendError{Code: code, Op: op, Err: err}
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode carried by err. A nil error maps to
// ErrBackendNoErr and an error without a code to ErrBackendMisc.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrBackendNoErr
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrBackendMisc
}

// IsBackendError reports whether err carries the given code.
func IsBackendError(err error, code ErrorCode) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
