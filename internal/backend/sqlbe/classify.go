package sqlbe

import (
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/qofcore/internal/qof"
)

// Classify maps a driver error onto a backend error code. Errors neither
// driver recognises map to ErrBackendServerErr.
func Classify(err error) qof.ErrorCode {
	if err == nil {
		return qof.ErrBackendNoErr
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return sqliteCode(liteErr.Code)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return postgresCode(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return qof.ErrBackendCantConnect
	}

	return qof.ErrBackendServerErr
}

func sqliteCode(code sqlite3.ErrNo) qof.ErrorCode {
	switch code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return qof.ErrBackendLocked
	case sqlite3.ErrReadonly:
		return qof.ErrBackendReadonly
	case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
		return qof.ErrBackendDataCorrupt
	case sqlite3.ErrPerm, sqlite3.ErrAuth:
		return qof.ErrBackendPerm
	case sqlite3.ErrCantOpen:
		return qof.ErrBackendCantConnect
	case sqlite3.ErrNomem:
		return qof.ErrBackendAlloc
	}
	return qof.ErrBackendServerErr
}

func postgresCode(sqlstate string) qof.ErrorCode {
	switch sqlstate {
	case "40001":
		return qof.ErrBackendModified
	case "42501":
		return qof.ErrBackendPerm
	case "55P03":
		return qof.ErrBackendLocked
	case "25006":
		return qof.ErrBackendReadonly
	case "3D000":
		return qof.ErrBackendNoSuchDB
	case "53100", "53200":
		return qof.ErrBackendAlloc
	}
	if strings.HasPrefix(sqlstate, "08") {
		return qof.ErrBackendConnLost
	}
	return qof.ErrBackendServerErr
}

// redact drops the password from a URL-style DSN. Other DSN forms are
// returned unchanged.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
