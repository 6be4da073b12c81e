package sqlmap

import (
	"context"
	"fmt"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/qof"
)

// Book table layout. A database holds exactly one book row.
const (
	BooksTable   = "books"
	BooksVersion = 1
)

var bookColumns = []Column{
	{Name: "guid", Type: ColGUID, Size: guid.EncodingLength, Flags: PrimaryKey | NotNull},
}

// BookGUID returns the stored book GUID. ok is false when no book row
// exists yet.
func (e *Engine) BookGUID(ctx context.Context) (g guid.GUID, ok bool, err error) {
	rows, err := e.SelectAll(ctx, BooksTable, bookColumns)
	if err != nil {
		return guid.GUID{}, false, err
	}
	if len(rows) == 0 {
		return guid.GUID{}, false, nil
	}
	g, err = ToGUID(rows[0]["guid"])
	if err != nil {
		return guid.GUID{}, false, qof.NewBackendError(qof.ErrBackendDataCorrupt, "sqlmap: book guid", err)
	}
	return g, true, nil
}

// SaveBookGUID replaces the book row with g.
func (e *Engine) SaveBookGUID(ctx context.Context, g guid.GUID) error {
	if _, err := e.DeleteAll(ctx, BooksTable); err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (guid) VALUES (%s)", BooksTable, e.dialect.Placeholder(1))
	_, err := e.execStmt(ctx, "insert", BooksTable, q, g.String())
	return err
}
