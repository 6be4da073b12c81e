package rpcbe

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/logger"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// Server applies client commits to a book it owns. Commits run through the
// book's own backend, so a server over a SQL book persists every accepted
// change.
//
// Thread-safety: Server serialises all requests on one mutex.
type Server struct {
	mu   sync.Mutex
	book *qof.Book
	reg  *sqlmap.Registry
	log  *logger.Logger
}

// NewServer creates a server for book. reg decides which entity types
// clients may commit.
func NewServer(book *qof.Book, reg *sqlmap.Registry, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{book: book, reg: reg, log: log}
}

type committer interface {
	CommitEdit(ctx context.Context) error
}

type destroyer interface {
	Destroy(ctx context.Context) error
}

// Commit applies one entity record.
//
// The request's version must match the server's copy; a mismatch means
// another client committed first and fails with ErrBackendModified. An
// unknown entity with a nonzero version was destroyed by another client.
//
// Implements BackendServer interface.
func (s *Server) Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	typ := fields[fieldType].GetStringValue()
	op := fields[fieldOp].GetStringValue()
	version := int32(fields[fieldVersion].GetNumberValue())

	ot, ok := s.reg.Lookup(typ)
	if !ok {
		return nil, statusError(qof.ErrBackendDataCorrupt, fmt.Sprintf("unknown type %q", typ))
	}
	g, ok := guid.Parse(fields[fieldGUID].GetStringValue())
	if !ok || g.IsNull() {
		return nil, statusError(qof.ErrBackendDataCorrupt, "bad guid")
	}
	if op != OpCommit && op != OpDestroy {
		return nil, statusError(qof.ErrBackendDataCorrupt, fmt.Sprintf("unknown op %q", op))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, found := s.book.Lookup(typ, g)
	switch {
	case !found && op == OpDestroy:
		if version > 0 {
			return nil, statusError(qof.ErrBackendModDestroy, "already destroyed")
		}
		return versionReply(0, 0)
	case !found && version > 0:
		return nil, statusError(qof.ErrBackendModDestroy, "destroyed by another writer")
	case found && ent.Inst().Version() != version:
		return nil, statusError(qof.ErrBackendModified,
			fmt.Sprintf("version %d, server has %d", version, ent.Inst().Version()))
	case !found:
		ent = ot.New(s.book)
		ent.Inst().SetGUID(g)
	}

	var err error
	if op == OpDestroy {
		err = s.destroy(ctx, ent)
	} else {
		err = s.apply(ctx, ent, ot, fields[fieldRecord].GetStructValue())
	}
	if err != nil {
		if !found && ent.Inst().IsInfant() {
			ent.Inst().Release()
		}
		return nil, statusError(qof.CodeOf(err), err.Error())
	}

	inst := ent.Inst()
	next := version + 1
	check := checksum(req)
	inst.SetVersion(next)
	inst.SetVersionCheck(check)
	return versionReply(next, check)
}

func (s *Server) apply(ctx context.Context, ent qof.Entity, ot *sqlmap.ObjectTable, record *structpb.Struct) error {
	rec := record.AsMap()
	frame, err := sqlmap.RecordSlots(rec)
	if err != nil {
		return qof.NewBackendError(qof.ErrBackendDataCorrupt, "rpcbe: commit "+ot.Type, err)
	}

	inst := ent.Inst()
	inst.BeginEdit(ctx)
	if err := sqlmap.ApplyRecord(s.book, ent, ot.Columns, rec); err != nil {
		inst.CommitEdit()
		return qof.NewBackendError(qof.ErrBackendDataCorrupt, "rpcbe: commit "+ot.Type, err)
	}
	inst.SetSlots(frame)

	if c, ok := ent.(committer); ok {
		return c.CommitEdit(ctx)
	}
	return commitInstance(ctx, inst, nil)
}

func (s *Server) destroy(ctx context.Context, ent qof.Entity) error {
	if d, ok := ent.(destroyer); ok {
		return d.Destroy(ctx)
	}
	inst := ent.Inst()
	inst.BeginEdit(ctx)
	inst.SetDestroying()
	return commitInstance(ctx, inst, func(qof.Entity) { inst.Release() })
}

func commitInstance(ctx context.Context, inst *qof.Instance, onFree func(qof.Entity)) error {
	if !inst.CommitEdit() {
		return nil
	}
	code := qof.ErrBackendNoErr
	onError := func(_ qof.Entity, c qof.ErrorCode) { code = c }
	if !inst.CommitEditPart2(ctx, onError, nil, onFree) {
		return qof.NewBackendError(code, "rpcbe: commit "+inst.Type(), nil)
	}
	return nil
}

// Load returns every entity the server holds.
//
// Implements BackendServer interface.
func (s *Server) Load(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	objects := sqlmap.Snapshot(s.book, s.reg)
	bookID := s.book.GUID().String()
	tree := make(map[string]any, len(objects))
	for typ, recs := range objects {
		list := make([]any, len(recs))
		for i, rec := range recs {
			if g, ok := guid.Parse(sqlmap.ToString(rec[fieldGUID])); ok {
				if ent, ok := s.book.Lookup(typ, g); ok {
					rec[fieldRecordVersion] = int(ent.Inst().Version())
				}
			}
			list[i] = rec
		}
		tree[typ] = list
	}
	s.mu.Unlock()
	resp, err := structpb.NewStruct(map[string]any{
		fieldBook:    bookID,
		fieldObjects: tree,
	})
	if err != nil {
		return nil, statusError(qof.ErrBackendServerErr, err.Error())
	}
	return resp, nil
}

func versionReply(version int32, check uint32) (*structpb.Struct, error) {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldVersion:      structpb.NewNumberValue(float64(version)),
		fieldVersionCheck: structpb.NewNumberValue(float64(check)),
	}}, nil
}

func checksum(req *structpb.Struct) uint32 {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return 0
	}
	return crc32.ChecksumIEEE(data)
}
