package rpcbe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/roach88/qofcore/internal/guid"
	"github.com/roach88/qofcore/internal/logger"
	"github.com/roach88/qofcore/internal/metrics"
	"github.com/roach88/qofcore/internal/qof"
	"github.com/roach88/qofcore/internal/sqlmap"
)

// DefaultTimeout bounds each request when the caller's context has no
// deadline.
const DefaultTimeout = 30 * time.Second

// Backend forwards commits to a remote Server.
type Backend struct {
	qof.ErrorChannel

	conn    *grpc.ClientConn
	reg     *sqlmap.Registry
	target  string
	timeout time.Duration
	dial    []grpc.DialOption

	logger  *logger.Logger
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithMetrics records commits and loads on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) { b.timeout = d }
}

// WithDialOptions adds gRPC dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(b *Backend) { b.dial = append(b.dial, opts...) }
}

// Dial creates a client for the server at target. The connection is
// established lazily on the first request.
func Dial(target string, reg *sqlmap.Registry, opts ...Option) (*Backend, error) {
	b := &Backend{
		reg:     reg,
		target:  target,
		timeout: DefaultTimeout,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.logger.BackendLogger("rpc", target)

	dial := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, b.dial...)
	conn, err := grpc.NewClient(target, dial...)
	if err != nil {
		return nil, qof.NewBackendError(qof.ErrRPCHostUnknown, "rpcbe: dial", err)
	}
	b.conn = conn
	return b, nil
}

// Close closes the connection.
func (b *Backend) Close() error {
	return b.conn.Close()
}

// Target returns the server address.
func (b *Backend) Target() string { return b.target }

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// RunCommit sends e's record to the server. On success the entity takes
// the server's new version.
//
// Implements qof.CommitHook interface.
func (b *Backend) RunCommit(ctx context.Context, e qof.Entity) {
	inst := e.Inst()
	op := OpCommit
	if inst.IsDestroying() {
		op = OpDestroy
	}

	start := time.Now()
	err := b.commit(ctx, e, op)
	elapsed := time.Since(start)

	b.metrics.RecordCommit(inst.Type(), op, elapsed, err)
	b.logger.LogCommit(inst.Type(), op, elapsed, err)
	if err != nil {
		b.SetError(qof.CodeOf(err))
	}
}

func (b *Backend) commit(ctx context.Context, e qof.Entity, op string) error {
	inst := e.Inst()
	ot, ok := b.reg.Lookup(inst.Type())
	if !ok {
		return qof.NewBackendError(qof.ErrRPCNotAdded, "rpcbe: commit",
			fmt.Errorf("type %q not registered", inst.Type()))
	}

	req, err := structpb.NewStruct(map[string]any{
		fieldType:    inst.Type(),
		fieldGUID:    inst.GUID().String(),
		fieldOp:      op,
		fieldVersion: int(inst.Version()),
		fieldRecord:  sqlmap.EntityRecord(e, ot),
	})
	if err != nil {
		return qof.NewBackendError(qof.ErrBackendDataCorrupt, "rpcbe: commit "+inst.Type(), err)
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	resp := new(structpb.Struct)
	if err := b.conn.Invoke(ctx, commitMethod, req, resp); err != nil {
		return qof.NewBackendError(CodeFromError(err), "rpcbe: commit "+inst.Type(), err)
	}

	fields := resp.GetFields()
	inst.SetVersion(int32(fields[fieldVersion].GetNumberValue()))
	inst.SetVersionCheck(uint32(fields[fieldVersionCheck].GetNumberValue()))
	return nil
}

// Load fetches every entity from the server into book.
//
// Implements qof.Loader interface.
func (b *Backend) Load(ctx context.Context, book *qof.Book) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	resp := new(structpb.Struct)
	if err := b.conn.Invoke(ctx, loadMethod, &structpb.Struct{}, resp); err != nil {
		return qof.NewBackendError(CodeFromError(err), "rpcbe: load", err)
	}

	tree := resp.AsMap()
	if g, ok := guid.Parse(sqlmap.ToString(tree[fieldBook])); ok {
		book.SetGUID(g)
	}
	objects, err := decodeObjects(tree[fieldObjects])
	if err != nil {
		return qof.NewBackendError(qof.ErrBackendDataCorrupt, "rpcbe: load", err)
	}

	counts, err := sqlmap.ApplySnapshot(book, b.reg, objects)
	if err != nil {
		return err
	}
	for typ, recs := range objects {
		for _, rec := range recs {
			v, ok := rec[fieldRecordVersion].(float64)
			if !ok {
				continue
			}
			g, _ := guid.Parse(sqlmap.ToString(rec[fieldGUID]))
			if ent, ok := book.Lookup(typ, g); ok && !ent.Inst().DirtyFlag() {
				ent.Inst().SetVersion(int32(v))
			}
		}
	}
	for typ, n := range counts {
		b.metrics.RecordLoad(typ, n)
		b.log.Debug().Str("type", typ).Int("count", n).Msg("loaded")
	}
	return nil
}

func decodeObjects(raw any) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any)
	if raw == nil {
		return out, nil
	}
	byType, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("objects are %T", raw)
	}
	for typ, list := range byType {
		items, ok := list.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: records are %T", typ, list)
		}
		for i, item := range items {
			rec, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s record %d is %T", typ, i, item)
			}
			out[typ] = append(out[typ], rec)
		}
	}
	return out, nil
}
