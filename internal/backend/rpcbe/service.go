// Package rpcbe is the remote persistence backend. A server process owns
// a book (usually loaded from a SQL or file backend) and accepts commits
// from clients over gRPC; the client side is a qof backend whose commit
// hook forwards each entity as a column record.
//
// Messages are google.protobuf.Struct values so the service needs no
// generated code. A commit request looks like
//
//	{type: "Account", guid: "...", op: "commit", version: 3,
//	 record: {guid: "...", name: "Checking", ..., slots: {...}}}
//
// and the reply carries the entity's new version. Load returns every
// entity the server holds, grouped by type tag.
package rpcbe

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/roach88/qofcore/internal/logger"
	"github.com/roach88/qofcore/internal/metrics"
	"github.com/roach88/qofcore/internal/qof"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "qof.rpc.Backend"

const (
	commitMethod = "/" + ServiceName + "/Commit"
	loadMethod   = "/" + ServiceName + "/Load"
)

// Commit operations.
const (
	OpCommit  = "commit"
	OpDestroy = "destroy"
)

// Request and reply field names.
const (
	fieldType         = "type"
	fieldGUID         = "guid"
	fieldOp           = "op"
	fieldVersion      = "version"
	fieldVersionCheck = "version_check"
	fieldRecord       = "record"
	fieldBook         = "book"
	fieldObjects      = "objects"
	fieldCode         = "qof_code"

	// fieldRecordVersion carries the server's version inside a loaded
	// record.
	fieldRecordVersion = "qof_version"
)

// BackendServer is the server side of the service.
type BackendServer interface {
	Commit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Load(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BackendServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Commit", Handler: commitHandler},
		{MethodName: "Load", Handler: loadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qof/rpc/backend.proto",
}

// RegisterBackendServer registers srv on s.
func RegisterBackendServer(s grpc.ServiceRegistrar, srv BackendServer) {
	s.RegisterService(&serviceDesc, srv)
}

func commitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Commit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: commitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BackendServer).Commit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func loadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BackendServer).Load(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: loadMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BackendServer).Load(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// UnaryInterceptor records metrics and logs every request.
func UnaryInterceptor(m *metrics.Metrics, log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		done := m.RPCStarted()
		defer done()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		m.RecordRPCRequest(info.FullMethod, status.Code(err).String(), duration)
		log.LogRPCRequest(info.FullMethod, duration, err)
		return resp, err
	}
}

// statusError converts a backend error code into a gRPC status carrying
// the exact code as a detail.
func statusError(code qof.ErrorCode, msg string) error {
	st := status.New(grpcCode(code), msg)
	detail, err := structpb.NewStruct(map[string]any{fieldCode: int(code)})
	if err != nil {
		return st.Err()
	}
	if withDetail, err := st.WithDetails(detail); err == nil {
		st = withDetail
	}
	return st.Err()
}

func grpcCode(code qof.ErrorCode) codes.Code {
	switch code {
	case qof.ErrBackendNoErr:
		return codes.OK
	case qof.ErrBackendModified:
		return codes.Aborted
	case qof.ErrBackendModDestroy:
		return codes.NotFound
	case qof.ErrBackendLocked:
		return codes.FailedPrecondition
	case qof.ErrBackendReadonly, qof.ErrBackendPerm:
		return codes.PermissionDenied
	case qof.ErrBackendDataCorrupt:
		return codes.InvalidArgument
	case qof.ErrBackendConnLost, qof.ErrBackendCantConnect:
		return codes.Unavailable
	case qof.ErrBackendAlloc:
		return codes.ResourceExhausted
	}
	return codes.Internal
}

// CodeFromError recovers the backend error code from an RPC error. The
// detail attached by the server wins; otherwise the gRPC status code is
// mapped.
func CodeFromError(err error) qof.ErrorCode {
	if err == nil {
		return qof.ErrBackendNoErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return qof.ErrRPCFailed
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if v, ok := s.GetFields()[fieldCode]; ok {
				return qof.ErrorCode(int(v.GetNumberValue()))
			}
		}
	}
	switch st.Code() {
	case codes.Unavailable:
		return qof.ErrBackendConnLost
	case codes.DeadlineExceeded, codes.Canceled:
		return qof.ErrRPCFailed
	case codes.PermissionDenied, codes.Unauthenticated:
		return qof.ErrBackendPerm
	case codes.FailedPrecondition:
		return qof.ErrBackendLocked
	case codes.Aborted:
		return qof.ErrBackendModified
	case codes.NotFound:
		return qof.ErrBackendModDestroy
	case codes.InvalidArgument:
		return qof.ErrBackendDataCorrupt
	case codes.Unimplemented:
		return qof.ErrRPCBadVersion
	}
	return qof.ErrRPCFailed
}
