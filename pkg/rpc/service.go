package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "commitflow.v1.CommitService"

const (
	CommitFilesMethod      = "/" + ServiceName + "/CommitFiles"
	CommitSingleFileMethod = "/" + ServiceName + "/CommitSingleFile"
	DeleteFilesMethod      = "/" + ServiceName + "/DeleteFiles"
	ApplyMethod            = "/" + ServiceName + "/Apply"
)

type CommitServiceServer interface {
	CommitFiles(context.Context, *CommitFilesRequest) (*CommitResponse, error)
	CommitSingleFile(context.Context, *CommitSingleFileRequest) (*CommitResponse, error)
	DeleteFiles(context.Context, *DeleteFilesRequest) (*CommitResponse, error)
	Apply(context.Context, *ApplyRequest) (*CommitResponse, error)
}

func RegisterCommitServiceServer(s grpc.ServiceRegistrar, srv CommitServiceServer) {
	s.RegisterService(&CommitServiceDesc, srv)
}

// unary 生成一个 MethodDesc handler，形状与 protoc-gen-go-grpc 的输出一致
func unary[Req any](method string, call func(CommitServiceServer, context.Context, *Req) (*CommitResponse, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CommitServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CommitServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var CommitServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommitServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CommitFiles", Handler: unary(CommitFilesMethod, CommitServiceServer.CommitFiles)},
		{MethodName: "CommitSingleFile", Handler: unary(CommitSingleFileMethod, CommitServiceServer.CommitSingleFile)},
		{MethodName: "DeleteFiles", Handler: unary(DeleteFilesMethod, CommitServiceServer.DeleteFiles)},
		{MethodName: "Apply", Handler: unary(ApplyMethod, CommitServiceServer.Apply)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "commitflow/v1/commit.cbor",
}

type CommitServiceClient interface {
	CommitFiles(ctx context.Context, in *CommitFilesRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	CommitSingleFile(ctx context.Context, in *CommitSingleFileRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	DeleteFiles(ctx context.Context, in *DeleteFilesRequest, opts ...grpc.CallOption) (*CommitResponse, error)
	Apply(ctx context.Context, in *ApplyRequest, opts ...grpc.CallOption) (*CommitResponse, error)
}

type commitServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewCommitServiceClient 的每次调用都强制使用 CBOR 编码
func NewCommitServiceClient(cc grpc.ClientConnInterface) CommitServiceClient {
	return &commitServiceClient{cc: cc}
}

func (c *commitServiceClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*CommitResponse, error) {
	out := new(CommitResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *commitServiceClient) CommitFiles(ctx context.Context, in *CommitFilesRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return c.invoke(ctx, CommitFilesMethod, in, opts)
}

func (c *commitServiceClient) CommitSingleFile(ctx context.Context, in *CommitSingleFileRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return c.invoke(ctx, CommitSingleFileMethod, in, opts)
}

func (c *commitServiceClient) DeleteFiles(ctx context.Context, in *DeleteFilesRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return c.invoke(ctx, DeleteFilesMethod, in, opts)
}

func (c *commitServiceClient) Apply(ctx context.Context, in *ApplyRequest, opts ...grpc.CallOption) (*CommitResponse, error) {
	return c.invoke(ctx, ApplyMethod, in, opts)
}
