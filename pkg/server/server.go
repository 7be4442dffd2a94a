package server

import (
	"log/slog"

	"commitflow/pkg/pipeline"
	"commitflow/pkg/rpc"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// MaxMessageSize 限制单个请求的大小 (文件内容随请求一起发送)
const MaxMessageSize = 64 << 20

// New 构造注册了 CommitService、健康检查和反射的 gRPC 服务
// 拦截器顺序: request id -> logging -> recovery
// opts 透传给 CommitService (例如 rpc.WithTimeout)
func New(p *pipeline.Pipeline, logger *slog.Logger, opts ...rpc.Option) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(MaxMessageSize),
		grpc.ChainUnaryInterceptor(
			UnaryRequestIDInterceptor,
			LoggingInterceptor(logger),
			UnaryRecoveryInterceptor,
		),
	)
	rpc.RegisterCommitServiceServer(s, rpc.NewServer(p, opts...))

	hs := health.NewServer()
	hs.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	// 调试工具 (grpcurl) 用
	reflection.Register(s)
	return s, hs
}
