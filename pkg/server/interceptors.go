package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDKey 是请求 ID 的 metadata 键；客户端带上时沿用，否则由服务端生成
const RequestIDKey = "x-request-id"

type requestIDCtxKey struct{}

// RequestID 取出拦截器放进 ctx 的请求 ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}

// =============================================================================
// 1. Request ID
// =============================================================================

func UnaryRequestIDInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	id := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(RequestIDKey); len(vals) > 0 {
			id = vals[0]
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, id))
	return handler(context.WithValue(ctx, requestIDCtxKey{}, id), req)
}

// =============================================================================
// 2. Logging Interceptor (结构化日志)
// =============================================================================

// LoggingInterceptor 返回一个记录每次调用的拦截器
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logRPC(ctx, logger, info.FullMethod, time.Since(start), err)
		return resp, err
	}
}

func logRPC(ctx context.Context, logger *slog.Logger, method string, duration time.Duration, err error) {
	code := status.Code(err)

	level := slog.LevelInfo
	switch code {
	case codes.OK:
	case codes.Internal, codes.Unknown:
		level = slog.LevelError
	default:
		// 冲突、分支不存在这类业务错误只算 Warn
		level = slog.LevelWarn
	}

	attrs := []any{
		slog.String("request_id", RequestID(ctx)),
		slog.String("method", method),
		slog.String("code", code.String()),
		slog.Duration("dur", duration),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.Log(ctx, level, "gRPC Request", attrs...)
}

// =============================================================================
// 3. Recovery Interceptor (防弹衣)
// =============================================================================

// UnaryRecoveryInterceptor 捕获 Panic
func UnaryRecoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverFromPanic(ctx, r)
		}
	}()
	return handler(ctx, req)
}

func recoverFromPanic(ctx context.Context, p any) error {
	slog.Error("🔥 PANIC RECOVERED",
		slog.String("request_id", RequestID(ctx)),
		slog.Any("panic", p),
		slog.String("stack", string(debug.Stack())),
	)
	return status.Errorf(codes.Internal, "internal server error: panic recovered")
}
