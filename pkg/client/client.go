package client

import (
	"context"
	"fmt"
	"time"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/rpc"
	"commitflow/pkg/server"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

// Client 封装了与 cf-server 的连接
// 返回的错误已还原成 pipeline 的哨兵错误
type Client struct {
	conn   *grpc.ClientConn
	commit rpc.CommitServiceClient
}

// New 创建客户端；连接在后台建立，地址不可达不会在这里报错
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(server.MaxMessageSize),
			grpc.MaxCallSendMsgSize(server.MaxMessageSize),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &Client{conn: conn, commit: rpc.NewCommitServiceClient(conn)}, nil
}

// Apply 远程执行一次提交；requestID 非空时作为 x-request-id 发送
func (c *Client) Apply(ctx context.Context, req pipeline.Request, requestID string) (*gitapi.Commit, error) {
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, server.RequestIDKey, requestID)
	}
	resp, err := c.commit.Apply(ctx, rpc.FromRequest(req))
	if err != nil {
		return nil, rpc.FromStatus(err)
	}
	return rpc.ToCommit(resp), nil
}

func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
