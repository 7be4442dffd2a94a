package rpc

import (
	"context"
	"sort"
	"time"

	"commitflow/pkg/pipeline"
)

// Server 把 CommitService 的调用转发给管线
type Server struct {
	pipeline *pipeline.Pipeline
	timeout  time.Duration
}

var _ CommitServiceServer = (*Server)(nil)

type Option func(*Server)

// WithTimeout 限制每次提交的总时长，调用方没有设置 deadline 时也生效
// 调用方的 deadline 更早时以调用方为准
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

func NewServer(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{pipeline: p}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) CommitFiles(ctx context.Context, in *CommitFilesRequest) (*CommitResponse, error) {
	return s.Apply(ctx, &ApplyRequest{
		Owner: in.Owner, Repo: in.Repo, Branch: in.Branch, Message: in.Message,
		Files: in.Files, Author: in.Author, Committer: in.Committer,
	})
}

func (s *Server) CommitSingleFile(ctx context.Context, in *CommitSingleFileRequest) (*CommitResponse, error) {
	return s.Apply(ctx, &ApplyRequest{
		Owner: in.Owner, Repo: in.Repo, Branch: in.Branch, Message: in.Message,
		Files: []FileContent{in.File}, Author: in.Author, Committer: in.Committer,
	})
}

func (s *Server) DeleteFiles(ctx context.Context, in *DeleteFilesRequest) (*CommitResponse, error) {
	return s.Apply(ctx, &ApplyRequest{
		Owner: in.Owner, Repo: in.Repo, Branch: in.Branch, Message: in.Message,
		Deletions: in.Paths, Author: in.Author, Committer: in.Committer,
	})
}

func (s *Server) Apply(ctx context.Context, in *ApplyRequest) (*CommitResponse, error) {
	req, err := ToRequest(in)
	if err != nil {
		return nil, ToStatus(err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	commit, err := s.pipeline.Apply(ctx, req)
	if err != nil {
		return nil, ToStatus(err)
	}
	return FromCommit(commit), nil
}

func sortedPaths[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
