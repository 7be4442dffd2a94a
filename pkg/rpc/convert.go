package rpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/types"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// =============================================================================
// 消息 <-> 领域对象
// =============================================================================

func toSignature(id *Identity) *gitapi.Signature {
	if id == nil {
		return nil
	}
	sig := &gitapi.Signature{Name: id.Name, Email: id.Email}
	if id.When != 0 {
		sig.When = time.Unix(id.When, 0).UTC()
	}
	return sig
}

func fromSignature(sig *gitapi.Signature) *Identity {
	if sig == nil {
		return nil
	}
	id := &Identity{Name: sig.Name, Email: sig.Email}
	if !sig.When.IsZero() {
		id.When = sig.When.Unix()
	}
	return id
}

func toContents(files []FileContent) map[string]pipeline.Content {
	out := make(map[string]pipeline.Content, len(files))
	for _, f := range files {
		out[f.Path] = pipeline.Content{Data: f.Data, Encoding: types.Encoding(f.Encoding)}
	}
	return out
}

// ToRequest 把 ApplyRequest 转成管线请求
// 重复路径在这里就被拒绝，map 会把它们悄悄合并掉
func ToRequest(in *ApplyRequest) (pipeline.Request, error) {
	seen := make(map[string]bool, len(in.Files))
	for _, f := range in.Files {
		if seen[f.Path] {
			return pipeline.Request{}, fmt.Errorf("%w: path %q given more than once", pipeline.ErrInvalidRequest, f.Path)
		}
		seen[f.Path] = true
	}
	return pipeline.Request{
		Repo:      types.RepoCoords{Owner: in.Owner, Name: in.Repo},
		Branch:    in.Branch,
		Message:   in.Message,
		Upserts:   toContents(in.Files),
		Deletions: in.Deletions,
		Author:    toSignature(in.Author),
		Committer: toSignature(in.Committer),
	}, nil
}

// FromRequest 是 ToRequest 的逆操作，文件按路径排序
func FromRequest(req pipeline.Request) *ApplyRequest {
	out := &ApplyRequest{
		Owner:     req.Repo.Owner,
		Repo:      req.Repo.Name,
		Branch:    req.Branch,
		Message:   req.Message,
		Deletions: req.Deletions,
		Author:    fromSignature(req.Author),
		Committer: fromSignature(req.Committer),
	}
	for _, p := range sortedPaths(req.Upserts) {
		c := req.Upserts[p]
		out.Files = append(out.Files, FileContent{Path: p, Data: c.Data, Encoding: string(c.Encoding)})
	}
	return out
}

func FromCommit(c *gitapi.Commit) *CommitResponse {
	out := &CommitResponse{
		SHA:       c.ID.String(),
		Tree:      c.Tree.String(),
		Message:   c.Message,
		Author:    *fromSignature(&c.Author),
		Committer: *fromSignature(&c.Committer),
		Added:     c.Stats.Added,
		Modified:  c.Stats.Modified,
		Removed:   c.Stats.Removed,
	}
	for _, p := range c.Parents {
		out.Parents = append(out.Parents, p.String())
	}
	for _, f := range c.Files {
		out.Files = append(out.Files, FileChange{Path: f.Path, Status: string(f.Status), ID: f.ID.String()})
	}
	return out
}

func ToCommit(r *CommitResponse) *gitapi.Commit {
	out := &gitapi.Commit{
		ID:        types.Hash(r.SHA),
		Tree:      types.Hash(r.Tree),
		Message:   r.Message,
		Author:    *toSignature(&r.Author),
		Committer: *toSignature(&r.Committer),
		Stats:     gitapi.Stats{Added: r.Added, Modified: r.Modified, Removed: r.Removed},
	}
	for _, p := range r.Parents {
		out.Parents = append(out.Parents, types.Hash(p))
	}
	for _, f := range r.Files {
		out.Files = append(out.Files, gitapi.FileChange{Path: f.Path, Status: gitapi.FileStatus(f.Status), ID: types.Hash(f.ID)})
	}
	return out
}

// =============================================================================
// 错误 <-> gRPC 状态码
// =============================================================================

var codeTable = []struct {
	err  error
	code codes.Code
}{
	{pipeline.ErrBranchNotFound, codes.NotFound},
	{pipeline.ErrInvalidRequest, codes.InvalidArgument},
	{pipeline.ErrObjectCreationFailed, codes.FailedPrecondition},
	{pipeline.ErrRefUpdateConflict, codes.Aborted},
	{pipeline.ErrRefUpdateRejected, codes.PermissionDenied},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
	{context.Canceled, codes.Canceled},
}

// ToStatus 把管线错误映射为 gRPC 状态
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus 在客户端还原管线的哨兵错误，errors.Is 因此在两端行为一致
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, e := range codeTable {
		if st.Code() == e.code {
			return fmt.Errorf("%w: %s", e.err, st.Message())
		}
	}
	return err
}
