// Package github 通过 GitHub 的 Git Data API 实现 gitapi.ObjectStore
//
// 每个响应在这里被解码成 gitapi 的类型；HTTP 状态码被归类到 gitapi 的四个哨兵错误
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"

	gh "github.com/google/go-github/v72/github"
)

// EmptyTreeID 是空树的 ID，在每个 Git 仓库里都隐式存在
const EmptyTreeID types.Hash = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

type Config struct {
	Token string
	// BaseURL 非空时指向 GitHub Enterprise
	BaseURL   string
	UploadURL string
	Timeout   time.Duration
}

// NewClient 按配置构造 go-github 客户端
func NewClient(cfg Config) (*gh.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := gh.NewClient(&http.Client{Timeout: timeout})
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		upload := cfg.UploadURL
		if upload == "" {
			upload = cfg.BaseURL
		}
		var err error
		client, err = client.WithEnterpriseURLs(cfg.BaseURL, upload)
		if err != nil {
			return nil, fmt.Errorf("github enterprise url: %w", err)
		}
	}
	return client, nil
}

type Backend struct {
	client *gh.Client
	logger *slog.Logger
}

var _ gitapi.ObjectStore = (*Backend)(nil)

func New(client *gh.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{client: client, logger: logger}
}

// =============================================================================
// gitapi.ObjectStore
// =============================================================================

func (b *Backend) CreateBlob(ctx context.Context, repo types.RepoCoords, content []byte, enc types.Encoding) (types.Hash, error) {
	// 非法的 base64 在本地就拒绝，不浪费一次请求
	if _, err := core.DecodeContent(content, enc); err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	blob, _, err := b.client.Git.CreateBlob(ctx, repo.Owner, repo.Name, &gh.Blob{
		Content:  gh.Ptr(string(content)),
		Encoding: gh.Ptr(string(enc)),
	})
	if err != nil {
		return "", classify("create blob", err)
	}
	return types.Hash(blob.GetSHA()), nil
}

func (b *Backend) GetTree(ctx context.Context, repo types.RepoCoords, treeID types.Hash) ([]gitapi.TreeEntry, error) {
	tree, _, err := b.client.Git.GetTree(ctx, repo.Owner, repo.Name, treeID.String(), true)
	if err != nil {
		return nil, classify("get tree", err)
	}
	// 截断的快照会让新树丢文件
	if tree.GetTruncated() {
		return nil, fmt.Errorf("tree %s is too large to list recursively: %w", treeID.Short(), gitapi.ErrInvalidObject)
	}

	out := make([]gitapi.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		kind := gitapi.ObjectKind(e.GetType())
		if kind == gitapi.KindTree {
			continue
		}
		out = append(out, gitapi.TreeEntry{
			Path: e.GetPath(),
			Mode: gitapi.FileMode(e.GetMode()),
			Kind: kind,
			ID:   types.Hash(e.GetSHA()),
		})
	}
	gitapi.SortEntries(out)
	return out, nil
}

func (b *Backend) CreateTree(ctx context.Context, repo types.RepoCoords, baseTreeID types.Hash, entries []gitapi.TreeEntry) (types.Hash, error) {
	// API 不接受空的 tree 列表
	if len(entries) == 0 {
		if baseTreeID.IsZero() {
			return EmptyTreeID, nil
		}
		return baseTreeID, nil
	}

	req := make([]*gh.TreeEntry, 0, len(entries))
	for _, e := range entries {
		if _, err := gitapi.CleanPath(e.Path); err != nil {
			return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
		}
		req = append(req, &gh.TreeEntry{
			Path: gh.Ptr(e.Path),
			Mode: gh.Ptr(string(e.Mode)),
			Type: gh.Ptr(string(e.Kind)),
			SHA:  gh.Ptr(e.ID.String()),
		})
	}
	tree, _, err := b.client.Git.CreateTree(ctx, repo.Owner, repo.Name, baseTreeID.String(), req)
	if err != nil {
		return "", classify("create tree", err)
	}
	return types.Hash(tree.GetSHA()), nil
}

func (b *Backend) CreateCommit(ctx context.Context, repo types.RepoCoords, spec gitapi.CommitSpec) (types.Hash, error) {
	commit := &gh.Commit{
		Message:   gh.Ptr(spec.Message),
		Tree:      &gh.Tree{SHA: gh.Ptr(spec.Tree.String())},
		Author:    toAuthor(spec.Author),
		Committer: toAuthor(spec.Committer),
	}
	for _, p := range spec.Parents {
		commit.Parents = append(commit.Parents, &gh.Commit{SHA: gh.Ptr(p.String())})
	}
	c, _, err := b.client.Git.CreateCommit(ctx, repo.Owner, repo.Name, commit, nil)
	if err != nil {
		return "", classify("create commit", err)
	}
	return types.Hash(c.GetSHA()), nil
}

// GetCommit 的 commits/{ref} 接口也接受提交 ID 和标签，限定名先经 Git.GetRef 查分支
func (b *Backend) GetCommit(ctx context.Context, repo types.RepoCoords, branchOrSHA string) (*gitapi.Commit, error) {
	if branch, ok := gitapi.ParseBranchRef(branchOrSHA); ok {
		ref, _, err := b.client.Git.GetRef(ctx, repo.Owner, repo.Name, "heads/"+branch)
		if err != nil {
			return nil, classify("get ref", err)
		}
		branchOrSHA = ref.GetObject().GetSHA()
	}
	rc, _, err := b.client.Repositories.GetCommit(ctx, repo.Owner, repo.Name, branchOrSHA, nil)
	if err != nil {
		return nil, classify("get commit", err)
	}
	c := rc.GetCommit()
	out := &gitapi.Commit{
		ID:        types.Hash(rc.GetSHA()),
		Tree:      types.Hash(c.GetTree().GetSHA()),
		Message:   c.GetMessage(),
		Author:    fromAuthor(c.GetAuthor()),
		Committer: fromAuthor(c.GetCommitter()),
	}
	for _, p := range rc.Parents {
		out.Parents = append(out.Parents, types.Hash(p.GetSHA()))
	}
	out.Files = fileChanges(rc.Files)
	out.Stats = gitapi.Summarize(out.Files)
	return out, nil
}

// Log 用 ListCommits 沿分支历史分页读取，最多返回 limit 个 (<=0 表示不限制)
// 列表接口不带文件变更，返回的提交里 Files 为空
func (b *Backend) Log(ctx context.Context, repo types.RepoCoords, ref string, limit int) ([]*gitapi.Commit, error) {
	opts := &gh.CommitsListOptions{SHA: ref, ListOptions: gh.ListOptions{PerPage: 100}}
	if limit > 0 && limit < opts.PerPage {
		opts.PerPage = limit
	}

	var out []*gitapi.Commit
	for {
		page, resp, err := b.client.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
		if err != nil {
			return nil, classify("list commits", err)
		}
		for _, rc := range page {
			c := rc.GetCommit()
			entry := &gitapi.Commit{
				ID:        types.Hash(rc.GetSHA()),
				Tree:      types.Hash(c.GetTree().GetSHA()),
				Message:   c.GetMessage(),
				Author:    fromAuthor(c.GetAuthor()),
				Committer: fromAuthor(c.GetCommitter()),
			}
			for _, p := range rc.Parents {
				entry.Parents = append(entry.Parents, types.Hash(p.GetSHA()))
			}
			out = append(out, entry)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// UpdateRef 先比对分支当前值，再做非强制更新
// 两步之间分支被别人推进时，GitHub 会以 "not a fast forward" 拒绝
func (b *Backend) UpdateRef(ctx context.Context, repo types.RepoCoords, branch string, newCommit, expectedOld types.Hash) error {
	name := "heads/" + branch
	ref, _, err := b.client.Git.GetRef(ctx, repo.Owner, repo.Name, name)
	if err != nil {
		return classify("get ref", err)
	}
	if current := ref.GetObject().GetSHA(); current != expectedOld.String() {
		return fmt.Errorf("branch %s is at %.8s, expected %s: %w", branch, current, expectedOld.Short(), gitapi.ErrConflict)
	}

	_, _, err = b.client.Git.UpdateRef(ctx, repo.Owner, repo.Name, &gh.Reference{
		Ref:    gh.Ptr(name),
		Object: &gh.GitObject{SHA: gh.Ptr(newCommit.String())},
	}, false)
	if err != nil {
		b.logger.Warn("github ref update failed", "repo", repo.String(), "branch", branch, "error", err)
		return classify("update ref", err)
	}
	return nil
}

// =============================================================================
// 转换
// =============================================================================

func toAuthor(sig *gitapi.Signature) *gh.CommitAuthor {
	if sig == nil {
		return nil
	}
	a := &gh.CommitAuthor{Name: gh.Ptr(sig.Name), Email: gh.Ptr(sig.Email)}
	if !sig.When.IsZero() {
		a.Date = &gh.Timestamp{Time: sig.When}
	}
	return a
}

func fromAuthor(a *gh.CommitAuthor) gitapi.Signature {
	return gitapi.Signature{Name: a.GetName(), Email: a.GetEmail(), When: a.GetDate().Time}
}

// fileChanges 把 GitHub 的文件状态折叠成 added / modified / removed
// 重命名拆成旧路径 removed 和新路径 added
func fileChanges(files []*gh.CommitFile) []gitapi.FileChange {
	var out []gitapi.FileChange
	for _, f := range files {
		id := types.Hash(f.GetSHA())
		switch f.GetStatus() {
		case "added", "copied":
			out = append(out, gitapi.FileChange{Path: f.GetFilename(), Status: gitapi.StatusAdded, ID: id})
		case "removed":
			out = append(out, gitapi.FileChange{Path: f.GetFilename(), Status: gitapi.StatusRemoved, ID: id})
		case "renamed":
			out = append(out,
				gitapi.FileChange{Path: f.GetPreviousFilename(), Status: gitapi.StatusRemoved},
				gitapi.FileChange{Path: f.GetFilename(), Status: gitapi.StatusAdded, ID: id},
			)
		case "unchanged":
		default:
			out = append(out, gitapi.FileChange{Path: f.GetFilename(), Status: gitapi.StatusModified, ID: id})
		}
	}
	return out
}

// classify 把 HTTP 错误映射到 gitapi 的哨兵错误
// 5xx、限流和网络错误保持未分类
func classify(op string, err error) error {
	var er *gh.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return fmt.Errorf("github %s: %w", op, err)
	}

	msg := strings.ToLower(er.Message)
	var kind error
	switch code := er.Response.StatusCode; {
	case code == http.StatusNotFound, strings.Contains(msg, "no commit found"):
		kind = gitapi.ErrNotFound
	case code == http.StatusConflict:
		kind = gitapi.ErrConflict
	case code == http.StatusUnprocessableEntity && strings.Contains(msg, "fast forward"):
		kind = gitapi.ErrConflict
	case code == http.StatusUnauthorized, code == http.StatusForbidden, strings.Contains(msg, "protected branch"):
		kind = gitapi.ErrRejected
	case code >= 400 && code < 500:
		kind = gitapi.ErrInvalidObject
	default:
		return fmt.Errorf("github %s: %w", op, err)
	}
	return fmt.Errorf("github %s: %w: %s", op, kind, er.Message)
}
