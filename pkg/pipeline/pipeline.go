// Package pipeline 把一组文件变更变成一个新的提交
//
// 流程：ReadTip → BuildTree → CreateCommit → PublishRef → Done
// 只有 PublishRef 会改变外部可见状态；之前任何一步失败都只会留下
// 没有被引用的对象，不需要回滚。
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"

	"github.com/google/uuid"
)

type Options struct {
	// BlobConcurrency 同时进行的 CreateBlob 调用数，<=1 表示顺序执行
	BlobConcurrency int
	// DedupeBlobs 同一次运行里相同内容只上传一次
	DedupeBlobs bool
	Logger      *slog.Logger
	Observer    Observer
	Now         func() time.Time
}

type Pipeline struct {
	store     gitapi.ObjectStore
	addresser *ContentAddresser
	factory   *CommitFactory
	publisher *RefPublisher
	logger    *slog.Logger
	observer  Observer
}

func New(store gitapi.ObjectStore, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:     store,
		addresser: NewContentAddresser(store, opts.BlobConcurrency, opts.DedupeBlobs),
		factory:   NewCommitFactory(now),
		publisher: NewRefPublisher(store),
		logger:    logger,
		observer:  opts.Observer,
	}
}

// =============================================================================
// Entry points
// =============================================================================

// CommitFiles 新增或覆盖多个文件
func (p *Pipeline) CommitFiles(ctx context.Context, repo types.RepoCoords, changes map[string]Content, message, branch string, author, committer *gitapi.Signature) (*gitapi.Commit, error) {
	return p.Apply(ctx, Request{
		Repo:      repo,
		Branch:    branch,
		Message:   message,
		Upserts:   changes,
		Author:    author,
		Committer: committer,
	})
}

// CommitSingleFile 是 CommitFiles 只有一个文件时的简写
func (p *Pipeline) CommitSingleFile(ctx context.Context, repo types.RepoCoords, path string, content Content, message, branch string, author, committer *gitapi.Signature) (*gitapi.Commit, error) {
	return p.CommitFiles(ctx, repo, map[string]Content{path: content}, message, branch, author, committer)
}

// DeleteFiles 删除多个文件，不存在的路径被忽略
func (p *Pipeline) DeleteFiles(ctx context.Context, repo types.RepoCoords, paths []string, message, branch string, author, committer *gitapi.Signature) (*gitapi.Commit, error) {
	return p.Apply(ctx, Request{
		Repo:      repo,
		Branch:    branch,
		Message:   message,
		Deletions: paths,
		Author:    author,
		Committer: committer,
	})
}

// =============================================================================
// State machine
// =============================================================================

// run 记录一次运行的上下文
type run struct {
	id     string
	state  State
	req    *Request
	plan   *plan
	logger *slog.Logger

	tip  *gitapi.Commit
	tree types.Hash
	spec gitapi.CommitSpec
	head types.Hash
}

// Apply 同时支持更新和删除，三个入口都是它的特例
func (p *Pipeline) Apply(ctx context.Context, req Request) (*gitapi.Commit, error) {
	r := &run{
		id:    uuid.NewString(),
		state: StateIdle,
		req:   &req,
	}
	r.logger = p.logger.With(
		slog.String("run_id", r.id),
		slog.String("repo", req.Repo.String()),
	)

	// 0. 校验请求，不合法时不触达对象库
	pl, err := req.normalize()
	if err != nil {
		return nil, p.fail(r, newError(StateIdle, "", ErrInvalidRequest, err))
	}
	r.plan = pl
	r.logger = r.logger.With(slog.String("branch", pl.branch))

	steps := []struct {
		state State
		do    func(context.Context, *run) error
	}{
		{StateReadTip, p.readTip},
		{StateBuildTree, p.buildTree},
		{StateCreateCommit, p.createCommit},
		{StatePublishRef, p.publishRef},
	}

	for _, step := range steps {
		// 只在状态边界检查取消，不打断正在进行的远端调用
		if err := ctx.Err(); err != nil {
			return nil, p.fail(r, newError(r.state, "", nil, err))
		}
		p.enter(r, step.state)
		if err := step.do(ctx, r); err != nil {
			return nil, p.fail(r, err)
		}
	}

	p.enter(r, StateDone)
	return p.refetch(ctx, r), nil
}

// 1. ReadTip: 读取分支当前的提交和树
// 只认分支；同名的提交 ID 或修订表达式在这里算作分支不存在
func (p *Pipeline) readTip(ctx context.Context, r *run) error {
	tip, err := p.store.GetCommit(ctx, r.req.Repo, gitapi.BranchRef(r.plan.branch))
	if err != nil {
		if errors.Is(err, gitapi.ErrNotFound) {
			return newError(StateReadTip, "", ErrBranchNotFound, err)
		}
		return newError(StateReadTip, "", nil, err)
	}
	r.tip = tip
	r.logger.Debug("read branch tip", slog.String("tip", tip.ID.Short()), slog.String("tree", tip.Tree.Short()))
	return nil
}

// 2. BuildTree: 创建 Blob，组合新树
func (p *Pipeline) buildTree(ctx context.Context, r *run) error {
	base, err := p.store.GetTree(ctx, r.req.Repo, r.tip.Tree)
	if err != nil {
		return newError(StateBuildTree, "", ErrObjectCreationFailed, err)
	}

	var upserts map[string]types.Hash
	if len(r.plan.upserts) > 0 {
		upserts, err = p.addresser.IdentifyAll(ctx, r.req.Repo, r.plan.upserts)
		if err != nil {
			return err
		}
	}

	spec := Compose(base, upserts, r.plan.deletions)
	if spec.Unchanged {
		// 内容没有变化，复用原来的树
		r.tree = r.tip.Tree
		r.logger.Debug("tree unchanged, reusing base", slog.String("tree", r.tree.Short()))
		return nil
	}

	// 完整快照，不依赖 base 的覆盖语义
	id, err := p.store.CreateTree(ctx, r.req.Repo, "", spec.Entries)
	if err != nil {
		return newError(StateBuildTree, "", ErrObjectCreationFailed, err)
	}
	r.tree = id
	r.logger.Debug("tree created", slog.String("tree", id.Short()), slog.Int("entries", len(spec.Entries)))
	return nil
}

// 3. CreateCommit: 以 tip 为唯一父提交
func (p *Pipeline) createCommit(ctx context.Context, r *run) error {
	spec, err := p.factory.Build(r.tree, r.tip.ID, r.req.Message, r.req.Author, r.req.Committer)
	if err != nil {
		return newError(StateCreateCommit, "", nil, err)
	}
	id, err := p.store.CreateCommit(ctx, r.req.Repo, spec)
	if err != nil {
		return newError(StateCreateCommit, "", ErrObjectCreationFailed, err)
	}
	r.spec = spec
	r.head = id
	return nil
}

// 4. PublishRef: 唯一的可见写操作
func (p *Pipeline) publishRef(ctx context.Context, r *run) error {
	return p.publisher.Advance(ctx, r.req.Repo, r.plan.branch, r.head, r.tip.ID)
}

// refetch 读取刚发布的完整提交 (含文件变更统计)
// 分支已经推进，读取失败也不能算运行失败，退回到本地已知的信息
func (p *Pipeline) refetch(ctx context.Context, r *run) *gitapi.Commit {
	c, err := p.store.GetCommit(ctx, r.req.Repo, r.head.String())
	if err == nil {
		r.logger.Info("commit published",
			slog.String("commit", c.ID.Short()),
			slog.Int("files", len(c.Files)),
		)
		return c
	}

	r.logger.Warn("commit published but re-fetch failed",
		slog.String("commit", r.head.Short()),
		slog.Any("error", err),
	)
	fallback := &gitapi.Commit{
		ID:      r.head,
		Tree:    r.spec.Tree,
		Parents: r.spec.Parents,
		Message: r.spec.Message,
	}
	if r.spec.Author != nil {
		fallback.Author = *r.spec.Author
	}
	if r.spec.Committer != nil {
		fallback.Committer = *r.spec.Committer
	}
	return fallback
}

func (p *Pipeline) enter(r *run, next State) {
	prev := r.state
	r.state = next
	r.logger.Debug("state transition", slog.String("from", prev.String()), slog.String("to", next.String()))
	if p.observer != nil {
		p.observer(Transition{RunID: r.id, From: prev, To: next})
	}
}

func (p *Pipeline) fail(r *run, err error) error {
	prev := r.state
	r.state = StateFailed
	level := slog.LevelWarn
	if errors.Is(err, ErrInvalidRequest) {
		level = slog.LevelInfo
	}
	r.logger.Log(context.Background(), level, "commit pipeline failed",
		slog.String("state", prev.String()),
		slog.Any("error", err),
	)
	if p.observer != nil {
		p.observer(Transition{RunID: r.id, From: prev, To: StateFailed, Err: err})
	}
	return err
}
