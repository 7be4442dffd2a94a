// Package gitrepo 把真实的 Git 仓库 (go-git) 当作对象库
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/treebuilder"
	"commitflow/pkg/types"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/memory"
)

type Options struct {
	// Root 下按 <owner>/<name> 存放仓库；为空时使用内存存储
	Root string
	// Bare 新建的仓库是否为 bare
	Bare              bool
	ProtectedBranches []string
	DefaultIdentity   gitapi.Signature
	Now               func() time.Time
}

// Backend 管理一组 Git 仓库
// go-git 的内存存储不是并发安全的，每个仓库的操作由一把锁串行化
type Backend struct {
	opts      Options
	protected map[string]bool

	mu    sync.Mutex
	repos map[types.RepoCoords]*handle
}

type handle struct {
	mu   sync.Mutex
	repo *git.Repository
}

var _ gitapi.ObjectStore = (*Backend)(nil)

func New(opts Options) *Backend {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultIdentity.Name == "" {
		opts.DefaultIdentity = gitapi.Signature{Name: "commitflow", Email: "commitflow@localhost"}
	}
	b := &Backend{
		opts:      opts,
		protected: make(map[string]bool, len(opts.ProtectedBranches)),
		repos:     make(map[types.RepoCoords]*handle),
	}
	for _, name := range opts.ProtectedBranches {
		b.protected[name] = true
	}
	return b
}

func (b *Backend) dir(repo types.RepoCoords) string {
	return filepath.Join(b.opts.Root, repo.Owner, repo.Name)
}

// open 返回已存在的仓库；不存在时返回 gitapi.ErrNotFound
func (b *Backend) open(repo types.RepoCoords) (*handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if h, ok := b.repos[repo]; ok {
		return h, nil
	}
	if b.opts.Root == "" {
		return nil, fmt.Errorf("repository %s: %w", repo, gitapi.ErrNotFound)
	}
	r, err := git.PlainOpen(b.dir(repo))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("repository %s: %w", repo, gitapi.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", repo, err)
	}
	h := &handle{repo: r}
	b.repos[repo] = h
	return h, nil
}

// Init 新建一个仓库，已存在时直接返回
func (b *Backend) Init(repo types.RepoCoords) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.repos[repo]; ok {
		return nil
	}

	var (
		r   *git.Repository
		err error
	)
	if b.opts.Root == "" {
		r, err = git.Init(memory.NewStorage(), nil)
	} else {
		dir := b.dir(repo)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		r, err = git.PlainInit(dir, b.opts.Bare)
		if errors.Is(err, git.ErrRepositoryAlreadyExists) {
			r, err = git.PlainOpen(dir)
		}
	}
	if err != nil {
		return fmt.Errorf("init repository %s: %w", repo, err)
	}
	b.repos[repo] = &handle{repo: r}
	return nil
}

// =============================================================================
// gitapi.ObjectStore
// =============================================================================

func (b *Backend) CreateBlob(ctx context.Context, repo types.RepoCoords, content []byte, enc types.Encoding) (types.Hash, error) {
	raw, err := core.DecodeContent(content, enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	h, err := b.open(repo)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	id, err := writeObject(h.repo.Storer, plumbing.BlobObject, raw)
	if err != nil {
		return "", err
	}
	return types.Hash(id.String()), nil
}

func (b *Backend) GetTree(ctx context.Context, repo types.RepoCoords, treeID types.Hash) ([]gitapi.TreeEntry, error) {
	h, err := b.open(repo)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return flatten(h.repo.Storer, treeID)
}

func (b *Backend) CreateTree(ctx context.Context, repo types.RepoCoords, baseTreeID types.Hash, entries []gitapi.TreeEntry) (types.Hash, error) {
	h, err := b.open(repo)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.repo.Storer

	var base []gitapi.TreeEntry
	if !baseTreeID.IsZero() {
		base, err = flatten(s, baseTreeID)
		if errors.Is(err, gitapi.ErrNotFound) {
			return "", fmt.Errorf("%w: base tree %s does not exist", gitapi.ErrInvalidObject, baseTreeID.Short())
		}
		if err != nil {
			return "", err
		}
	}

	for _, e := range entries {
		if _, err := gitapi.CleanPath(e.Path); err != nil {
			return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
		}
		if !plumbing.IsHash(e.ID.String()) {
			return "", fmt.Errorf("%w: %s: malformed object id %q", gitapi.ErrInvalidObject, e.Path, e.ID)
		}
		if e.Kind == gitapi.KindBlob {
			if err := s.HasEncodedObject(plumbing.NewHash(e.ID.String())); err != nil {
				return "", fmt.Errorf("%w: %s: blob %s does not exist", gitapi.ErrInvalidObject, e.Path, e.ID.Short())
			}
		}
	}

	builder := treebuilder.NewBuilder(func(_ context.Context, dir []treebuilder.Entry) (types.Hash, error) {
		return writeTree(s, dir)
	})
	id, err := builder.Build(ctx, gitapi.Overlay(base, entries))
	if errors.Is(err, treebuilder.ErrPathConflict) {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	return id, err
}

func (b *Backend) CreateCommit(ctx context.Context, repo types.RepoCoords, spec gitapi.CommitSpec) (types.Hash, error) {
	h, err := b.open(repo)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.repo.Storer

	if _, err := object.GetTree(s, plumbing.NewHash(spec.Tree.String())); err != nil || !plumbing.IsHash(spec.Tree.String()) {
		return "", fmt.Errorf("%w: tree %s does not exist", gitapi.ErrInvalidObject, spec.Tree.Short())
	}
	parents := make([]plumbing.Hash, 0, len(spec.Parents))
	for _, p := range spec.Parents {
		ph := plumbing.NewHash(p.String())
		if _, err := object.GetCommit(s, ph); err != nil || !plumbing.IsHash(p.String()) {
			return "", fmt.Errorf("%w: parent %s does not exist", gitapi.ErrInvalidObject, p.Short())
		}
		parents = append(parents, ph)
	}

	now := b.opts.Now()
	c := &object.Commit{
		Author:       b.signature(spec.Author, now),
		Committer:    b.signature(spec.Committer, now),
		Message:      spec.Message,
		TreeHash:     plumbing.NewHash(spec.Tree.String()),
		ParentHashes: parents,
	}
	obj := s.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	id, err := s.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("store commit: %w", err)
	}
	return types.Hash(id.String()), nil
}

func (b *Backend) signature(sig *gitapi.Signature, now time.Time) object.Signature {
	s := b.opts.DefaultIdentity
	if sig != nil {
		s = *sig
	}
	if s.When.IsZero() {
		s.When = now
	}
	return object.Signature{Name: s.Name, Email: s.Email, When: s.When}
}

// GetCommit 接受分支名、完整或简短的提交 ID
func (b *Backend) GetCommit(ctx context.Context, repo types.RepoCoords, branchOrSHA string) (*gitapi.Commit, error) {
	h, err := b.open(repo)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	id, err := resolve(h.repo, branchOrSHA)
	if err != nil {
		return nil, err
	}
	c, err := object.GetCommit(h.repo.Storer, id)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("commit %s: %w", branchOrSHA, gitapi.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	return describe(h.repo.Storer, c)
}

// Log 从 ref 出发沿第一父提交回溯，最多返回 limit 个 (<=0 表示不限制)
func (b *Backend) Log(ctx context.Context, repo types.RepoCoords, ref string, limit int) ([]*gitapi.Commit, error) {
	h, err := b.open(repo)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	id, err := resolve(h.repo, ref)
	if err != nil {
		return nil, err
	}

	var out []*gitapi.Commit
	for !id.IsZero() && (limit <= 0 || len(out) < limit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := object.GetCommit(h.repo.Storer, id)
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("commit %s: %w", id.String()[:8], gitapi.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		desc, err := describe(h.repo.Storer, c)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)

		id = plumbing.ZeroHash
		if len(c.ParentHashes) > 0 {
			id = c.ParentHashes[0]
		}
	}
	return out, nil
}

// UpdateRef 用 CheckAndSetReference 推进分支
func (b *Backend) UpdateRef(ctx context.Context, repo types.RepoCoords, branch string, newCommit, expectedOld types.Hash) error {
	if b.protected[branch] {
		return fmt.Errorf("branch %s is protected: %w", branch, gitapi.ErrRejected)
	}
	h, err := b.open(repo)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	next := plumbing.NewHash(newCommit.String())
	if _, err := object.GetCommit(h.repo.Storer, next); err != nil {
		return fmt.Errorf("%w: commit %s does not exist", gitapi.ErrInvalidObject, newCommit.Short())
	}

	name := plumbing.NewBranchReferenceName(branch)
	old, err := h.repo.Storer.Reference(name)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("branch %s: %w", branch, gitapi.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if old.Hash().String() != expectedOld.String() {
		return fmt.Errorf("branch %s is at %s, expected %s: %w", branch, old.Hash().String()[:8], expectedOld.Short(), gitapi.ErrConflict)
	}

	err = h.repo.Storer.CheckAndSetReference(plumbing.NewHashReference(name, next), old)
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return fmt.Errorf("branch %s: %w", branch, gitapi.ErrConflict)
	}
	return err
}

// =============================================================================
// 分支
// =============================================================================

// CreateBranch 新建分支；from 为空时创建一个空树根提交
// 仓库不存在时会被初始化，并把 HEAD 指向该分支
func (b *Backend) CreateBranch(ctx context.Context, repo types.RepoCoords, branch, from string, author *gitapi.Signature) (types.Hash, error) {
	if err := b.Init(repo); err != nil {
		return "", err
	}

	var head types.Hash
	if from != "" {
		c, err := b.GetCommit(ctx, repo, from)
		if err != nil {
			return "", err
		}
		head = c.ID
	} else {
		tree, err := b.CreateTree(ctx, repo, "", nil)
		if err != nil {
			return "", err
		}
		head, err = b.CreateCommit(ctx, repo, gitapi.CommitSpec{
			Message: "Initial commit\n", Tree: tree, Author: author, Committer: author,
		})
		if err != nil {
			return "", err
		}
	}

	h, err := b.open(repo)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	name := plumbing.NewBranchReferenceName(branch)
	if _, err := h.repo.Storer.Reference(name); err == nil {
		return "", fmt.Errorf("branch %s: already exists", branch)
	}
	if err := h.repo.Storer.SetReference(plumbing.NewHashReference(name, plumbing.NewHash(head.String()))); err != nil {
		return "", err
	}
	if from == "" {
		if err := h.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, name)); err != nil {
			return "", err
		}
	}
	return head, nil
}

// =============================================================================
// 编码辅助
// =============================================================================

func writeObject(s storage.Storer, t plumbing.ObjectType, data []byte) (plumbing.Hash, error) {
	obj := s.NewEncodedObject()
	obj.SetType(t)
	obj.SetSize(int64(len(data)))
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.SetEncodedObject(obj)
}

func writeTree(s storage.Storer, dir []treebuilder.Entry) (types.Hash, error) {
	t := &object.Tree{Entries: make([]object.TreeEntry, 0, len(dir))}
	for _, e := range dir {
		mode, err := filemode.New(string(e.Mode))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", gitapi.ErrInvalidObject, e.Name, err)
		}
		t.Entries = append(t.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: mode,
			Hash: plumbing.NewHash(e.ID.String()),
		})
	}
	// git 的排序规则里目录名带 "/" 后缀
	sort.Sort(object.TreeEntrySorter(t.Entries))

	obj := s.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	id, err := s.SetEncodedObject(obj)
	if err != nil {
		return "", err
	}
	return types.Hash(id.String()), nil
}

// flatten 递归展开一棵树，只保留非目录条目
func flatten(s storage.Storer, treeID types.Hash) ([]gitapi.TreeEntry, error) {
	if !plumbing.IsHash(treeID.String()) {
		return nil, fmt.Errorf("tree %q: %w", treeID, gitapi.ErrNotFound)
	}
	tree, err := object.GetTree(s, plumbing.NewHash(treeID.String()))
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, fmt.Errorf("tree %s: %w", treeID.Short(), gitapi.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	var out []gitapi.TreeEntry
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if entry.Mode == filemode.Dir {
			continue
		}
		kind := gitapi.KindBlob
		if entry.Mode == filemode.Submodule {
			kind = gitapi.KindCommit
		}
		out = append(out, gitapi.TreeEntry{
			Path: name,
			Mode: modeString(entry.Mode),
			Kind: kind,
			ID:   types.Hash(entry.Hash.String()),
		})
	}
	gitapi.SortEntries(out)
	return out, nil
}

func modeString(m filemode.FileMode) gitapi.FileMode {
	if m == filemode.Deprecated {
		m = filemode.Regular
	}
	return gitapi.FileMode(fmt.Sprintf("%06o", uint32(m)))
}

func resolve(r *git.Repository, ref string) (plumbing.Hash, error) {
	if branch, ok := gitapi.ParseBranchRef(ref); ok {
		b, err := r.Reference(plumbing.NewBranchReferenceName(branch), true)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("branch %s: %w", branch, gitapi.ErrNotFound)
		}
		return b.Hash(), nil
	}
	if b, err := r.Reference(plumbing.NewBranchReferenceName(ref), true); err == nil {
		return b.Hash(), nil
	}
	if plumbing.IsHash(ref) {
		return plumbing.NewHash(ref), nil
	}
	id, err := r.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%s: %w", ref, gitapi.ErrNotFound)
	}
	return *id, nil
}

func describe(s storage.Storer, c *object.Commit) (*gitapi.Commit, error) {
	out := &gitapi.Commit{
		ID:        types.Hash(c.Hash.String()),
		Tree:      types.Hash(c.TreeHash.String()),
		Message:   c.Message,
		Author:    gitapi.Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: gitapi.Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
	}
	for _, p := range c.ParentHashes {
		out.Parents = append(out.Parents, types.Hash(p.String()))
	}

	after, err := flatten(s, out.Tree)
	if err != nil {
		return nil, err
	}
	var before []gitapi.TreeEntry
	if len(c.ParentHashes) > 0 {
		parent, err := object.GetCommit(s, c.ParentHashes[0])
		if err != nil {
			return nil, fmt.Errorf("parent of %s: %w", c.Hash.String()[:8], err)
		}
		before, err = flatten(s, types.Hash(parent.TreeHash.String()))
		if err != nil {
			return nil, err
		}
	}
	out.Files = gitapi.DiffTrees(before, after)
	out.Stats = gitapi.Summarize(out.Files)
	return out, nil
}
