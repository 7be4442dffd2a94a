// Package vault 是自带的对象库后端
// 对象以规范 CBOR 存在 storage.Store 里，分支和提交索引存在 SQL 里
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/meta"
	"commitflow/pkg/refs"
	"commitflow/pkg/storage"
	"commitflow/pkg/types"
)

// Options 控制 vault 的策略
type Options struct {
	// ProtectedBranches 中的分支拒绝一切更新
	ProtectedBranches []string
	// MaxBlobSize 单个 Blob 的字节上限，0 表示不限制
	MaxBlobSize int64
	// DefaultIdentity 在提交未指定 author / committer 时使用
	DefaultIdentity gitapi.Signature
	Now             func() time.Time
}

type Vault struct {
	store     storage.Store
	meta      *meta.Repository
	refs      *refs.Manager
	protected map[string]bool
	maxBlob   int64
	identity  gitapi.Signature
	now       func() time.Time
}

var _ gitapi.ObjectStore = (*Vault)(nil)

func New(store storage.Store, repo *meta.Repository, opts Options) *Vault {
	v := &Vault{
		store:     store,
		meta:      repo,
		refs:      refs.NewManager(repo),
		protected: make(map[string]bool, len(opts.ProtectedBranches)),
		maxBlob:   opts.MaxBlobSize,
		identity:  opts.DefaultIdentity,
		now:       opts.Now,
	}
	for _, b := range opts.ProtectedBranches {
		v.protected[b] = true
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.identity.Name == "" {
		v.identity = gitapi.Signature{Name: "commitflow", Email: "commitflow@localhost"}
	}
	return v
}

// =============================================================================
// gitapi.ObjectStore
// =============================================================================

func (v *Vault) CreateBlob(ctx context.Context, _ types.RepoCoords, content []byte, enc types.Encoding) (types.Hash, error) {
	raw, err := core.DecodeContent(content, enc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	if v.maxBlob > 0 && int64(len(raw)) > v.maxBlob {
		return "", fmt.Errorf("%w: blob of %d bytes exceeds limit of %d", gitapi.ErrInvalidObject, len(raw), v.maxBlob)
	}

	blob := core.NewBlob(raw)
	if err := v.store.Put(ctx, blob); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	if err := v.meta.RecordObjects(ctx, map[types.Hash]core.ObjectType{blob.ID(): core.TypeBlob}); err != nil {
		return "", err
	}
	return blob.ID(), nil
}

func (v *Vault) GetTree(ctx context.Context, _ types.RepoCoords, treeID types.Hash) ([]gitapi.TreeEntry, error) {
	tree, err := v.loadTree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return toAPIEntries(tree.Entries), nil
}

// CreateTree 在 base 上覆盖 entries，生成一个完整快照
// 所有被引用的 Blob 必须已经存在；同一路径不能既是文件又是目录
func (v *Vault) CreateTree(ctx context.Context, _ types.RepoCoords, baseTreeID types.Hash, entries []gitapi.TreeEntry) (types.Hash, error) {
	var base []gitapi.TreeEntry
	if !baseTreeID.IsZero() {
		t, err := v.loadTree(ctx, baseTreeID)
		if err != nil {
			if errors.Is(err, gitapi.ErrNotFound) {
				return "", fmt.Errorf("%w: base tree %s does not exist", gitapi.ErrInvalidObject, baseTreeID.Short())
			}
			return "", err
		}
		base = toAPIEntries(t.Entries)
	}

	for _, e := range entries {
		if err := checkEntry(e); err != nil {
			return "", err
		}
	}

	merged := gitapi.Overlay(base, entries)
	if dir, ok := gitapi.PathConflict(merged); ok {
		return "", fmt.Errorf("%w: %s is both a file and a directory", gitapi.ErrInvalidObject, dir)
	}
	learned, err := v.checkBlobs(ctx, entries)
	if err != nil {
		return "", err
	}

	coreEntries := make([]core.TreeEntry, len(merged))
	for i, e := range merged {
		coreEntries[i] = core.TreeEntry{
			Path: e.Path,
			Mode: string(e.Mode),
			Kind: string(e.Kind),
			Hash: core.NewLink(e.ID),
		}
	}
	tree, err := core.NewTree(coreEntries)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	if err := v.store.Put(ctx, tree); err != nil {
		return "", fmt.Errorf("store tree: %w", err)
	}
	learned[tree.ID()] = core.TypeTree
	if err := v.meta.RecordObjects(ctx, learned); err != nil {
		return "", err
	}
	return tree.ID(), nil
}

// checkEntry 校验条目本身 (路径、ID 格式、类型)
// 子模块 (KindCommit) 指向别的仓库，不做存在性校验
func checkEntry(e gitapi.TreeEntry) error {
	if _, err := gitapi.CleanPath(e.Path); err != nil {
		return fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	if !e.ID.IsValid() {
		return fmt.Errorf("%w: %s: malformed object id %q", gitapi.ErrInvalidObject, e.Path, e.ID)
	}
	switch e.Kind {
	case gitapi.KindBlob, gitapi.KindCommit:
		return nil
	default:
		return fmt.Errorf("%w: %s: unsupported entry kind %q", gitapi.ErrInvalidObject, e.Path, e.Kind)
	}
}

// checkBlobs 确认 blob 条目指向已存在的 blob
// 类型先查元数据库；没有记录的对象读出来判断，返回这些新判断出的类型
func (v *Vault) checkBlobs(ctx context.Context, entries []gitapi.TreeEntry) (map[types.Hash]core.ObjectType, error) {
	var ids []types.Hash
	seen := make(map[types.Hash]bool, len(entries))
	for _, e := range entries {
		if e.Kind == gitapi.KindBlob && !seen[e.ID] {
			seen[e.ID] = true
			ids = append(ids, e.ID)
		}
	}
	known, err := v.meta.ObjectTypes(ctx, ids)
	if err != nil {
		return nil, err
	}

	learned := make(map[types.Hash]core.ObjectType)
	for _, e := range entries {
		if e.Kind != gitapi.KindBlob {
			continue
		}
		typ, ok := known[e.ID]
		if !ok {
			data, err := v.read(ctx, e.ID)
			if errors.Is(err, gitapi.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s: blob %s does not exist", gitapi.ErrInvalidObject, e.Path, e.ID.Short())
			}
			if err != nil {
				return nil, err
			}
			typ = core.PeekType(data)
			known[e.ID] = typ
			learned[e.ID] = typ
		}
		if typ != core.TypeBlob {
			return nil, fmt.Errorf("%w: %s: %s is a %s, not a blob", gitapi.ErrInvalidObject, e.Path, e.ID.Short(), typ)
		}
	}
	return learned, nil
}

// CreateCommit 写入 Commit 对象并建立索引
func (v *Vault) CreateCommit(ctx context.Context, repo types.RepoCoords, spec gitapi.CommitSpec) (types.Hash, error) {
	tree, err := v.loadTree(ctx, spec.Tree)
	if err != nil {
		if errors.Is(err, gitapi.ErrNotFound) {
			return "", fmt.Errorf("%w: tree %s does not exist", gitapi.ErrInvalidObject, spec.Tree.Short())
		}
		return "", err
	}
	if len(spec.Parents) > 1 {
		return "", fmt.Errorf("%w: merge commits are not supported", gitapi.ErrInvalidObject)
	}

	var parentTree []core.TreeEntry
	for _, p := range spec.Parents {
		pc, err := v.loadCommit(ctx, p)
		if err != nil {
			if errors.Is(err, gitapi.ErrNotFound) {
				return "", fmt.Errorf("%w: parent %s does not exist", gitapi.ErrInvalidObject, p.Short())
			}
			return "", err
		}
		pt, err := v.loadTree(ctx, pc.TreeCid.Hash)
		if err != nil {
			return "", err
		}
		parentTree = pt.Entries
	}

	now := v.now()
	author := v.signature(spec.Author, now)
	committer := v.signature(spec.Committer, now)

	c, err := core.NewCommit(spec.Tree, spec.Parents, author, committer, spec.Message)
	if err != nil {
		return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	if err := v.store.Put(ctx, c); err != nil {
		return "", fmt.Errorf("store commit: %w", err)
	}
	if err := v.meta.RecordObjects(ctx, map[types.Hash]core.ObjectType{c.ID(): core.TypeCommit}); err != nil {
		return "", err
	}

	changes := gitapi.DiffTrees(toAPIEntries(parentTree), toAPIEntries(tree.Entries))
	if err := v.meta.IndexCommit(ctx, repo.String(), c, toRecords(changes)); err != nil {
		return "", err
	}
	return c.ID(), nil
}

func (v *Vault) signature(sig *gitapi.Signature, now time.Time) core.Signature {
	s := v.identity
	if sig != nil {
		s = *sig
	}
	if s.When.IsZero() {
		s.When = now
	}
	return core.NewSignature(s.Name, s.Email, s.When)
}

// GetCommit 接受分支名、完整提交 ID 或唯一前缀
func (v *Vault) GetCommit(ctx context.Context, repo types.RepoCoords, branchOrSHA string) (*gitapi.Commit, error) {
	id, err := v.Resolve(ctx, repo, branchOrSHA)
	if err != nil {
		return nil, err
	}
	c, err := v.loadCommit(ctx, id)
	if err != nil {
		return nil, err
	}
	return v.describe(ctx, repo, c)
}

// UpdateRef 用 CAS 推进分支
func (v *Vault) UpdateRef(ctx context.Context, repo types.RepoCoords, branch string, newCommit, expectedOld types.Hash) error {
	if v.protected[branch] {
		return fmt.Errorf("branch %s is protected: %w", branch, gitapi.ErrRejected)
	}
	if _, err := v.loadCommit(ctx, newCommit); err != nil {
		if errors.Is(err, gitapi.ErrNotFound) {
			return fmt.Errorf("%w: commit %s does not exist", gitapi.ErrInvalidObject, newCommit.Short())
		}
		return err
	}

	err := v.refs.Advance(ctx, repo, branch, newCommit, expectedOld)
	switch {
	case errors.Is(err, refs.ErrStaleHead):
		return fmt.Errorf("%w: %v", gitapi.ErrConflict, err)
	case errors.Is(err, refs.ErrNoBranch):
		return fmt.Errorf("%w: %v", gitapi.ErrNotFound, err)
	}
	return err
}

// =============================================================================
// 读取与辅助
// =============================================================================

// Resolve 把分支名或 (短) 哈希解析成提交 ID
// refs/heads/ 限定名只查分支
func (v *Vault) Resolve(ctx context.Context, repo types.RepoCoords, ref string) (types.Hash, error) {
	branch, only := gitapi.ParseBranchRef(ref)
	if !only {
		branch = ref
	}
	head, _, err := v.refs.Head(ctx, repo, branch)
	if err == nil {
		return head, nil
	}
	if !errors.Is(err, refs.ErrNoBranch) {
		return "", err
	}
	if only {
		return "", fmt.Errorf("branch %s: %w", branch, gitapi.ErrNotFound)
	}

	h := types.Hash(ref)
	if h.IsValid() {
		return h, nil
	}
	if len(ref) < storage.MinPrefixLen || !isHex(ref) {
		return "", fmt.Errorf("%s: %w", ref, gitapi.ErrNotFound)
	}
	full, err := v.store.ExpandHash(ctx, types.HashPrefix(ref))
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%s: %w", ref, gitapi.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", ref, err)
	}
	return full, nil
}

func (v *Vault) describe(ctx context.Context, repo types.RepoCoords, c *core.Commit) (*gitapi.Commit, error) {
	out := &gitapi.Commit{
		ID:        c.ID(),
		Tree:      c.TreeCid.Hash,
		Parents:   c.ParentHashes(),
		Message:   c.Message,
		Author:    toAPISignature(c.Author),
		Committer: toAPISignature(c.Committer),
	}

	// 优先用索引里的变更列表，索引缺失时现场计算
	if m, err := v.meta.GetCommit(ctx, repo.String(), c.ID()); err == nil {
		records, err := m.FileRecords()
		if err != nil {
			return nil, err
		}
		out.Files = fromRecords(records)
	} else if errors.Is(err, meta.ErrCommitNotFound) {
		files, err := v.diffAgainstParent(ctx, c)
		if err != nil {
			return nil, err
		}
		out.Files = files
	} else {
		return nil, err
	}
	out.Stats = gitapi.Summarize(out.Files)
	return out, nil
}

func (v *Vault) diffAgainstParent(ctx context.Context, c *core.Commit) ([]gitapi.FileChange, error) {
	tree, err := v.loadTree(ctx, c.TreeCid.Hash)
	if err != nil {
		return nil, err
	}
	var before []gitapi.TreeEntry
	if len(c.Parents) > 0 {
		pc, err := v.loadCommit(ctx, c.Parents[0].Hash)
		if err != nil {
			return nil, err
		}
		pt, err := v.loadTree(ctx, pc.TreeCid.Hash)
		if err != nil {
			return nil, err
		}
		before = toAPIEntries(pt.Entries)
	}
	return gitapi.DiffTrees(before, toAPIEntries(tree.Entries)), nil
}

func (v *Vault) read(ctx context.Context, id types.Hash) ([]byte, error) {
	data, err := storage.ReadAll(ctx, v.store, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("object %s: %w", id.Short(), gitapi.ErrNotFound)
	}
	return data, err
}

func (v *Vault) loadTree(ctx context.Context, id types.Hash) (*core.Tree, error) {
	data, err := v.read(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := core.DecodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	return t, nil
}

func (v *Vault) loadCommit(ctx context.Context, id types.Hash) (*core.Commit, error) {
	data, err := v.read(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := core.DecodeCommit(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
	}
	return c, nil
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func toAPIEntries(entries []core.TreeEntry) []gitapi.TreeEntry {
	out := make([]gitapi.TreeEntry, len(entries))
	for i, e := range entries {
		out[i] = gitapi.TreeEntry{
			Path: e.Path,
			Mode: gitapi.FileMode(e.Mode),
			Kind: gitapi.ObjectKind(e.Kind),
			ID:   e.Hash.Hash,
		}
	}
	return out
}

func toAPISignature(s core.Signature) gitapi.Signature {
	return gitapi.Signature{Name: s.Name, Email: s.Email, When: s.Time()}
}

func toRecords(changes []gitapi.FileChange) []meta.FileRecord {
	out := make([]meta.FileRecord, len(changes))
	for i, c := range changes {
		out[i] = meta.FileRecord{Path: c.Path, Status: string(c.Status), ID: c.ID.String()}
	}
	return out
}

func fromRecords(records []meta.FileRecord) []gitapi.FileChange {
	if len(records) == 0 {
		return nil
	}
	out := make([]gitapi.FileChange, len(records))
	for i, r := range records {
		out[i] = gitapi.FileChange{Path: r.Path, Status: gitapi.FileStatus(r.Status), ID: types.Hash(r.ID)}
	}
	return out
}
