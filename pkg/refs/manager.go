// Package refs 管理分支指针
// 分支是整个模型里唯一可变的东西，所有写操作都是 compare-and-swap
package refs

import (
	"context"
	"errors"
	"fmt"

	"commitflow/pkg/meta"
	"commitflow/pkg/types"
)

var (
	ErrNoBranch      = errors.New("branch not found")
	ErrStaleHead     = errors.New("branch has moved (stale head)")
	ErrBranchExists  = errors.New("branch already exists")
	ErrInvalidBranch = errors.New("invalid branch name")
)

type Manager struct {
	repo *meta.Repository
}

func NewManager(repo *meta.Repository) *Manager {
	return &Manager{repo: repo}
}

// Head 返回分支当前的提交和版本号
func (m *Manager) Head(ctx context.Context, repo types.RepoCoords, branch string) (types.Hash, int64, error) {
	ref, err := m.repo.GetRef(ctx, repo.String(), branch)
	if errors.Is(err, meta.ErrRefNotFound) {
		return "", 0, fmt.Errorf("%s@%s: %w", repo, branch, ErrNoBranch)
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read ref: %w", err)
	}
	return types.Hash(ref.CommitHash), ref.Version, nil
}

// Create 新建分支；分支已存在时返回 ErrBranchExists
func (m *Manager) Create(ctx context.Context, repo types.RepoCoords, branch string, head types.Hash) error {
	if branch == "" {
		return ErrInvalidBranch
	}
	err := m.repo.UpdateRef(ctx, repo.String(), branch, head, 0)
	if errors.Is(err, meta.ErrConcurrentUpdate) {
		return fmt.Errorf("%s@%s: %w", repo, branch, ErrBranchExists)
	}
	return err
}

// Advance 只有分支当前指向 expected 时才把它移到 next
//
// 1. 读出当前值和版本号，值不等于 expected 直接失败
// 2. 用版本号做 CAS，中间被别人改过也会失败
func (m *Manager) Advance(ctx context.Context, repo types.RepoCoords, branch string, next, expected types.Hash) error {
	cur, version, err := m.Head(ctx, repo, branch)
	if err != nil {
		return err
	}
	if cur != expected {
		return fmt.Errorf("%s@%s is at %s, expected %s: %w", repo, branch, cur.Short(), expected.Short(), ErrStaleHead)
	}

	err = m.repo.UpdateRef(ctx, repo.String(), branch, next, version)
	if errors.Is(err, meta.ErrConcurrentUpdate) {
		return fmt.Errorf("%s@%s: %w", repo, branch, ErrStaleHead)
	}
	return err
}

// List 返回分支名到提交的映射
func (m *Manager) List(ctx context.Context, repo types.RepoCoords) (map[string]types.Hash, error) {
	refs, err := m.repo.ListRefs(ctx, repo.String())
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Hash, len(refs))
	for _, r := range refs {
		out[r.Name] = types.Hash(r.CommitHash)
	}
	return out, nil
}
