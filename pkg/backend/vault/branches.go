package vault

import (
	"context"
	"errors"
	"fmt"

	"commitflow/pkg/core"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/refs"
	"commitflow/pkg/storage"
	"commitflow/pkg/types"
)

// ErrBranchExists 创建的分支已经存在
var ErrBranchExists = refs.ErrBranchExists

// CreateBranch 新建分支
// from 为空时创建一个空树的根提交，这是新仓库唯一的无父提交
func (v *Vault) CreateBranch(ctx context.Context, repo types.RepoCoords, branch, from string, author *gitapi.Signature) (types.Hash, error) {
	var head types.Hash
	if from != "" {
		id, err := v.Resolve(ctx, repo, from)
		if err != nil {
			return "", err
		}
		if _, err := v.loadCommit(ctx, id); err != nil {
			return "", err
		}
		head = id
	} else {
		tree, err := v.CreateTree(ctx, repo, "", nil)
		if err != nil {
			return "", err
		}
		head, err = v.CreateCommit(ctx, repo, gitapi.CommitSpec{
			Message:   "Initial commit",
			Tree:      tree,
			Author:    author,
			Committer: author,
		})
		if err != nil {
			return "", err
		}
	}

	if err := v.refs.Create(ctx, repo, branch, head); err != nil {
		return "", err
	}
	return head, nil
}

// Branches 列出仓库的分支
func (v *Vault) Branches(ctx context.Context, repo types.RepoCoords) (map[string]types.Hash, error) {
	return v.refs.List(ctx, repo)
}

// Log 从 ref 出发沿第一父提交回溯，最多返回 limit 个 (<=0 表示不限制)
func (v *Vault) Log(ctx context.Context, repo types.RepoCoords, ref string, limit int) ([]*gitapi.Commit, error) {
	id, err := v.Resolve(ctx, repo, ref)
	if err != nil {
		return nil, err
	}

	var out []*gitapi.Commit
	for id != "" && (limit <= 0 || len(out) < limit) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := v.loadCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		desc, err := v.describe(ctx, repo, c)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)

		id = ""
		if len(c.Parents) > 0 {
			id = c.Parents[0].Hash
		}
	}
	return out, nil
}

// Object 是 cat 读到的原始对象
type Object struct {
	ID   types.Hash
	Type core.ObjectType
	Data []byte
}

// ReadObject 按完整或短哈希读取任意对象
func (v *Vault) ReadObject(ctx context.Context, ref string) (*Object, error) {
	id := types.Hash(ref)
	if !id.IsValid() {
		full, err := v.store.ExpandHash(ctx, types.HashPrefix(ref))
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", ref, gitapi.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		id = full
	}
	data, err := v.read(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Object{ID: id, Type: core.PeekType(data), Data: data}, nil
}
