package pipeline

import (
	"context"
	"errors"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"
)

// RefPublisher 推进分支指针，这是整个管线唯一对外可见的写操作
type RefPublisher struct {
	store gitapi.ObjectStore
}

func NewRefPublisher(store gitapi.ObjectStore) *RefPublisher {
	return &RefPublisher{store: store}
}

// Advance 把 branch 从 expectedTip 移到 newCommit
// 冲突不在这里重试：调用方必须从 ReadTip 重新开始
func (p *RefPublisher) Advance(ctx context.Context, repo types.RepoCoords, branch string, newCommit, expectedTip types.Hash) error {
	err := p.store.UpdateRef(ctx, repo, branch, newCommit, expectedTip)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gitapi.ErrConflict), errors.Is(err, gitapi.ErrNotFound):
		// 分支被移动或被删除，都意味着 tip 已经过期
		return newError(StatePublishRef, "", ErrRefUpdateConflict, err)
	case errors.Is(err, gitapi.ErrRejected):
		return newError(StatePublishRef, "", ErrRefUpdateRejected, err)
	default:
		return newError(StatePublishRef, "", nil, err)
	}
}
