package pipeline

import (
	"fmt"
	"time"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"
)

// CommitFactory 组装待创建的 Commit
type CommitFactory struct {
	now func() time.Time
}

func NewCommitFactory(now func() time.Time) *CommitFactory {
	if now == nil {
		now = time.Now
	}
	return &CommitFactory{now: now}
}

// Build 生成 CommitSpec
// 父提交恰好一个：ReadTip 读到的分支 tip
// 未提供的身份保持 nil，由对象库使用默认身份
func (f *CommitFactory) Build(tree, parent types.Hash, message string, author, committer *gitapi.Signature) (gitapi.CommitSpec, error) {
	if tree.IsZero() {
		return gitapi.CommitSpec{}, fmt.Errorf("%w: tree id is empty", ErrInvalidRequest)
	}
	if parent.IsZero() {
		return gitapi.CommitSpec{}, fmt.Errorf("%w: parent commit is empty", ErrInvalidRequest)
	}

	// 同一次调用里 author 和 committer 共用一个时间点
	now := f.now()
	return gitapi.CommitSpec{
		Message:   message,
		Tree:      tree,
		Parents:   []types.Hash{parent},
		Author:    stamp(author, now),
		Committer: stamp(committer, now),
	}, nil
}

func stamp(sig *gitapi.Signature, now time.Time) *gitapi.Signature {
	if sig == nil {
		return nil
	}
	out := *sig
	if out.When.IsZero() {
		out.When = now
	}
	return &out
}
