package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrBranchNotFound 目标分支不存在 (ReadTip 失败)
	ErrBranchNotFound = errors.New("branch not found")
	// ErrObjectCreationFailed blob / tree / commit 创建被对象库拒绝
	ErrObjectCreationFailed = errors.New("object creation failed")
	// ErrRefUpdateConflict 分支在 ReadTip 之后被移动了，调用方需要从 ReadTip 重新开始
	ErrRefUpdateConflict = errors.New("ref update conflict")
	// ErrRefUpdateRejected 权限或分支保护规则拒绝了更新
	ErrRefUpdateRejected = errors.New("ref update rejected")
	// ErrInvalidRequest 请求本身不合法，不会触达对象库
	ErrInvalidRequest = errors.New("invalid request")
)

// Error 是管线所有失败的统一形态
// Err 同时包装了分类哨兵和底层原因，errors.Is 对两者都成立
type Error struct {
	State State  // 失败发生的状态
	Path  string // 与失败相关的文件路径 (可能为空)
	Err   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("commit pipeline: %s %s: %v", e.State, e.Path, e.Err)
	}
	return fmt.Sprintf("commit pipeline: %s: %v", e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newError 组合分类和原因
func newError(state State, path string, kind, cause error) *Error {
	err := kind
	switch {
	case kind == nil:
		err = cause
	case cause != nil:
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &Error{State: state, Path: path, Err: err}
}

// StateOf 取出失败发生时的状态；err 不是管线错误时 ok 为 false
func StateOf(err error) (State, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.State, true
	}
	return StateFailed, false
}
