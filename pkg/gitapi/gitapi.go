// Package gitapi defines the contract between the commit pipeline and a
// remote content-addressable object store.
//
// Backends decode their wire responses into the types below exactly once;
// nothing above this package sees an untyped response.
package gitapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"commitflow/pkg/types"
)

var (
	// ErrNotFound 对象、提交或分支不存在
	ErrNotFound = errors.New("object not found")
	// ErrInvalidObject 对象被远端拒绝 (内容非法、超限、引用了不存在的对象)
	ErrInvalidObject = errors.New("object rejected by store")
	// ErrConflict 分支在读取之后被移动了 (期望的旧值不匹配)
	ErrConflict = errors.New("reference has changed concurrently")
	// ErrRejected 权限不足或分支保护规则拒绝了更新
	ErrRejected = errors.New("reference update rejected")
)

type ObjectKind string

const (
	KindBlob   ObjectKind = "blob"
	KindTree   ObjectKind = "tree"
	KindCommit ObjectKind = "commit"
)

type FileMode string

const (
	ModeRegular    FileMode = "100644"
	ModeExecutable FileMode = "100755"
	ModeSymlink    FileMode = "120000"
	ModeSubmodule  FileMode = "160000"
	ModeDir        FileMode = "040000"
)

// TreeEntry 是扁平快照里的一条记录
type TreeEntry struct {
	Path string
	Mode FileMode
	Kind ObjectKind
	ID   types.Hash
}

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// CommitSpec 描述待创建的 Commit
// Author / Committer 为 nil 时由对象库填充默认身份
type CommitSpec struct {
	Message   string
	Tree      types.Hash
	Parents   []types.Hash
	Author    *Signature
	Committer *Signature
}

type FileStatus string

const (
	StatusAdded    FileStatus = "added"
	StatusModified FileStatus = "modified"
	StatusRemoved  FileStatus = "removed"
)

type FileChange struct {
	Path   string
	Status FileStatus
	ID     types.Hash // 变更后的内容 ID；removed 时为旧内容
}

type Stats struct {
	Added    int
	Modified int
	Removed  int
}

func (s Stats) Total() int { return s.Added + s.Modified + s.Removed }

// Commit 是重新读取到的完整提交记录
type Commit struct {
	ID        types.Hash
	Tree      types.Hash
	Parents   []types.Hash
	Message   string
	Author    Signature
	Committer Signature
	Files     []FileChange
	Stats     Stats
}

// ObjectStore 是管线依赖的全部远端原语
type ObjectStore interface {
	// CreateBlob 上传内容并返回其内容 ID；相同内容返回相同 ID
	CreateBlob(ctx context.Context, repo types.RepoCoords, content []byte, enc types.Encoding) (types.Hash, error)

	// GetTree 返回 treeID 对应的扁平快照 (已展开子目录)
	GetTree(ctx context.Context, repo types.RepoCoords, treeID types.Hash) ([]TreeEntry, error)

	// CreateTree 创建新 Tree；baseTreeID 非空时 entries 覆盖在 base 之上
	CreateTree(ctx context.Context, repo types.RepoCoords, baseTreeID types.Hash, entries []TreeEntry) (types.Hash, error)

	CreateCommit(ctx context.Context, repo types.RepoCoords, spec CommitSpec) (types.Hash, error)

	// GetCommit 接受分支名或提交 ID
	// 以 BranchRefPrefix 开头的名字只按分支解析，分支不存在时返回 ErrNotFound
	GetCommit(ctx context.Context, repo types.RepoCoords, branchOrSHA string) (*Commit, error)

	// UpdateRef 把分支从 expectedOld 移到 newCommit
	// 分支当前值不是 expectedOld 时返回 ErrConflict
	UpdateRef(ctx context.Context, repo types.RepoCoords, branch string, newCommit, expectedOld types.Hash) error
}

// BranchRefPrefix 把 GetCommit 的参数限定为分支
const BranchRefPrefix = "refs/heads/"

// BranchRef 返回分支的限定名
func BranchRef(branch string) string { return BranchRefPrefix + branch }

// ParseBranchRef 从限定名中取出分支名；不是限定名时返回 false
func ParseBranchRef(ref string) (string, bool) {
	return strings.CutPrefix(ref, BranchRefPrefix)
}
