package meta

import (
	"time"

	"gorm.io/datatypes"
)

// Ref 存储分支指针，按 (Repo, Name) 唯一
type Ref struct {
	Repo string `gorm:"primaryKey;type:varchar(255)"`
	// Name 是分支名，例如 "main"
	Name string `gorm:"primaryKey;type:varchar(255)"`

	CommitHash string `gorm:"type:varchar(64);not null"`

	// Version 用于乐观锁 (CAS)，每次更新 +1
	Version int64 `gorm:"not null;default:1"`

	UpdatedAt time.Time
}

// CommitModel 是 core.Commit 在数据库中的投影，用于 log 查询
// 提交内容本身仍以对象库里的 CBOR 为准
type CommitModel struct {
	Repo string `gorm:"primaryKey;type:varchar(255)"`
	Hash string `gorm:"primaryKey;type:varchar(64)"`

	AuthorName     string `gorm:"index;type:varchar(100)"`
	AuthorEmail    string `gorm:"type:varchar(255)"`
	CommitterName  string `gorm:"type:varchar(100)"`
	CommitterEmail string `gorm:"type:varchar(255)"`
	Message        string `gorm:"type:text"`
	Timestamp      int64  `gorm:"index"` // committer 时间

	TreeHash string `gorm:"type:varchar(64);not null"`

	// Parents ["hash1"]
	Parents datatypes.JSON

	// Files 是相对第一个父提交的文件变更 [{"path":..,"status":..,"id":..}]
	Files datatypes.JSON

	Added    int
	Modified int
	Removed  int

	CreatedAt time.Time
}

func (CommitModel) TableName() string {
	return "commits"
}

// FileRecord 是 Files 列里的一项
type FileRecord struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	ID     string `json:"id"`
}

// ObjectModel 记录对象库里对象的类型，用于校验树条目的引用
// 对象按内容寻址，同一个 hash 在所有仓库里类型相同，所以不分仓库
type ObjectModel struct {
	Hash string `gorm:"primaryKey;type:varchar(64)"`
	Type string `gorm:"type:varchar(16);not null"`
}

func (ObjectModel) TableName() string {
	return "objects"
}

// Models 返回需要迁移的全部模型
func Models() []any {
	return []any{&Ref{}, &CommitModel{}, &ObjectModel{}}
}
