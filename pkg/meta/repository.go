package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRefNotFound      = errors.New("reference not found")
	ErrConcurrentUpdate = errors.New("concurrent update detected (CAS failed)")
	ErrCommitNotFound   = errors.New("commit not found in metadata")
)

// Repository 封装所有对 SQL 数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 引用管理 (Refs / Branches)
// -----------------------------------------------------------------------------

func (r *Repository) GetRef(ctx context.Context, repo, name string) (*Ref, error) {
	var ref Ref
	err := r.db.GetConn().WithContext(ctx).
		Where("repo = ? AND name = ?", repo, name).
		First(&ref).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRefNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListRefs 按名字排序列出仓库的全部分支
func (r *Repository) ListRefs(ctx context.Context, repo string) ([]Ref, error) {
	var refs []Ref
	err := r.db.GetConn().WithContext(ctx).
		Where("repo = ?", repo).
		Order("name").
		Find(&refs).Error
	return refs, err
}

// UpdateRef 原子更新引用 (Compare And Swap)
// oldVersion 为 0 表示创建；否则只有数据库里的版本等于 oldVersion 才会更新
func (r *Repository) UpdateRef(ctx context.Context, repo, name string, newHash types.Hash, oldVersion int64) error {
	return r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A. 首次创建
		if oldVersion == 0 {
			ref := Ref{
				Repo:       repo,
				Name:       name,
				CommitHash: newHash.String(),
				Version:    1,
			}
			if err := tx.Create(&ref).Error; err != nil {
				// PG 与 SQLite 的唯一约束错误形态不同
				if errors.Is(err, gorm.ErrDuplicatedKey) ||
					strings.Contains(err.Error(), "UNIQUE constraint failed") ||
					strings.Contains(err.Error(), "duplicate key") {
					return ErrConcurrentUpdate
				}
				return fmt.Errorf("failed to create ref: %w", err)
			}
			return nil
		}

		// B. UPDATE refs SET commit_hash = ?, version = version + 1
		//    WHERE repo = ? AND name = ? AND version = ?
		result := tx.Model(&Ref{}).
			Where("repo = ? AND name = ? AND version = ?", repo, name, oldVersion).
			Updates(map[string]any{
				"commit_hash": newHash.String(),
				"version":     gorm.Expr("version + 1"),
				"updated_at":  time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		// 影响行数为 0：版本不匹配，被人抢先改了
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// 2. 提交索引 (Commit Indexing)
// -----------------------------------------------------------------------------

// IndexCommit 把 core.Commit 投影到数据库，重复写入被忽略
func (r *Repository) IndexCommit(ctx context.Context, repo string, c *core.Commit, files []FileRecord) error {
	parentsJSON, err := json.Marshal(c.ParentHashes())
	if err != nil {
		return fmt.Errorf("failed to marshal parents: %w", err)
	}
	if files == nil {
		files = []FileRecord{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("failed to marshal files: %w", err)
	}

	model := CommitModel{
		Repo:           repo,
		Hash:           c.ID().String(),
		AuthorName:     c.Author.Name,
		AuthorEmail:    c.Author.Email,
		CommitterName:  c.Committer.Name,
		CommitterEmail: c.Committer.Email,
		Message:        c.Message,
		Timestamp:      c.Committer.When,
		TreeHash:       c.TreeCid.Hash.String(),
		Parents:        datatypes.JSON(parentsJSON),
		Files:          datatypes.JSON(filesJSON),
		CreatedAt:      c.Committer.Time(),
	}
	for _, f := range files {
		switch f.Status {
		case "added":
			model.Added++
		case "modified":
			model.Modified++
		case "removed":
			model.Removed++
		}
	}

	err = r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repo"}, {Name: "hash"}},
			DoNothing: true,
		}).
		Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to index commit: %w", err)
	}
	return nil
}

func (r *Repository) GetCommit(ctx context.Context, repo string, hash types.Hash) (*CommitModel, error) {
	var commit CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("repo = ? AND hash = ?", repo, hash.String()).
		First(&commit).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCommitNotFound
	}
	if err != nil {
		return nil, err
	}
	return &commit, nil
}

// FindCommitsByAuthor 按时间倒序返回某个作者的提交
func (r *Repository) FindCommitsByAuthor(ctx context.Context, repo, author string, limit int) ([]CommitModel, error) {
	var commits []CommitModel
	err := r.db.GetConn().WithContext(ctx).
		Where("repo = ? AND author_name = ?", repo, author).
		Order("timestamp DESC").
		Limit(limit).
		Find(&commits).Error
	return commits, err
}

// ParentHashes 解出 Parents 列
func (m *CommitModel) ParentHashes() ([]types.Hash, error) {
	var out []types.Hash
	if len(m.Parents) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.Parents, &out); err != nil {
		return nil, fmt.Errorf("commit %s: corrupt parents column: %w", m.Hash, err)
	}
	return out, nil
}

// FileRecords 解出 Files 列
func (m *CommitModel) FileRecords() ([]FileRecord, error) {
	var out []FileRecord
	if len(m.Files) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(m.Files, &out); err != nil {
		return nil, fmt.Errorf("commit %s: corrupt files column: %w", m.Hash, err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// 3. 对象类型 (Object Types)
// -----------------------------------------------------------------------------

// typeBatch 控制单条 SQL 的参数个数 (SQLite 默认上限 999)
const typeBatch = 400

// RecordObjects 记录对象类型，已有的记录保持不变
func (r *Repository) RecordObjects(ctx context.Context, objects map[types.Hash]core.ObjectType) error {
	if len(objects) == 0 {
		return nil
	}
	rows := make([]ObjectModel, 0, len(objects))
	for h, t := range objects {
		rows = append(rows, ObjectModel{Hash: h.String(), Type: string(t)})
	}
	// 固定插入顺序，并发写入时 PG 不会互相等待成环
	sort.Slice(rows, func(i, j int) bool { return rows[i].Hash < rows[j].Hash })

	err := r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "hash"}},
			DoNothing: true,
		}).
		CreateInBatches(rows, typeBatch/2).Error
	if err != nil {
		return fmt.Errorf("failed to record object types: %w", err)
	}
	return nil
}

// ObjectTypes 查询一批对象的类型；没有记录的 hash 不出现在结果里
func (r *Repository) ObjectTypes(ctx context.Context, hashes []types.Hash) (map[types.Hash]core.ObjectType, error) {
	out := make(map[types.Hash]core.ObjectType, len(hashes))
	for start := 0; start < len(hashes); start += typeBatch {
		end := min(start+typeBatch, len(hashes))
		keys := make([]string, 0, end-start)
		for _, h := range hashes[start:end] {
			keys = append(keys, h.String())
		}

		var rows []ObjectModel
		err := r.db.GetConn().WithContext(ctx).
			Where("hash IN ?", keys).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query object types: %w", err)
		}
		for _, row := range rows {
			out[types.Hash(row.Hash)] = core.ObjectType(row.Type)
		}
	}
	return out, nil
}
