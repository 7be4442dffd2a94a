// Package changeset 从本地文件、目录和清单文件收集一次提交的变更
package changeset

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/ignore"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/types"
)

// Set 是待提交的变更；后写入的同名路径覆盖先写入的
type Set struct {
	upserts   map[string]pipeline.Content
	deletions map[string]struct{}
}

func New() *Set {
	return &Set{
		upserts:   make(map[string]pipeline.Content),
		deletions: make(map[string]struct{}),
	}
}

// ContentOf 合法 UTF-8 按文本提交，否则按 base64 提交
func ContentOf(data []byte) pipeline.Content {
	if utf8.Valid(data) {
		return pipeline.Content{Data: data, Encoding: types.EncodingUTF8}
	}
	return pipeline.Binary(data)
}

func (s *Set) Put(repoPath string, c pipeline.Content) {
	delete(s.deletions, repoPath)
	s.upserts[repoPath] = c
}

func (s *Set) Delete(repoPath string) {
	delete(s.upserts, repoPath)
	s.deletions[repoPath] = struct{}{}
}

func (s *Set) Len() int { return len(s.upserts) + len(s.deletions) }

// Paths 返回所有涉及的路径 (排序)
func (s *Set) Paths() []string {
	out := make([]string, 0, s.Len())
	for p := range s.upserts {
		out = append(out, p)
	}
	for p := range s.deletions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AddFile 读取本地文件 local，以 repoPath 写入变更集
func (s *Set) AddFile(repoPath, local string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	s.Put(repoPath, ContentOf(data))
	return nil
}

// AddDir 遍历 root，把每个未被忽略的普通文件放到 prefix 下
// 返回加入的文件数
func (s *Set) AddDir(ctx context.Context, root, prefix string) (int, error) {
	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		return 0, fmt.Errorf("load ignore rules: %w", err)
	}

	count := 0
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if matcher.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if err := s.AddFile(path.Join(prefix, rel), p); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// Request 组装管线请求
func (s *Set) Request(repo types.RepoCoords, branch, message string, author, committer *gitapi.Signature) pipeline.Request {
	req := pipeline.Request{
		Repo:      repo,
		Branch:    branch,
		Message:   message,
		Upserts:   make(map[string]pipeline.Content, len(s.upserts)),
		Author:    author,
		Committer: committer,
	}
	for p, c := range s.upserts {
		req.Upserts[p] = c
	}
	for p := range s.deletions {
		req.Deletions = append(req.Deletions, p)
	}
	sort.Strings(req.Deletions)
	return req
}
