// Package treebuilder 把扁平的路径列表还原成分层的目录树
package treebuilder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"
)

// ErrPathConflict 同一个路径既是文件又是目录
var ErrPathConflict = errors.New("path is both a file and a directory")

// Entry 是一层目录里的一个条目，Name 不含 "/"
type Entry struct {
	Name string
	Mode gitapi.FileMode
	Kind gitapi.ObjectKind
	ID   types.Hash
}

// WriteFunc 持久化一层目录，返回它的 ID
// entries 已按名字排序；子目录总是先于父目录写入
type WriteFunc func(ctx context.Context, entries []Entry) (types.Hash, error)

type Builder struct {
	write WriteFunc
}

func NewBuilder(write WriteFunc) *Builder {
	return &Builder{write: write}
}

// Build 返回根目录的 ID
func (b *Builder) Build(ctx context.Context, files []gitapi.TreeEntry) (types.Hash, error) {
	// 1. 在内存中构建目录结构
	root := newDirNode("")
	for _, f := range files {
		if err := root.addFile(f); err != nil {
			return "", err
		}
	}
	// 2. 自底向上写入
	return b.writeNode(ctx, root)
}

// -----------------------------------------------------------------------------
// 内存树节点
// -----------------------------------------------------------------------------

type node struct {
	name     string
	isDir    bool
	children map[string]*node // 仅目录有效
	file     gitapi.TreeEntry // 仅文件有效
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		isDir:    true,
		children: make(map[string]*node),
	}
}

// addFile 插入 "a/b/c.txt"：依次创建 a、b，再在 b 下放 c.txt
func (n *node) addFile(f gitapi.TreeEntry) error {
	parts := strings.Split(f.Path, "/")
	current := n

	for i, part := range parts[:len(parts)-1] {
		child, exists := current.children[part]
		if !exists {
			child = newDirNode(part)
			current.children[part] = child
		}
		if !child.isDir {
			return fmt.Errorf("%s: %w", strings.Join(parts[:i+1], "/"), ErrPathConflict)
		}
		current = child
	}

	name := parts[len(parts)-1]
	if existing, ok := current.children[name]; ok && existing.isDir {
		return fmt.Errorf("%s: %w", f.Path, ErrPathConflict)
	}
	current.children[name] = &node{name: name, file: f}
	return nil
}

func (b *Builder) writeNode(ctx context.Context, n *node) (types.Hash, error) {
	if !n.isDir {
		return n.file.ID, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		child := n.children[name]
		id, err := b.writeNode(ctx, child)
		if err != nil {
			return "", err
		}

		e := Entry{Name: name, ID: id, Mode: gitapi.ModeDir, Kind: gitapi.KindTree}
		if !child.isDir {
			e.Mode = child.file.Mode
			e.Kind = child.file.Kind
		}
		entries = append(entries, e)
	}

	id, err := b.write(ctx, entries)
	if err != nil {
		return "", fmt.Errorf("failed to write tree %q: %w", n.name, err)
	}
	return id, nil
}
