package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"commitflow/pkg/core"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/storage"
	"commitflow/pkg/types"
)

// Exporter 从 vault 的对象存储里读出文件内容
type Exporter struct {
	store storage.Store
}

func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportFile 把 blob 的原始字节写入 w
func (e *Exporter) ExportFile(ctx context.Context, hash types.Hash, w io.Writer) error {
	r, err := e.store.Get(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to get blob %s: %w", hash.Short(), err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", hash.Short(), err)
	}
	return nil
}

// PrintObject 结构化对象按可读格式打印，blob 原样输出
func (e *Exporter) PrintObject(ctx context.Context, hash types.Hash, w io.Writer) error {
	data, err := storage.ReadAll(ctx, e.store, hash)
	if err != nil {
		return err
	}
	ok, err := PrintStructure(data, w)
	if err != nil || ok {
		return err
	}
	_, err = w.Write(data)
	return err
}

type RestoreCallback func(path string, hash types.Hash, size int64)

// RestoreTree 把扁平快照还原到 targetDir
// 可执行文件得到 0755；符号链接按链接还原；子模块被跳过
func (e *Exporter) RestoreTree(ctx context.Context, treeHash types.Hash, targetDir string, onRestore RestoreCallback) error {
	// 1. 读取 Tree
	data, err := storage.ReadAll(ctx, e.store, treeHash)
	if err != nil {
		return fmt.Errorf("failed to get tree %s: %w", treeHash.Short(), err)
	}
	tree, err := core.DecodeTree(data)
	if err != nil {
		return err
	}

	// 2. 逐个还原文件
	for _, entry := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if gitapi.FileMode(entry.Mode) == gitapi.ModeSubmodule {
			continue
		}

		clean, err := gitapi.CleanPath(entry.Path)
		if err != nil {
			return err
		}
		full := filepath.Join(targetDir, filepath.FromSlash(clean))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("failed to create dir for %s: %w", entry.Path, err)
		}

		blob, err := storage.ReadAll(ctx, e.store, entry.Hash.Hash)
		if err != nil {
			return fmt.Errorf("failed to get blob for %s: %w", entry.Path, err)
		}

		switch gitapi.FileMode(entry.Mode) {
		case gitapi.ModeSymlink:
			_ = os.Remove(full)
			err = os.Symlink(string(blob), full)
		case gitapi.ModeExecutable:
			err = os.WriteFile(full, blob, 0o755)
		default:
			err = os.WriteFile(full, blob, 0o644)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", full, err)
		}

		if onRestore != nil {
			onRestore(full, entry.Hash.Hash, int64(len(blob)))
		}
	}
	return nil
}
