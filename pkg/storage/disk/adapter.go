package disk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"commitflow/pkg/core"
	"commitflow/pkg/storage"
	"commitflow/pkg/types"

	"github.com/klauspost/compress/zstd"
)

// Adapter 把对象以 zstd 压缩后保存在本地目录
type Adapter struct {
	rootPath string // 比如: /home/user/.cf/objects
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	once     sync.Once
}

func NewAdapter(root string) (*Adapter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	// EncodeAll / DecodeAll 可以被并发调用
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	return &Adapter{rootPath: root, enc: enc, dec: dec}, nil
}

// layout 返回哈希对应的物理路径
// 前 2 个字符作为子目录: "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(hash types.Hash) string {
	h := string(hash)
	if len(h) < 2 {
		return filepath.Join(s.rootPath, h)
	}
	return filepath.Join(s.rootPath, h[:2], h[2:])
}

func (s *Adapter) Put(ctx context.Context, obj core.Object) error {
	targetPath := s.layout(obj.ID())

	// 1. 已存在直接跳过
	if _, err := os.Stat(targetPath); err == nil {
		return nil
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// 2. 先写临时文件再 Rename，读者永远看不到半个对象
	tempFile, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	data := s.enc.EncodeAll(obj.Bytes(), nil)
	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	raw, err := os.ReadFile(s.layout(hash))
	if os.IsNotExist(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := s.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("object %s is corrupt: %w", hash.Short(), err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := os.Stat(s.layout(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ExpandHash 在分片目录里按前缀查找
func (s *Adapter) ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	if err := storage.CheckPrefix(prefix); err != nil {
		return "", err
	}
	p := string(prefix)
	shard := filepath.Join(s.rootPath, p[:2])

	entries, err := os.ReadDir(shard)
	if os.IsNotExist(err) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}

	var found types.Hash
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "tmp-") || !strings.HasPrefix(name, p[2:]) {
			continue
		}
		if found != "" {
			return "", storage.ErrAmbiguousHash
		}
		found = types.Hash(p[:2] + name)
	}
	if found == "" {
		return "", storage.ErrNotFound
	}
	return found, nil
}

// Close 释放 zstd 编解码器的后台 goroutine，之后不能再使用 Adapter
func (s *Adapter) Close() error {
	var err error
	s.once.Do(func() {
		s.dec.Close()
		err = s.enc.Close()
	})
	return err
}
