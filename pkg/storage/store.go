// Package storage 保存 vault 后端的内容寻址对象
package storage

import (
	"context"
	"errors"
	"io"

	"commitflow/pkg/core"
	"commitflow/pkg/types"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAmbiguousHash  = errors.New("ambiguous hash prefix")
	ErrPrefixTooShort = errors.New("hash prefix too short")
)

// MinPrefixLen 是 ExpandHash 接受的最短前缀
const MinPrefixLen = 4

// Store 是对象存储后端 (本地磁盘、S3 等) 的统一接口
// 对象按 ID 写入，写入是幂等的，对象从不被修改或删除
type Store interface {
	// Put 持久化一个对象；已存在时直接返回
	Put(ctx context.Context, obj core.Object) error

	// Get 读取对象的序列化数据
	Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error)

	Has(ctx context.Context, hash types.Hash) (bool, error)

	// ExpandHash 把短哈希扩展为完整哈希
	// 没有匹配返回 ErrNotFound，多个匹配返回 ErrAmbiguousHash
	ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error)
}

// ReadAll 读取并关闭对象
func ReadAll(ctx context.Context, s Store, hash types.Hash) ([]byte, error) {
	rc, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// CheckPrefix 校验短哈希的长度
func CheckPrefix(prefix types.HashPrefix) error {
	if len(prefix) < MinPrefixLen {
		return ErrPrefixTooShort
	}
	return nil
}
