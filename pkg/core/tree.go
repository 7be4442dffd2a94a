package core

import (
	"fmt"
	"sort"

	"commitflow/pkg/types"
)

// TreeEntry 是扁平快照中的一条记录
// Path 是仓库内的完整相对路径 (posix 分隔)，不存在目录条目
type TreeEntry struct {
	Path string `cbor:"p"`
	Mode string `cbor:"m"`
	Kind string `cbor:"k"`
	Hash Link   `cbor:"h"`
}

type Tree struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType  `cbor:"t"`
	Entries []TreeEntry `cbor:"e"`
}

// NewTree 创建一个新的快照树
// 条目按路径排序，保证相同的文件集合得到相同的 Hash；重复路径直接拒绝
func NewTree(entries []TreeEntry) (*Tree, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Path == sorted[i-1].Path {
			return nil, fmt.Errorf("duplicate tree entry: %s", sorted[i].Path)
		}
	}
	for _, e := range sorted {
		if e.Path == "" {
			return nil, fmt.Errorf("tree entry with empty path")
		}
	}

	t := &Tree{
		TypeVal: TypeTree,
		Entries: sorted,
	}
	h, b, err := CalculateHash(t)
	if err != nil {
		return nil, err
	}
	t.hash = h
	t.rawBytes = b
	return t, nil
}

// DecodeTree 从存储字节还原 Tree，并校验类型
func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := DecodeObject(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if t.TypeVal != TypeTree {
		return nil, fmt.Errorf("object is not a tree, got: %s", t.TypeVal)
	}
	return NewTree(t.Entries)
}

func (t *Tree) Type() ObjectType { return TypeTree }
func (t *Tree) ID() types.Hash   { return t.hash }
func (t *Tree) Bytes() []byte    { return t.rawBytes }
