package core

import "commitflow/pkg/types"

// ObjectType 定义了 vault 对象库中的对象类型
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"   // 文件内容 (叶子节点)
	TypeTree   ObjectType = "tree"   // 扁平的路径快照
	TypeCommit ObjectType = "commit" // 版本快照
)

// Object 是所有 Merkle DAG 节点的通用接口
type Object interface {
	// Type 返回对象类型
	Type() ObjectType

	// ID 返回对象的哈希值 (CID)
	ID() types.Hash

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}
