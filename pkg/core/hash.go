package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"commitflow/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 规范化编码：同一个对象永远得到同一串字节，也就得到同一个 ID
var encOptions = cbor.EncOptions{
	Sort:          cbor.SortCanonical,
	ShortestFloat: cbor.ShortestFloatNone,
	Time:          cbor.TimeUnix,
	TimeTag:       cbor.EncTagNone,
	IndefLength:   cbor.IndefLengthForbidden,
	BigIntConvert: cbor.BigIntConvertShortest,
}

var em, _ = encOptions.EncMode()

// 解码侧同时承担防 DoS 的职责：限制容器大小和嵌套深度
var decOptions = cbor.DecOptions{
	// 扁平 Tree 的条目数就是仓库文件数，上限比纯目录树要宽
	MaxArrayElements: 1_000_000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的 Hash (CID) 和序列化数据
func CalculateHash(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal object: %w", err)
	}

	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:])), data, nil
}

// CalculateBlobHash 计算原始文件内容的 Hash
func CalculateBlobHash(data []byte) types.Hash {
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// Marshal 用规范化编码序列化任意值
func Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

// DecodeObject 通用的解码函数
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

// PeekType 探测序列化数据的对象类型
// Blob 是原始字节，解不出 header 时按 Blob 处理
func PeekType(data []byte) ObjectType {
	var header struct {
		TypeVal ObjectType `cbor:"t"`
	}
	if err := dm.Unmarshal(data, &header); err != nil {
		return TypeBlob
	}
	switch header.TypeVal {
	case TypeTree, TypeCommit:
		return header.TypeVal
	default:
		return TypeBlob
	}
}
