package core

import (
	"encoding/base64"
	"fmt"

	"commitflow/pkg/types"
)

// Blob 是文件内容本身，它是 Merkle DAG 的叶子节点
// 与 Tree/Commit 不同，Blob 按原始字节存储，不做 CBOR 封装
type Blob struct {
	hash types.Hash
	data []byte
}

func NewBlob(data []byte) *Blob {
	return &Blob{
		hash: CalculateBlobHash(data),
		data: data,
	}
}

// DecodeContent 按声明的编码还原原始字节
// Hash 只依赖还原后的字节，所以同一内容无论用哪种编码提交都得到同一个 ID
func DecodeContent(content []byte, enc types.Encoding) ([]byte, error) {
	switch enc {
	case types.EncodingUTF8, "":
		return content, nil
	case types.EncodingBase64:
		out := make([]byte, base64.StdEncoding.DecodedLen(len(content)))
		n, err := base64.StdEncoding.Decode(out, content)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 content: %w", err)
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
}

func (b *Blob) Type() ObjectType { return TypeBlob }
func (b *Blob) ID() types.Hash   { return b.hash }
func (b *Blob) Bytes() []byte    { return b.data }
func (b *Blob) Size() int64      { return int64(len(b.data)) }
