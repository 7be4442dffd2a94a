package rpc

import (
	"fmt"

	"commitflow/pkg/core"

	"google.golang.org/grpc/encoding"
)

// CodecName 是 gRPC content-subtype，线上 Content-Type 为 application/grpc+cbor
const CodecName = "cbor"

// cborCodec 复用 core 的确定性 CBOR 编码
type cborCodec struct{}

func (cborCodec) Name() string { return CodecName }

func (cborCodec) Marshal(v any) ([]byte, error) {
	b, err := core.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal %T: %w", v, err)
	}
	return b, nil
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	if err := core.DecodeObject(data, v); err != nil {
		return fmt.Errorf("cbor unmarshal %T: %w", v, err)
	}
	return nil
}

func init() {
	encoding.RegisterCodec(cborCodec{})
}
