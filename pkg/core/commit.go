package core

import (
	"fmt"
	"time"

	"commitflow/pkg/types"
)

// Signature 记录作者或提交者身份
type Signature struct {
	Name  string `cbor:"n"`
	Email string `cbor:"e"`
	When  int64  `cbor:"ts"` // Unix 时间戳
}

func NewSignature(name, email string, when time.Time) Signature {
	return Signature{Name: name, Email: email, When: when.Unix()}
}

func (s Signature) Time() time.Time { return time.Unix(s.When, 0).UTC() }

type Commit struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType `cbor:"t"`

	TreeCid Link   `cbor:"th"`
	Parents []Link `cbor:"p"`

	Author    Signature `cbor:"a"`
	Committer Signature `cbor:"c"`
	Message   string    `cbor:"m"`
}

func NewCommit(treeHash types.Hash, parents []types.Hash, author, committer Signature, msg string) (*Commit, error) {
	parentLinks := make([]Link, len(parents))
	for i, p := range parents {
		parentLinks[i] = NewLink(p)
	}

	c := &Commit{
		TypeVal:   TypeCommit,
		TreeCid:   NewLink(treeHash),
		Parents:   parentLinks,
		Author:    author,
		Committer: committer,
		Message:   msg,
	}
	if err := c.seal(); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeCommit 从存储字节还原 Commit，并校验类型
func DecodeCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := DecodeObject(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	if c.TypeVal != TypeCommit {
		return nil, fmt.Errorf("object is not a commit, got: %s", c.TypeVal)
	}
	if err := c.seal(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Commit) seal() error {
	h, b, err := CalculateHash(c)
	if err != nil {
		return err
	}
	c.hash = h
	c.rawBytes = b
	return nil
}

// ParentHashes 返回父节点 Hash 列表
func (c *Commit) ParentHashes() []types.Hash {
	out := make([]types.Hash, len(c.Parents))
	for i, p := range c.Parents {
		out[i] = p.Hash
	}
	return out
}

func (c *Commit) Type() ObjectType { return TypeCommit }
func (c *Commit) ID() types.Hash   { return c.hash }
func (c *Commit) Bytes() []byte    { return c.rawBytes }
