// pkg/types/common.go
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash 代表对象的唯一标识符 (Hex String)
// vault 后端使用 SHA-256 (64 字符)，Git / GitHub 后端使用 SHA-1 (40 字符)
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }
func (h Hash) IsValid() bool {
	if len(h) != 40 && len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// Short 返回便于打印的短哈希
func (h Hash) Short() string {
	if len(h) <= 8 {
		return string(h)
	}
	return string(h[:8])
}

type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// Encoding 是文件内容在请求中的编码方式
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingBase64 Encoding = "base64"
)

func (e Encoding) IsValid() bool {
	return e == EncodingUTF8 || e == EncodingBase64
}

// RepoCoords 定位远端托管平台上的一个仓库 (owner/name)
type RepoCoords struct {
	Owner string
	Name  string
}

func (r RepoCoords) String() string { return r.Owner + "/" + r.Name }

func (r RepoCoords) IsZero() bool { return r.Owner == "" && r.Name == "" }

// ParseRepoCoords 解析 "owner/name" 形式的仓库坐标
func ParseRepoCoords(s string) (RepoCoords, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoCoords{}, fmt.Errorf("invalid repository %q (want owner/name)", s)
	}
	return RepoCoords{Owner: owner, Name: name}, nil
}
