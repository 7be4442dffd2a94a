package core

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"commitflow/pkg/types"

	"github.com/stretchr/testify/require"
)

// mockHash 生成一个合法的 32 字节 Hex 字符串 (64字符长度)
// 用于满足 Link 对 Hex 格式的要求
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

var testSig = NewSignature("Alice", "alice@example.com", time.Unix(1700000000, 0))

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, treeHash types.Hash, parents []types.Hash, msg string, msgAndArgs ...any) *Commit {
	t.Helper()
	c, err := NewCommit(treeHash, parents, testSig, testSig, msg)
	require.NoError(t, err, msgAndArgs...)
	return c
}

func fileEntry(path, content string) TreeEntry {
	return TreeEntry{Path: path, Mode: "100644", Kind: "blob", Hash: NewLink(CalculateBlobHash([]byte(content)))}
}
