package meta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/types"

	"github.com/stretchr/testify/require"
)

const testRepo = "octo/hello"

// mockHash 生成合法的测试用 Hash
func mockHash(input string) types.Hash {
	sum := sha256.Sum256([]byte(input))
	return types.Hash(hex.EncodeToString(sum[:]))
}

// mustNewCommit 创建 Commit，失败直接终止测试
func mustNewCommit(t *testing.T, treeHash types.Hash, parents []types.Hash, author, msg string, when int64) *core.Commit {
	t.Helper()
	sig := core.NewSignature(author, author+"@example.com", time.Unix(when, 0))
	c, err := core.NewCommit(treeHash, parents, sig, sig, msg)
	require.NoError(t, err)
	return c
}

func mustIndexCommit(t *testing.T, repo *Repository, c *core.Commit, files ...FileRecord) {
	t.Helper()
	require.NoError(t, repo.IndexCommit(context.Background(), testRepo, c, files))
}

func mustUpdateRef(t *testing.T, repo *Repository, name string, newHash types.Hash, oldVersion int64, msgAndArgs ...any) {
	t.Helper()
	err := repo.UpdateRef(context.Background(), testRepo, name, newHash, oldVersion)
	require.NoError(t, err, msgAndArgs...)
}
