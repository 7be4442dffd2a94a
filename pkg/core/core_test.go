package core

import (
	"encoding/hex"
	"testing"

	"commitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 1. Link 测试
// -----------------------------------------------------------------------------

func TestLink_Marshal_Compliance(t *testing.T) {
	link := NewLink(mockHash("test-content"))

	data, err := link.MarshalCBOR()
	require.NoError(t, err)

	// Tag 42 (0xd82a) + ByteString 33 bytes (0x5821) + Prefix (0x00)
	expectedPrefix := "d82a582100"
	assert.Equal(t, expectedPrefix, hex.EncodeToString(data)[:10], "Link 序列化必须包含 Tag 42 和 0x00 前缀")
}

func TestLink_Unmarshal_RoundTrip(t *testing.T) {
	originalHash := mockHash("round-trip-test")
	data, err := NewLink(originalHash).MarshalCBOR()
	require.NoError(t, err)

	var l2 Link
	require.NoError(t, l2.UnmarshalCBOR(data))
	assert.Equal(t, originalHash, l2.Hash)
}

func TestLink_SHA1_RoundTrip(t *testing.T) {
	// Git 风格的 40 字符 ID 同样可以作为 Link
	sha1 := types.Hash("0123456789abcdef0123456789abcdef01234567")
	data, err := NewLink(sha1).MarshalCBOR()
	require.NoError(t, err)

	var l Link
	require.NoError(t, l.UnmarshalCBOR(data))
	assert.Equal(t, sha1, l.Hash)
}

func TestLink_Unmarshal_Strictness(t *testing.T) {
	// Case A: 缺少 0x00 前缀
	badPrefixBytes, _ := hex.DecodeString("d82a5820" + string(mockHash("bad")))

	var l Link
	err := l.UnmarshalCBOR(badPrefixBytes)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing 0x00 multibase prefix")

	// Case B: 错误的 Tag (不是 42)
	wrongTagBytes, _ := hex.DecodeString("d82b582100" + string(mockHash("wrong")))
	assert.Error(t, l.UnmarshalCBOR(wrongTagBytes))
}

func TestLink_Marshal_InvalidHex(t *testing.T) {
	_, err := NewLink("not-hex").MarshalCBOR()
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// 2. Blob 测试
// -----------------------------------------------------------------------------

func TestBlob_Idempotent(t *testing.T) {
	b1 := NewBlob([]byte("hello"))
	b2 := NewBlob([]byte("hello"))
	assert.Equal(t, b1.ID(), b2.ID(), "相同内容必须得到相同 ID")
	assert.NotEqual(t, b1.ID(), NewBlob([]byte("hello!")).ID())
	assert.Equal(t, int64(5), b1.Size())
}

func TestDecodeContent(t *testing.T) {
	raw, err := DecodeContent([]byte("aGVsbG8="), types.EncodingBase64)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)

	raw, err = DecodeContent([]byte("hello"), types.EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)

	_, err = DecodeContent([]byte("%%%"), types.EncodingBase64)
	assert.Error(t, err)

	_, err = DecodeContent([]byte("x"), types.Encoding("utf-16"))
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------
// 3. Tree 测试
// -----------------------------------------------------------------------------

func TestTree_OrderIndependentHash(t *testing.T) {
	a := fileEntry("a.txt", "1")
	b := fileEntry("dir/b.txt", "2")

	t1, err := NewTree([]TreeEntry{a, b})
	require.NoError(t, err)
	t2, err := NewTree([]TreeEntry{b, a})
	require.NoError(t, err)

	assert.Equal(t, t1.ID(), t2.ID(), "条目顺序不应影响 Tree Hash")
	assert.Equal(t, "a.txt", t2.Entries[0].Path)
}

func TestTree_RejectsDuplicatePath(t *testing.T) {
	_, err := NewTree([]TreeEntry{fileEntry("a.txt", "1"), fileEntry("a.txt", "2")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tree entry")
}

func TestTree_RoundTrip(t *testing.T) {
	tree, err := NewTree([]TreeEntry{fileEntry("a.txt", "1"), fileEntry("b.txt", "2")})
	require.NoError(t, err)

	decoded, err := DecodeTree(tree.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tree.ID(), decoded.ID())
	assert.Equal(t, tree.Entries, decoded.Entries)
	assert.Equal(t, TypeTree, PeekType(tree.Bytes()))
}

func TestTree_Empty(t *testing.T) {
	tree, err := NewTree(nil)
	require.NoError(t, err)
	assert.True(t, tree.ID().IsValid())
}

// -----------------------------------------------------------------------------
// 4. Commit 测试
// -----------------------------------------------------------------------------

func TestCanonical_Encoding(t *testing.T) {
	c := mustNewCommit(t, mockHash("tree_root"), []types.Hash{mockHash("parent1")}, "message_test")

	decoded, err := DecodeCommit(c.Bytes())
	require.NoError(t, err)

	// 同一个对象的哈希必须永远一致
	assert.Equal(t, c.ID(), decoded.ID(), "Merkle DAG 哈希计算必须具备确定性")
	assert.Equal(t, []types.Hash{mockHash("parent1")}, decoded.ParentHashes())
	assert.Equal(t, "Alice", decoded.Author.Name)
	assert.Equal(t, int64(1700000000), decoded.Committer.When)
}

func TestCommit_ParentsAffectHash(t *testing.T) {
	c1 := mustNewCommit(t, mockHash("tree"), []types.Hash{mockHash("p1")}, "msg")
	c2 := mustNewCommit(t, mockHash("tree"), []types.Hash{mockHash("p2")}, "msg")
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestPeekType(t *testing.T) {
	c := mustNewCommit(t, mockHash("tree"), nil, "msg")
	assert.Equal(t, TypeCommit, PeekType(c.Bytes()))
	assert.Equal(t, TypeBlob, PeekType([]byte("plain text is a blob")))

	_, err := DecodeCommit([]byte("plain"))
	assert.Error(t, err)

	tree, err := NewTree(nil)
	require.NoError(t, err)
	_, err = DecodeCommit(tree.Bytes())
	assert.Error(t, err)
}
