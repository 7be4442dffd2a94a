package changeset

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"commitflow/pkg/ignore"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repo = types.RepoCoords{Owner: "octo", Name: "hello"}

func write(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func TestContentOf(t *testing.T) {
	c := ContentOf([]byte("héllo"))
	assert.Equal(t, types.EncodingUTF8, c.Encoding)
	assert.Equal(t, "héllo", string(c.Data))

	raw := []byte{0xff, 0x00, 0xfe}
	c = ContentOf(raw)
	assert.Equal(t, types.EncodingBase64, c.Encoding)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), string(c.Data))
}

func TestSet_LastWriteWins(t *testing.T) {
	s := New()
	s.Put("a", pipeline.Text("1"))
	s.Delete("a")
	s.Put("b", pipeline.Text("2"))
	s.Delete("c")
	s.Put("c", pipeline.Text("3"))

	req := s.Request(repo, "main", "msg", nil, nil)
	assert.Equal(t, map[string]pipeline.Content{"b": pipeline.Text("2"), "c": pipeline.Text("3")}, req.Upserts)
	assert.Equal(t, []string{"a"}, req.Deletions)
	assert.Equal(t, []string{"a", "b", "c"}, s.Paths())
	assert.Equal(t, 3, s.Len())
}

func TestSet_AddDir(t *testing.T) {
	root := t.TempDir()
	write(t, root, "README.md", "# hi")
	write(t, root, "src/main.go", "package main")
	write(t, root, "build/out.bin", "x")
	write(t, root, "debug.log", "noise")
	write(t, root, ".git/HEAD", "ref: refs/heads/main")
	write(t, root, ignore.FileName, "build\n*.log\n")

	s := New()
	n, err := s.AddDir(context.Background(), root, "site")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"site/.cfignore", "site/README.md", "site/src/main.go"}, s.Paths())
}

func TestSet_AddDirCancelled(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().AddDir(ctx, root, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "notes/readme.md", "from disk")
	write(t, dir, "changes.toml", `
message = "docs refresh"
branch = "main"
author = "Ada <ada@example.com>"
delete = ["old.txt"]

[[file]]
path = "docs/readme.md"
source = "notes/readme.md"

[[file]]
path = "VERSION"
content = "1.2.0\n"

[[file]]
path = "logo.bin"
content = "AAEC"
encoding = "base64"
`)

	m, err := LoadManifest(filepath.Join(dir, "changes.toml"))
	require.NoError(t, err)
	assert.Equal(t, "docs refresh", m.Message)
	assert.Equal(t, "main", m.Branch)

	s := New()
	require.NoError(t, m.Apply(s))
	req := s.Request(repo, m.Branch, m.Message, nil, nil)
	assert.Equal(t, "from disk", string(req.Upserts["docs/readme.md"].Data))
	assert.Equal(t, pipeline.Text("1.2.0\n"), req.Upserts["VERSION"])
	assert.Equal(t, types.EncodingBase64, req.Upserts["logo.bin"].Encoding)
	assert.Equal(t, []string{"old.txt"}, req.Deletions)

	author, committer, err := m.Identities()
	require.NoError(t, err)
	assert.Equal(t, "Ada", author.Name)
	assert.Nil(t, committer)
}

func TestManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	write(t, dir, "unknown.toml", "message = \"x\"\nbrnach = \"main\"\n")
	_, err := LoadManifest(filepath.Join(dir, "unknown.toml"))
	assert.ErrorContains(t, err, "brnach")

	write(t, dir, "both.toml", "[[file]]\npath = \"a\"\nsource = \"x\"\ncontent = \"y\"\n")
	m, err := LoadManifest(filepath.Join(dir, "both.toml"))
	require.NoError(t, err)
	assert.ErrorContains(t, m.Apply(New()), "mutually exclusive")

	write(t, dir, "enc.toml", "[[file]]\npath = \"a\"\ncontent = \"y\"\nencoding = \"latin-1\"\n")
	m, err = LoadManifest(filepath.Join(dir, "enc.toml"))
	require.NoError(t, err)
	assert.ErrorContains(t, m.Apply(New()), "unsupported encoding")
}
