package treebuilder

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func file(path, id string) gitapi.TreeEntry {
	return gitapi.TreeEntry{Path: path, Mode: gitapi.ModeRegular, Kind: gitapi.KindBlob, ID: types.Hash(id)}
}

// recorder 记录每次写入的目录内容
type recorder struct {
	written []string
}

func (r *recorder) write(_ context.Context, entries []Entry) (types.Hash, error) {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s:%s:%s", e.Name, e.Kind, e.ID)
	}
	desc := strings.Join(parts, ",")
	r.written = append(r.written, desc)
	return types.Hash(fmt.Sprintf("t%d", len(r.written))), nil
}

func TestTreeBuilder(t *testing.T) {
	// root
	//  ├── a.txt
	//  └── sub
	//       ├── b.txt
	//       └── deep
	//            └── c.txt
	rec := &recorder{}
	root, err := NewBuilder(rec.write).Build(context.Background(), []gitapi.TreeEntry{
		file("sub/deep/c.txt", "C"),
		file("a.txt", "A"),
		file("sub/b.txt", "B"),
	})
	require.NoError(t, err)

	// 子目录先写
	assert.Equal(t, []string{
		"c.txt:blob:C",
		"b.txt:blob:B,deep:tree:t1",
		"a.txt:blob:A,sub:tree:t2",
	}, rec.written)
	assert.Equal(t, types.Hash("t3"), root)
}

func TestTreeBuilder_Empty(t *testing.T) {
	rec := &recorder{}
	root, err := NewBuilder(rec.write).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.Hash("t1"), root)
	assert.Equal(t, []string{""}, rec.written)
}

func TestTreeBuilder_KeepsModes(t *testing.T) {
	var got []Entry
	_, err := NewBuilder(func(_ context.Context, entries []Entry) (types.Hash, error) {
		got = entries
		return "root", nil
	}).Build(context.Background(), []gitapi.TreeEntry{
		{Path: "run.sh", Mode: gitapi.ModeExecutable, Kind: gitapi.KindBlob, ID: "x"},
		{Path: "mod", Mode: gitapi.ModeSubmodule, Kind: gitapi.KindCommit, ID: "y"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Name: "mod", Mode: gitapi.ModeSubmodule, Kind: gitapi.KindCommit, ID: "y"},
		{Name: "run.sh", Mode: gitapi.ModeExecutable, Kind: gitapi.KindBlob, ID: "x"},
	}, got)
}

func TestTreeBuilder_PathConflict(t *testing.T) {
	rec := &recorder{}
	b := NewBuilder(rec.write)

	_, err := b.Build(context.Background(), []gitapi.TreeEntry{file("a", "1"), file("a/b", "2")})
	assert.ErrorIs(t, err, ErrPathConflict)

	_, err = b.Build(context.Background(), []gitapi.TreeEntry{file("a/b", "2"), file("a", "1")})
	assert.ErrorIs(t, err, ErrPathConflict)
	assert.Empty(t, rec.written)
}
