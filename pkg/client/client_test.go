package client

import (
	"context"
	"net"
	"testing"

	"commitflow/pkg/backend/gitrepo"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/server"
	"commitflow/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

var repo = types.RepoCoords{Owner: "octo", Name: "hello"}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	backend := gitrepo.New(gitrepo.Options{})
	_, err := backend.CreateBranch(context.Background(), repo, "main", "", nil)
	require.NoError(t, err)

	s, _ := server.New(pipeline.New(backend, pipeline.Options{}), nil)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := New("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Apply(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	commit, err := c.Apply(ctx, pipeline.Request{
		Repo: repo, Branch: "main", Message: "add",
		Upserts: map[string]pipeline.Content{"a.txt": pipeline.Text("a"), "b.txt": pipeline.Text("b")},
	}, "req-1")
	require.NoError(t, err)
	assert.Equal(t, 2, commit.Stats.Added)
	assert.Len(t, commit.Parents, 1)

	commit, err = c.Apply(ctx, pipeline.Request{
		Repo: repo, Branch: "main", Message: "mixed",
		Upserts:   map[string]pipeline.Content{"c.txt": pipeline.Text("c")},
		Deletions: []string{"a.txt"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, commit.Stats.Added)
	assert.Equal(t, 1, commit.Stats.Removed)
}

func TestClient_ErrorsKeepTheirKind(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Apply(ctx, pipeline.Request{Repo: repo, Branch: "ghost", Message: "x", Deletions: []string{"a"}}, "")
	assert.ErrorIs(t, err, pipeline.ErrBranchNotFound)

	_, err = c.Apply(ctx, pipeline.Request{Repo: repo, Branch: "main", Message: "x"}, "")
	assert.ErrorIs(t, err, pipeline.ErrInvalidRequest)
}
