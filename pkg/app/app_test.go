package app

import (
	"context"
	"path/filepath"
	"testing"

	"commitflow/pkg/pipeline"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitStore_Disk(t *testing.T) {
	// 1. Mock 配置
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("storage.type", "disk")
	viper.Set("storage.path", filepath.Join(t.TempDir(), "objects"))

	// 2. 调用私有函数 (因为我们在同一个包)
	store, err := initStore(context.Background())

	// 3. 验证
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestInitStore_S3_MissingBucket(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("storage.type", "s3")
	// 故意不设置 bucket

	store, err := initStore(context.Background())
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitStore_UnknownType(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("storage.type", "ftp") // 不支持的类型

	store, err := initStore(context.Background())
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestInitStore_BadRedisURL(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("storage.path", t.TempDir())
	viper.Set("redis.url", "not-a-url")

	_, err := initStore(context.Background())
	assert.Error(t, err)
}

// setup 把 viper 指向一个临时目录下的本地仓库
func setup(t *testing.T, backend string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	viper.Set("backend.type", backend)
	viper.Set("repo", "octo/hello")
	viper.Set("branch", "main")
	viper.Set("storage.path", filepath.Join(dir, "objects"))
	viper.Set("database.driver", "sqlite")
	viper.Set("git.path", filepath.Join(dir, "repos"))
	viper.Set("user.name", "Ada")
	viper.Set("user.email", "ada@example.com")
	viper.Set("log.level", "error")
}

func TestNewApp_Backends(t *testing.T) {
	for _, backend := range []string{"vault", "git"} {
		t.Run(backend, func(t *testing.T) {
			setup(t, backend)
			ctx := context.Background()

			a, err := NewApp(ctx)
			require.NoError(t, err)
			defer a.Close()

			assert.Equal(t, "octo/hello", a.Repo.String())
			require.NotNil(t, a.Identity)
			assert.Equal(t, "Ada", a.Identity.Name)

			// init → commit → log 走一遍
			branches, ok := a.Branches()
			require.True(t, ok)
			_, err = branches.CreateBranch(ctx, a.Repo, a.Branch, "", nil)
			require.NoError(t, err)

			c, err := a.Pipeline.CommitSingleFile(ctx, a.Repo, "a.txt", pipeline.Text("hi"), "add a", a.Branch, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, "Ada", c.Author.Name)

			history, ok := a.History()
			require.True(t, ok)
			log, err := history.Log(ctx, a.Repo, a.Branch, 0)
			require.NoError(t, err)
			require.Len(t, log, 2)
			assert.Equal(t, c.ID, log[0].ID)
		})
	}
}

func TestNewApp_VaultUsesSQLiteNextToObjects(t *testing.T) {
	setup(t, "vault")
	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Vault)
	assert.NotNil(t, a.Exporter)
	assert.FileExists(t, filepath.Join(filepath.Dir(viper.GetString("storage.path")), "meta.db"))
}

func TestNewApp_GitHub(t *testing.T) {
	setup(t, "github")
	viper.Set("github.token", "t")
	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.GitHub)
	_, ok := a.Branches()
	assert.False(t, ok)
	_, ok = a.History()
	assert.True(t, ok)
}

func TestNewApp_Remote(t *testing.T) {
	setup(t, "vault")
	viper.Set("remote", "localhost:1")
	a, err := NewApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Remote)
	assert.Nil(t, a.Backend)
	assert.Nil(t, a.Pipeline)
}

func TestNewApp_Errors(t *testing.T) {
	setup(t, "svn")
	_, err := NewApp(context.Background())
	assert.ErrorContains(t, err, "unsupported backend type")

	setup(t, "vault")
	viper.Set("repo", "nope")
	_, err = NewApp(context.Background())
	assert.Error(t, err)
}
