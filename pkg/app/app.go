// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"commitflow/pkg/backend/github"
	"commitflow/pkg/backend/gitrepo"
	"commitflow/pkg/backend/vault"
	"commitflow/pkg/client"
	"commitflow/pkg/config"
	"commitflow/pkg/exporter"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/identity"
	"commitflow/pkg/meta"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/storage"
	"commitflow/pkg/storage/cache"
	"commitflow/pkg/storage/disk"
	"commitflow/pkg/storage/s3"
	"commitflow/pkg/types"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// BranchCreator 能新建分支的后端 (vault, git)
type BranchCreator interface {
	CreateBranch(ctx context.Context, repo types.RepoCoords, branch, from string, author *gitapi.Signature) (types.Hash, error)
}

// History 能按第一父链列出提交的后端
type History interface {
	Log(ctx context.Context, repo types.RepoCoords, ref string, limit int) ([]*gitapi.Commit, error)
}

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务；按 backend.type 只有一组后端字段非空
type App struct {
	Logger   *slog.Logger
	Repo     types.RepoCoords
	Branch   string
	Identity *gitapi.Signature // 默认身份，可能为空

	Backend  gitapi.ObjectStore
	Pipeline *pipeline.Pipeline

	Vault    *vault.Vault
	Store    storage.Store
	Exporter *exporter.Exporter
	Git      *gitrepo.Backend
	GitHub   *github.Backend

	// Remote 非空时提交经由 cf-server 执行，本地不构建后端
	Remote *client.Client

	closers []io.Closer
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	logger, err := config.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}

	repo, err := types.ParseRepoCoords(viper.GetString("repo"))
	if err != nil {
		return nil, err
	}

	a := &App{Logger: logger, Repo: repo, Branch: viper.GetString("branch")}

	// 1. 默认身份：配置优先，其次 gitconfig
	wd, _ := os.Getwd()
	a.Identity, err = identity.Lookup(viper.GetViper(), identity.GitConfigPaths(wd)...)
	if err != nil && !errors.Is(err, identity.ErrNoIdentity) {
		return nil, err
	}

	// 2. 远程模式只需要一个 gRPC 客户端
	if addr := viper.GetString("remote"); addr != "" {
		c, err := client.New(addr)
		if err != nil {
			return nil, err
		}
		a.Remote = c
		a.closers = append(a.closers, c)
		return a, nil
	}

	// 3. 后端
	if err := a.initBackend(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	// 4. 管线
	a.Pipeline = pipeline.New(a.Backend, pipeline.Options{
		BlobConcurrency: viper.GetInt("pipeline.blob_concurrency"),
		DedupeBlobs:     viper.GetBool("pipeline.dedupe_blobs"),
		Logger:          logger,
	})
	return a, nil
}

func (a *App) initBackend(ctx context.Context) error {
	var ident gitapi.Signature
	if a.Identity != nil {
		ident = *a.Identity
	}

	switch kind := viper.GetString("backend.type"); kind {
	case "", "vault":
		store, err := initStore(ctx)
		if err != nil {
			return fmt.Errorf("failed to init storage: %w", err)
		}
		if c, ok := store.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
		db, err := initMeta(ctx)
		if err != nil {
			return fmt.Errorf("failed to init metadata: %w", err)
		}
		a.closers = append(a.closers, db)

		a.Store = store
		a.Exporter = exporter.NewExporter(store)
		a.Vault = vault.New(store, meta.NewRepository(db), vault.Options{
			ProtectedBranches: viper.GetStringSlice("vault.protected_branches"),
			MaxBlobSize:       viper.GetInt64("vault.max_blob_size"),
			DefaultIdentity:   ident,
		})
		a.Backend = a.Vault

	case "git":
		a.Git = gitrepo.New(gitrepo.Options{
			Root:              viper.GetString("git.path"),
			Bare:              viper.GetBool("git.bare"),
			ProtectedBranches: viper.GetStringSlice("git.protected_branches"),
			DefaultIdentity:   ident,
		})
		a.Backend = a.Git

	case "github":
		c, err := github.NewClient(github.Config{
			Token:     viper.GetString("github.token"),
			BaseURL:   viper.GetString("github.base_url"),
			UploadURL: viper.GetString("github.upload_url"),
			Timeout:   viper.GetDuration("github.timeout"),
		})
		if err != nil {
			return err
		}
		a.GitHub = github.New(c, a.Logger)
		a.Backend = a.GitHub

	default:
		return fmt.Errorf("unsupported backend type: %s", kind)
	}
	return nil
}

// initStore 按 storage.type 选择对象存储，redis.url 非空时套一层存在性缓存
func initStore(ctx context.Context) (storage.Store, error) {
	var store storage.Store
	switch kind := viper.GetString("storage.type"); kind {
	case "", "disk":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		d, err := disk.NewAdapter(path)
		if err != nil {
			return nil, err
		}
		store = d
	case "s3":
		s, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Prefix:          viper.GetString("s3.prefix"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", kind)
	}

	if url := viper.GetString("redis.url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("redis.ttl"),
			MaxBody:  viper.GetInt("redis.max_body"),
		})
		if err != nil {
			if c, ok := store.(io.Closer); ok {
				_ = c.Close()
			}
			return nil, err
		}
		return cached, nil
	}
	return store, nil
}

// initMeta 打开元数据库
func initMeta(ctx context.Context) (*meta.DB, error) {
	cfg := meta.Config{
		Driver:   viper.GetString("database.driver"),
		DSN:      viper.GetString("database.dsn"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.dbname"),
		SSLMode:  viper.GetString("database.sslmode"),
		LogSQL:   viper.GetBool("database.log_sql"),
	}
	// storePath: .../.cf/objects → .../.cf/meta.db
	if cfg.Driver == "sqlite" && cfg.DSN == "" {
		root := filepath.Dir(viper.GetString("storage.path"))
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, err
		}
		cfg.DSN = filepath.Join(root, "meta.db")
	}
	return meta.NewDB(ctx, cfg)
}

// Branches 返回支持建分支的后端
func (a *App) Branches() (BranchCreator, bool) {
	b, ok := a.Backend.(BranchCreator)
	return b, ok
}

// History 返回支持列出历史的后端
func (a *App) History() (History, bool) {
	h, ok := a.Backend.(History)
	return h, ok
}

// Close 逆序释放所有资源
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
