package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/storage"
	"commitflow/pkg/types"

	"github.com/redis/go-redis/v9"
)

const (
	seenPrefix = "cf:seen:" // 对象存在
	bodyPrefix = "cf:body:" // tree / commit 的序列化内容

	// DefaultMaxBody 超过这个大小的 tree 不进缓存
	DefaultMaxBody = 256 << 10
)

// CachedStore 在 storage.Store 前面放一层 Redis
//
// 对象按内容寻址、写入后不可变，所以缓存没有失效问题：
//   - Has / Put 查询 "cf:seen:<hash>"，重复提交同样的文件不再触达底层
//   - Get 对 tree 和 commit 缓存完整内容，log / show / 分支头解析会反复读取它们
//
// blob 内容从不缓存。
type CachedStore struct {
	backend storage.Store
	client  *redis.Client
	ttl     time.Duration
	maxBody int
	logger  *slog.Logger
}

type Config struct {
	RedisURL string        // redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 0 表示不过期
	MaxBody  int           // 0 使用 DefaultMaxBody
}

// NewCachedStore 连接 Redis 并立即 Ping，连不上直接报错
func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := Wrap(backend, client, cfg.TTL)
	if cfg.MaxBody > 0 {
		s.maxBody = cfg.MaxBody
	}
	return s, nil
}

// Wrap 用一个已有的客户端装饰 backend，不做连接检查
func Wrap(backend storage.Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     ttl,
		maxBody: DefaultMaxBody,
		logger:  slog.Default().With(slog.String("component", "redis-cache")),
	}
}

func (s *CachedStore) cacheable(typ core.ObjectType, size int) bool {
	return typ != core.TypeBlob && size <= s.maxBody
}

// Has 先查 Redis，未命中再查底层；Redis 故障时当作未命中
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	n, err := s.client.Exists(ctx, seenPrefix+string(hash), bodyPrefix+string(hash)).Result()
	switch {
	case err != nil:
		s.logger.Warn("cache lookup failed, falling back to backend", "hash", hash.Short(), "error", err)
	case n > 0:
		return true, nil
	}

	found, err := s.backend.Has(ctx, hash)
	if err != nil || !found {
		return found, err
	}
	s.markSeen(hash)
	return true, nil
}

// markSeen 在后台回填；上层 ctx 取消不影响回填
func (s *CachedStore) markSeen(hash types.Hash) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Set(ctx, seenPrefix+string(hash), "1", s.ttl).Err(); err != nil {
			s.logger.Debug("cache fill failed", "hash", hash.Short(), "error", err)
		}
	}()
}

// Put 已知存在的对象直接跳过；底层写成功后才记入缓存
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	id := obj.ID()
	exists, err := s.Has(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	data := obj.Bytes()
	pipe := s.client.Pipeline()
	pipe.Set(ctx, seenPrefix+string(id), "1", s.ttl)
	if s.cacheable(obj.Type(), len(data)) {
		pipe.Set(ctx, bodyPrefix+string(id), data, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("cache write failed", "hash", id.Short(), "error", err)
	}
	return nil
}

// Get 命中时直接返回缓存内容；未命中的 tree / commit 读完后回填
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	data, err := s.client.Get(ctx, bodyPrefix+string(hash)).Bytes()
	switch {
	case err == nil:
		return io.NopCloser(bytes.NewReader(data)), nil
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("cache read failed, falling back to backend", "hash", hash.Short(), "error", err)
	}

	rc, err := s.backend.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	// 只需要看开头就能判断类型，但大小要读完才知道；blob 照原样流式返回
	head := make([]byte, s.maxBody+1)
	n, err := io.ReadFull(rc, head)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF):
		rc.Close()
		body := head[:n]
		if s.cacheable(core.PeekType(body), n) {
			if err := s.client.Set(ctx, bodyPrefix+string(hash), body, s.ttl).Err(); err != nil {
				s.logger.Debug("cache fill failed", "hash", hash.Short(), "error", err)
			}
		}
		return io.NopCloser(bytes.NewReader(body)), nil
	case err != nil:
		rc.Close()
		return nil, err
	}

	// 比 maxBody 大：不缓存，把已读的部分拼回去
	return struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), rc), rc}, nil
}

func (s *CachedStore) ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, prefix)
}

// Close 同时关闭被装饰的存储 (如果它需要关闭)
func (s *CachedStore) Close() error {
	err := s.client.Close()
	if c, ok := s.backend.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
