package pipeline

import (
	"context"
	"sync"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"

	"golang.org/x/sync/errgroup"
)

// ContentAddresser 把文件内容换成对象库分配的 Blob ID
type ContentAddresser struct {
	store       gitapi.ObjectStore
	concurrency int
	dedupe      bool
}

func NewContentAddresser(store gitapi.ObjectStore, concurrency int, dedupe bool) *ContentAddresser {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ContentAddresser{store: store, concurrency: concurrency, dedupe: dedupe}
}

// Identify 创建一个 Blob；相同内容总是得到相同 ID
func (a *ContentAddresser) Identify(ctx context.Context, repo types.RepoCoords, c Content) (types.Hash, error) {
	id, err := a.store.CreateBlob(ctx, repo, c.Data, c.Encoding)
	if err != nil {
		return "", err
	}
	if id.IsZero() {
		return "", gitapi.ErrInvalidObject
	}
	return id, nil
}

// IdentifyAll 为每个变更文件创建 Blob
// 调用之间没有顺序依赖，按 concurrency 限流并发执行
// 任一失败会取消其余调用，返回的错误带上出错的路径
func (a *ContentAddresser) IdentifyAll(ctx context.Context, repo types.RepoCoords, changes map[string]Content) (map[string]types.Hash, error) {
	ids := make(map[string]types.Hash, len(changes))
	var mu sync.Mutex

	// 开启去重时，相同内容只上传一次
	type job struct {
		content Content
		paths   []string
	}
	var jobs []*job
	if a.dedupe {
		byContent := make(map[string]*job)
		for _, path := range sortedKeys(changes) {
			c := changes[path]
			key := string(c.Encoding) + "\x00" + string(c.Data)
			if j, ok := byContent[key]; ok {
				j.paths = append(j.paths, path)
				continue
			}
			j := &job{content: c, paths: []string{path}}
			byContent[key] = j
			jobs = append(jobs, j)
		}
	} else {
		for _, path := range sortedKeys(changes) {
			jobs = append(jobs, &job{content: changes[path], paths: []string{path}})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return newError(StateBuildTree, j.paths[0], nil, err)
			}
			id, err := a.Identify(gctx, repo, j.content)
			if err != nil {
				if ctx.Err() != nil {
					return newError(StateBuildTree, j.paths[0], nil, ctx.Err())
				}
				return newError(StateBuildTree, j.paths[0], ErrObjectCreationFailed, err)
			}
			mu.Lock()
			for _, p := range j.paths {
				ids[p] = id
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func sortedKeys(m map[string]Content) []string {
	p := plan{upserts: m}
	return p.paths()
}
