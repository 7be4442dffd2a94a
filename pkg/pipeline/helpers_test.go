package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"

	"github.com/stretchr/testify/require"
)

var testRepo = types.RepoCoords{Owner: "octo", Name: "hello"}

// memStore 是一个内存对象库，带调用计数和故障注入
type memStore struct {
	mu      sync.Mutex
	blobs   map[types.Hash][]byte
	trees   map[types.Hash][]gitapi.TreeEntry
	commits map[types.Hash]*gitapi.Commit
	refs    map[string]types.Hash

	// noCAS 为 true 时 UpdateRef 忽略期望值 (模拟不做检查的远端)
	noCAS bool

	blobCalls   atomic.Int32
	treeCalls   atomic.Int32
	commitCalls atomic.Int32
	updateCalls atomic.Int32

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	blobDelay   time.Duration

	failBlob   func(content []byte) error
	failTree   error
	failCommit error
	failUpdate error
	failGet    func(branchOrSHA string) error
}

func newMemStore() *memStore {
	return &memStore{
		blobs:   make(map[types.Hash][]byte),
		trees:   make(map[types.Hash][]gitapi.TreeEntry),
		commits: make(map[types.Hash]*gitapi.Commit),
		refs:    make(map[string]types.Hash),
	}
}

func sum(parts ...string) types.Hash {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return types.Hash(hex.EncodeToString(h[:]))
}

func (s *memStore) CreateBlob(ctx context.Context, _ types.RepoCoords, content []byte, enc types.Encoding) (types.Hash, error) {
	s.blobCalls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.blobDelay > 0 {
		select {
		case <-time.After(s.blobDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	raw := content
	if enc == types.EncodingBase64 {
		dec, err := base64.StdEncoding.DecodeString(string(content))
		if err != nil {
			return "", fmt.Errorf("%w: %v", gitapi.ErrInvalidObject, err)
		}
		raw = dec
	}
	if s.failBlob != nil {
		if err := s.failBlob(raw); err != nil {
			return "", err
		}
	}

	id := sum("blob", string(raw))
	s.mu.Lock()
	s.blobs[id] = raw
	s.mu.Unlock()
	return id, nil
}

func (s *memStore) GetTree(_ context.Context, _ types.RepoCoords, treeID types.Hash) ([]gitapi.TreeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.trees[treeID]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", treeID, gitapi.ErrNotFound)
	}
	return append([]gitapi.TreeEntry(nil), entries...), nil
}

func (s *memStore) CreateTree(_ context.Context, _ types.RepoCoords, baseTreeID types.Hash, entries []gitapi.TreeEntry) (types.Hash, error) {
	s.treeCalls.Add(1)
	if s.failTree != nil {
		return "", s.failTree
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var base []gitapi.TreeEntry
	if !baseTreeID.IsZero() {
		b, ok := s.trees[baseTreeID]
		if !ok {
			return "", fmt.Errorf("base tree %s: %w", baseTreeID, gitapi.ErrInvalidObject)
		}
		base = b
	}
	for _, e := range entries {
		if _, ok := s.blobs[e.ID]; !ok && e.Kind == gitapi.KindBlob {
			return "", fmt.Errorf("blob %s: %w", e.ID, gitapi.ErrInvalidObject)
		}
	}
	merged := gitapi.Overlay(base, entries)
	parts := []string{"tree"}
	for _, e := range merged {
		parts = append(parts, string(e.Mode), e.Path, e.ID.String())
	}
	id := sum(parts...)
	s.trees[id] = merged
	return id, nil
}

func (s *memStore) CreateCommit(_ context.Context, _ types.RepoCoords, spec gitapi.CommitSpec) (types.Hash, error) {
	n := s.commitCalls.Add(1)
	if s.failCommit != nil {
		return "", s.failCommit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trees[spec.Tree]; !ok {
		return "", fmt.Errorf("tree %s: %w", spec.Tree, gitapi.ErrInvalidObject)
	}
	c := &gitapi.Commit{
		Tree:    spec.Tree,
		Parents: append([]types.Hash(nil), spec.Parents...),
		Message: spec.Message,
	}
	c.Author = defaultIdentity(spec.Author)
	c.Committer = defaultIdentity(spec.Committer)
	parts := []string{"commit", spec.Tree.String(), spec.Message, fmt.Sprint(n)}
	for _, p := range spec.Parents {
		parts = append(parts, p.String())
	}
	c.ID = sum(parts...)
	s.commits[c.ID] = c
	return c.ID, nil
}

func defaultIdentity(sig *gitapi.Signature) gitapi.Signature {
	if sig == nil {
		return gitapi.Signature{Name: "store-bot", Email: "bot@store.local", When: time.Unix(0, 0).UTC()}
	}
	return *sig
}

func (s *memStore) GetCommit(_ context.Context, _ types.RepoCoords, branchOrSHA string) (*gitapi.Commit, error) {
	if s.failGet != nil {
		if err := s.failGet(branchOrSHA); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var id types.Hash
	if branch, ok := gitapi.ParseBranchRef(branchOrSHA); ok {
		if id, ok = s.refs[branch]; !ok {
			return nil, fmt.Errorf("branch %s: %w", branch, gitapi.ErrNotFound)
		}
	} else if id, ok = s.refs[branchOrSHA]; !ok {
		id = types.Hash(branchOrSHA)
	}
	c, ok := s.commits[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", branchOrSHA, gitapi.ErrNotFound)
	}
	out := *c
	var before []gitapi.TreeEntry
	if len(c.Parents) > 0 {
		before = s.trees[s.commits[c.Parents[0]].Tree]
	}
	out.Files = gitapi.DiffTrees(before, s.trees[c.Tree])
	out.Stats = gitapi.Summarize(out.Files)
	return &out, nil
}

func (s *memStore) UpdateRef(_ context.Context, _ types.RepoCoords, branch string, newCommit, expectedOld types.Hash) error {
	s.updateCalls.Add(1)
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.refs[branch]
	if !ok {
		return fmt.Errorf("branch %s: %w", branch, gitapi.ErrNotFound)
	}
	if !s.noCAS && cur != expectedOld {
		return fmt.Errorf("branch %s at %s, expected %s: %w", branch, cur.Short(), expectedOld.Short(), gitapi.ErrConflict)
	}
	s.refs[branch] = newCommit
	return nil
}

// seed 建一个带初始提交的分支，返回 tip
func (s *memStore) seed(t *testing.T, branch string, files map[string]string) types.Hash {
	t.Helper()
	ctx := context.Background()
	var entries []gitapi.TreeEntry
	for path, content := range files {
		id, err := s.CreateBlob(ctx, testRepo, []byte(content), types.EncodingUTF8)
		require.NoError(t, err)
		entries = append(entries, gitapi.TreeEntry{Path: path, Mode: gitapi.ModeRegular, Kind: gitapi.KindBlob, ID: id})
	}
	tree, err := s.CreateTree(ctx, testRepo, "", entries)
	require.NoError(t, err)
	c, err := s.CreateCommit(ctx, testRepo, gitapi.CommitSpec{Message: "root", Tree: tree})
	require.NoError(t, err)
	s.mu.Lock()
	s.refs[branch] = c
	s.mu.Unlock()

	// seed 的调用不计入断言
	s.blobCalls.Store(0)
	s.treeCalls.Store(0)
	s.commitCalls.Store(0)
	return c
}

func (s *memStore) tip(branch string) types.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[branch]
}

// snapshot 把分支当前的树还原成 path → 内容
func (s *memStore) snapshot(t *testing.T, branch string) map[string]string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commits[s.refs[branch]]
	require.True(t, ok, "branch %s has no commit", branch)
	out := make(map[string]string)
	for _, e := range s.trees[c.Tree] {
		out[e.Path] = string(s.blobs[e.ID])
	}
	return out
}

func newTestPipeline(store gitapi.ObjectStore, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	return New(store, opts)
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}
