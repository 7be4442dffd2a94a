package github

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	gh "github.com/google/go-github/v72/github"
)

// fakeGitHub 是 Git Data API 的一个内存实现，只覆盖后端用到的端点
type fakeGitHub struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	trees     map[string][]fakeEntry // 扁平，只含文件
	commits   map[string]fakeCommit
	refs      map[string]string
	protected map[string]bool

	// beforePatch 在处理 PATCH ref 之前调用 (不持锁)
	beforePatch func()
	requests    map[string]int
}

type fakeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type fakeAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date,omitempty"`
}

type fakeCommit struct {
	Message   string      `json:"message"`
	Tree      string      `json:"tree"`
	Parents   []string    `json:"parents"`
	Author    *fakeAuthor `json:"author,omitempty"`
	Committer *fakeAuthor `json:"committer,omitempty"`
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *gh.Client) {
	t.Helper()
	f := &fakeGitHub{
		blobs:     map[string][]byte{},
		trees:     map[string][]fakeEntry{},
		commits:   map[string]fakeCommit{},
		refs:      map[string]string{},
		protected: map[string]bool{},
		requests:  map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/blobs", f.createBlob)
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/trees/{sha}", f.getTree)
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/trees", f.createTree)
	mux.HandleFunc("POST /repos/{owner}/{repo}/git/commits", f.createCommit)
	mux.HandleFunc("GET /repos/{owner}/{repo}/commits", f.listCommits)
	mux.HandleFunc("GET /repos/{owner}/{repo}/commits/{ref}", f.getCommit)
	mux.HandleFunc("GET /repos/{owner}/{repo}/git/ref/heads/{branch...}", f.getRef)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/git/refs/heads/{branch...}", f.updateRef)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client := gh.NewClient(srv.Client())
	base, _ := url.Parse(srv.URL + "/")
	client.BaseURL = base
	return f, client
}

func reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, code int, msg string) {
	reply(w, code, map[string]string{"message": msg})
}

func (f *fakeGitHub) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method+" "+path]
}

// -----------------------------------------------------------------------------
// 对象
// -----------------------------------------------------------------------------

func (f *fakeGitHub) putBlob(data []byte) string {
	sha := plumbing.ComputeHash(plumbing.BlobObject, data).String()
	f.blobs[sha] = data
	return sha
}

func (f *fakeGitHub) putTree(entries []fakeEntry) string {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	raw, _ := json.Marshal(entries)
	sha := plumbing.ComputeHash(plumbing.TreeObject, raw).String()
	f.trees[sha] = entries
	return sha
}

func (f *fakeGitHub) putCommit(c fakeCommit) string {
	raw, _ := json.Marshal(c)
	sha := plumbing.ComputeHash(plumbing.CommitObject, raw).String()
	f.commits[sha] = c
	return sha
}

// seed 直接在 fake 里建一个分支
func (f *fakeGitHub) seed(branch string, files map[string]string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []fakeEntry
	for p, c := range files {
		entries = append(entries, fakeEntry{Path: p, Mode: "100644", Type: "blob", SHA: f.putBlob([]byte(c))})
	}
	sha := f.putCommit(fakeCommit{
		Message: "seed",
		Tree:    f.putTree(entries),
		Author:  &fakeAuthor{Name: "octocat", Email: "octocat@github.com", Date: "2024-01-01T00:00:00Z"},
	})
	f.refs[branch] = sha
	return sha
}

func (f *fakeGitHub) files(branch string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, e := range f.trees[f.commits[f.refs[branch]].Tree] {
		out[e.Path] = string(f.blobs[e.SHA])
	}
	return out
}

func (f *fakeGitHub) createBlob(w http.ResponseWriter, r *http.Request) {
	var body struct{ Content, Encoding string }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	data := []byte(body.Content)
	if body.Encoding == "base64" {
		var err error
		if data, err = base64.StdEncoding.DecodeString(body.Content); err != nil {
			fail(w, http.StatusUnprocessableEntity, "Invalid base64")
			return
		}
	}
	f.mu.Lock()
	sha := f.putBlob(data)
	f.mu.Unlock()
	reply(w, http.StatusCreated, map[string]string{"sha": sha})
}

func (f *fakeGitHub) getTree(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	entries, ok := f.trees[r.PathValue("sha")]
	f.mu.Unlock()
	if !ok {
		fail(w, http.StatusNotFound, "Not Found")
		return
	}
	// 递归列表里也包含目录条目
	out := []fakeEntry{}
	dirs := map[string]bool{}
	for _, e := range entries {
		if i := strings.LastIndex(e.Path, "/"); i > 0 && !dirs[e.Path[:i]] {
			dirs[e.Path[:i]] = true
			out = append(out, fakeEntry{Path: e.Path[:i], Mode: "040000", Type: "tree", SHA: strings.Repeat("d", 40)})
		}
		out = append(out, e)
	}
	reply(w, http.StatusOK, map[string]any{"sha": r.PathValue("sha"), "tree": out, "truncated": false})
}

func (f *fakeGitHub) createTree(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BaseTree string      `json:"base_tree"`
		Tree     []fakeEntry `json:"tree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	merged := map[string]fakeEntry{}
	if body.BaseTree != "" {
		base, ok := f.trees[body.BaseTree]
		if !ok {
			fail(w, http.StatusUnprocessableEntity, "base_tree is not a valid tree oid")
			return
		}
		for _, e := range base {
			merged[e.Path] = e
		}
	}
	for _, e := range body.Tree {
		if _, ok := f.blobs[e.SHA]; !ok && e.Type == "blob" {
			fail(w, http.StatusUnprocessableEntity, "GitRPC::BadObjectState")
			return
		}
		merged[e.Path] = e
	}
	entries := make([]fakeEntry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	reply(w, http.StatusCreated, map[string]string{"sha": f.putTree(entries)})
}

func (f *fakeGitHub) createCommit(w http.ResponseWriter, r *http.Request) {
	var c fakeCommit
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		fail(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.trees[c.Tree]; !ok {
		fail(w, http.StatusUnprocessableEntity, "Tree SHA does not exist")
		return
	}
	for _, p := range c.Parents {
		if _, ok := f.commits[p]; !ok {
			fail(w, http.StatusUnprocessableEntity, "Parent SHA does not exist or is not a commit object")
			return
		}
	}
	if c.Author == nil {
		c.Author = &fakeAuthor{Name: "octocat", Email: "octocat@github.com"}
	}
	if c.Author.Date == "" {
		c.Author.Date = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	if c.Committer == nil {
		c.Committer = c.Author
	}
	reply(w, http.StatusCreated, map[string]string{"sha": f.putCommit(c)})
}

func (f *fakeGitHub) getCommit(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref := r.PathValue("ref")
	sha := ref
	if s, ok := f.refs[ref]; ok {
		sha = s
	}
	c, ok := f.commits[sha]
	if !ok {
		fail(w, http.StatusUnprocessableEntity, fmt.Sprintf("No commit found for SHA: %s", ref))
		return
	}

	before := map[string]string{}
	if len(c.Parents) > 0 {
		for _, e := range f.trees[f.commits[c.Parents[0]].Tree] {
			before[e.Path] = e.SHA
		}
	}
	files := []map[string]string{}
	after := map[string]bool{}
	for _, e := range f.trees[c.Tree] {
		after[e.Path] = true
		switch old, ok := before[e.Path]; {
		case !ok:
			files = append(files, map[string]string{"filename": e.Path, "status": "added", "sha": e.SHA})
		case old != e.SHA:
			files = append(files, map[string]string{"filename": e.Path, "status": "modified", "sha": e.SHA})
		}
	}
	for p, old := range before {
		if !after[p] {
			files = append(files, map[string]string{"filename": p, "status": "removed", "sha": old})
		}
	}
	parents := []map[string]string{}
	for _, p := range c.Parents {
		parents = append(parents, map[string]string{"sha": p})
	}
	reply(w, http.StatusOK, map[string]any{
		"sha": sha,
		"commit": map[string]any{
			"message":   c.Message,
			"tree":      map[string]string{"sha": c.Tree},
			"author":    c.Author,
			"committer": c.Committer,
		},
		"parents": parents,
		"files":   files,
	})
}

// listCommits 沿第一父提交列出历史，只支持 sha 和 per_page
func (f *fakeGitHub) listCommits(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sha := r.URL.Query().Get("sha")
	if s, ok := f.refs[sha]; ok {
		sha = s
	}
	if _, ok := f.commits[sha]; !ok {
		fail(w, http.StatusNotFound, "Not Found")
		return
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	out := []map[string]any{}
	for sha != "" && (perPage <= 0 || len(out) < perPage) {
		c := f.commits[sha]
		parents := []map[string]string{}
		for _, p := range c.Parents {
			parents = append(parents, map[string]string{"sha": p})
		}
		out = append(out, map[string]any{
			"sha": sha,
			"commit": map[string]any{
				"message":   c.Message,
				"tree":      map[string]string{"sha": c.Tree},
				"author":    c.Author,
				"committer": c.Committer,
			},
			"parents": parents,
		})
		sha = ""
		if len(c.Parents) > 0 {
			sha = c.Parents[0]
		}
	}
	reply(w, http.StatusOK, out)
}

func (f *fakeGitHub) getRef(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	branch := r.PathValue("branch")
	sha, ok := f.refs[branch]
	if !ok {
		fail(w, http.StatusNotFound, "Not Found")
		return
	}
	reply(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]string{"type": "commit", "sha": sha},
	})
}

func (f *fakeGitHub) updateRef(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SHA   string `json:"sha"`
		Force bool   `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "Problems parsing JSON")
		return
	}
	if f.beforePatch != nil {
		f.beforePatch()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	branch := r.PathValue("branch")
	current, ok := f.refs[branch]
	switch {
	case !ok:
		fail(w, http.StatusUnprocessableEntity, "Reference does not exist")
		return
	case f.protected[branch]:
		fail(w, http.StatusUnprocessableEntity, "Protected branch update failed for refs/heads/"+branch+".")
		return
	}
	next, ok := f.commits[body.SHA]
	if !ok {
		fail(w, http.StatusUnprocessableEntity, "Object does not exist")
		return
	}
	if !body.Force && (len(next.Parents) == 0 || next.Parents[0] != current) {
		fail(w, http.StatusUnprocessableEntity, "Update is not a fast forward")
		return
	}
	f.refs[branch] = body.SHA
	reply(w, http.StatusOK, map[string]any{
		"ref":    "refs/heads/" + branch,
		"object": map[string]string{"type": "commit", "sha": body.SHA},
	})
}
