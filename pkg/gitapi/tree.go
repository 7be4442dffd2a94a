package gitapi

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// SortEntries 按路径排序 (原地)
func SortEntries(entries []TreeEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}

// Overlay 把 entries 覆盖到 base 上，返回排序后的完整快照
// CreateTree 的 base 语义由各个本地后端共用
func Overlay(base, entries []TreeEntry) []TreeEntry {
	merged := make(map[string]TreeEntry, len(base)+len(entries))
	for _, e := range base {
		merged[e.Path] = e
	}
	for _, e := range entries {
		merged[e.Path] = e
	}
	out := make([]TreeEntry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	SortEntries(out)
	return out
}

// PathConflict 找出快照里既是文件又是某个条目父目录的路径
func PathConflict(entries []TreeEntry) (string, bool) {
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		files[e.Path] = true
	}
	for _, e := range entries {
		for dir := path.Dir(e.Path); dir != "."; dir = path.Dir(dir) {
			if files[dir] {
				return dir, true
			}
		}
	}
	return "", false
}

// DiffTrees 比较两个扁平快照，得到文件级变更列表 (按路径排序)
func DiffTrees(oldEntries, newEntries []TreeEntry) []FileChange {
	before := make(map[string]TreeEntry, len(oldEntries))
	for _, e := range oldEntries {
		before[e.Path] = e
	}

	var changes []FileChange
	seen := make(map[string]bool, len(newEntries))
	for _, e := range newEntries {
		seen[e.Path] = true
		prev, ok := before[e.Path]
		switch {
		case !ok:
			changes = append(changes, FileChange{Path: e.Path, Status: StatusAdded, ID: e.ID})
		case prev.ID != e.ID || prev.Mode != e.Mode:
			changes = append(changes, FileChange{Path: e.Path, Status: StatusModified, ID: e.ID})
		}
	}
	for _, e := range oldEntries {
		if !seen[e.Path] {
			changes = append(changes, FileChange{Path: e.Path, Status: StatusRemoved, ID: e.ID})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Summarize 统计变更数量
func Summarize(changes []FileChange) Stats {
	var s Stats
	for _, c := range changes {
		switch c.Status {
		case StatusAdded:
			s.Added++
		case StatusModified:
			s.Modified++
		case StatusRemoved:
			s.Removed++
		}
	}
	return s
}

// CleanPath 校验并规范化仓库内路径
// 只接受相对的 posix 路径，不允许 ".."、空段和 ".git"
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.Contains(p, "\\") {
		return "", fmt.Errorf("path %q: backslash is not allowed", p)
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q: must be relative", p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned != strings.TrimSuffix(p, "/") {
		return "", fmt.Errorf("path %q: not in canonical form (want %q)", p, cleaned)
	}
	for _, seg := range strings.Split(cleaned, "/") {
		if seg == ".." || seg == "." {
			return "", fmt.Errorf("path %q: relative segments are not allowed", p)
		}
		if seg == ".git" {
			return "", fmt.Errorf("path %q: .git is reserved", p)
		}
	}
	return cleaned, nil
}
