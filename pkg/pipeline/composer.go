package pipeline

import (
	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"
)

// TreeSpec 是 TreeComposer 的产物
type TreeSpec struct {
	Entries   []gitapi.TreeEntry // 完整快照，按路径排序
	Unchanged bool               // 与 base 内容一致，可直接复用 base tree
}

// Compose 在 base 快照上应用删除和更新
//
// 1. 先删除，再更新 (路径同时出现在两边的请求在校验阶段就被拒绝)
// 2. 已存在的路径只替换内容 ID，保留 mode
// 3. 未提及的路径原样继承
// 4. 删除不存在的路径什么也不做
func Compose(base []gitapi.TreeEntry, upserts map[string]types.Hash, deletions map[string]struct{}) TreeSpec {
	index := make(map[string]int, len(base))
	entries := make([]gitapi.TreeEntry, 0, len(base)+len(upserts))
	// 扁平列表里的目录条目是派生出来的，不参与组合
	files := make([]gitapi.TreeEntry, 0, len(base))
	for _, e := range base {
		if e.Kind == gitapi.KindTree {
			continue
		}
		files = append(files, e)
		if _, gone := deletions[e.Path]; gone {
			continue
		}
		index[e.Path] = len(entries)
		entries = append(entries, e)
	}

	for path, id := range upserts {
		if i, ok := index[path]; ok {
			cur := &entries[i]
			if cur.Kind != gitapi.KindBlob || cur.Mode == gitapi.ModeSubmodule {
				// 子模块等被文件内容替换后变成普通文件
				cur.Kind = gitapi.KindBlob
				cur.Mode = gitapi.ModeRegular
			}
			cur.ID = id
			continue
		}
		index[path] = len(entries)
		entries = append(entries, gitapi.TreeEntry{
			Path: path,
			Mode: gitapi.ModeRegular,
			Kind: gitapi.KindBlob,
			ID:   id,
		})
	}
	gitapi.SortEntries(entries)

	return TreeSpec{
		Entries:   entries,
		Unchanged: sameEntries(files, entries),
	}
}

func sameEntries(base, entries []gitapi.TreeEntry) bool {
	if len(base) != len(entries) {
		return false
	}
	want := make(map[string]gitapi.TreeEntry, len(base))
	for _, e := range base {
		want[e.Path] = e
	}
	for _, e := range entries {
		if want[e.Path] != e {
			return false
		}
	}
	return true
}
