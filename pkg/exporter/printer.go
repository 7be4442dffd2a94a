package exporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"commitflow/pkg/core"
	"commitflow/pkg/gitapi"
)

// PrintStructure 解析并打印结构化对象 (Commit/Tree)
// 原始数据 (Blob) 返回 false，由调用者决定如何展示
func PrintStructure(data []byte, w io.Writer) (bool, error) {
	switch core.PeekType(data) {
	case core.TypeCommit:
		return true, printCommit(data, w)
	case core.TypeTree:
		return true, printTree(data, w)
	default:
		return false, nil
	}
}

func printCommit(data []byte, w io.Writer) error {
	c, err := core.DecodeCommit(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Type:      Commit\n")
	fmt.Fprintf(w, "Hash:      %s\n", c.ID())
	fmt.Fprintf(w, "Tree:      %s\n", c.TreeCid.Hash)
	for _, p := range c.Parents {
		fmt.Fprintf(w, "Parent:    %s\n", p.Hash)
	}
	fmt.Fprintf(w, "Author:    %s <%s> %s\n", c.Author.Name, c.Author.Email, c.Author.Time().Format(time.RFC3339))
	fmt.Fprintf(w, "Committer: %s <%s> %s\n", c.Committer.Name, c.Committer.Email, c.Committer.Time().Format(time.RFC3339))
	fmt.Fprintf(w, "\n%s\n", strings.TrimRight(c.Message, "\n"))
	return nil
}

func printTree(data []byte, w io.Writer) error {
	t, err := core.DecodeTree(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Type: Tree (%d entries)\n\n", len(t.Entries))
	// 模拟 git ls-tree 的输出格式
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "MODE\tKIND\tHASH\tPATH\n")
	for _, e := range t.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Mode, e.Kind, e.Hash.Hash.Short(), e.Path)
	}
	return tw.Flush()
}

var statusMark = map[gitapi.FileStatus]string{
	gitapi.StatusAdded:    "A",
	gitapi.StatusModified: "M",
	gitapi.StatusRemoved:  "D",
}

// PrintCommit 打印任意后端返回的提交 (show)
func PrintCommit(w io.Writer, c *gitapi.Commit) {
	fmt.Fprintf(w, "commit %s\n", c.ID)
	if len(c.Parents) > 0 {
		parents := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			parents[i] = p.Short()
		}
		fmt.Fprintf(w, "Parent: %s\n", strings.Join(parents, " "))
	}
	fmt.Fprintf(w, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Fprintf(w, "Date:   %s\n", c.Author.When.Format(time.RFC1123Z))
	if c.Committer.Name != c.Author.Name || c.Committer.Email != c.Author.Email {
		fmt.Fprintf(w, "Commit: %s <%s>\n", c.Committer.Name, c.Committer.Email)
	}
	fmt.Fprintln(w)
	for _, line := range strings.Split(strings.TrimRight(c.Message, "\n"), "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}

	if len(c.Files) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range c.Files {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", statusMark[f.Status], f.ID.Short(), f.Path)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d file(s) changed: %d added, %d modified, %d removed\n",
		c.Stats.Total(), c.Stats.Added, c.Stats.Modified, c.Stats.Removed)
}

// PrintLog 一行一个提交
func PrintLog(w io.Writer, commits []*gitapi.Commit) {
	for _, c := range commits {
		subject, _, _ := strings.Cut(c.Message, "\n")
		fmt.Fprintf(w, "%s %s %-16s %s\n",
			c.ID.Short(), c.Author.When.Format("2006-01-02"), c.Author.Name, subject)
	}
}
