package commands

import (
	"fmt"
	"strings"
	"time"

	"commitflow/pkg/changeset"

	"github.com/spf13/cobra"
)

var (
	commitDir      string
	commitPrefix   string
	commitManifest string
	commitDelete   []string
)

var commitCmd = &cobra.Command{
	Use:   "commit [PATH=FILE ...]",
	Short: "Commit a set of file changes",
	Long: `Create one commit on the branch from any mix of:
  PATH=FILE        write local FILE at PATH
  --dir DIR        every file under DIR (honours .cfignore), placed under --prefix
  --manifest FILE  a TOML manifest listing files, deletions, message and identities
  --delete PATH    remove PATH`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		ctx := contextOf(cmd)
		out := cmd.OutOrStdout()

		msg, branch := message, CF.Branch
		author, committer, err := identities()
		if err != nil {
			return err
		}

		// ---------------------------------------------------------
		// Phase 1: 收集变更 (manifest → dir → 显式参数，后写覆盖先写)
		// ---------------------------------------------------------
		set := changeset.New()
		if commitManifest != "" {
			m, err := changeset.LoadManifest(commitManifest)
			if err != nil {
				return err
			}
			if err := m.Apply(set); err != nil {
				return err
			}
			// 命令行参数优先于清单
			if msg == "" {
				msg = m.Message
			}
			if m.Branch != "" && !cmd.Flags().Changed("branch") {
				branch = m.Branch
			}
			ma, mc, err := m.Identities()
			if err != nil {
				return err
			}
			if ma != nil && authorFlag == "" {
				author = ma
			}
			if mc != nil && committerFlag == "" {
				committer = mc
			}
		}
		if msg == "" {
			return fmt.Errorf("commit message cannot be empty (use -m)")
		}

		if commitDir != "" {
			n, err := set.AddDir(ctx, commitDir, commitPrefix)
			if err != nil {
				return fmt.Errorf("failed to walk %s: %w", commitDir, err)
			}
			fmt.Fprintf(out, "📂 Collected %d file(s) from %s\n", n, commitDir)
		}
		for _, arg := range args {
			repoPath, local, ok := strings.Cut(arg, "=")
			if !ok || repoPath == "" || local == "" {
				return fmt.Errorf("invalid argument %q (want PATH=FILE)", arg)
			}
			if err := set.AddFile(repoPath, local); err != nil {
				return err
			}
		}
		for _, p := range commitDelete {
			set.Delete(p)
		}

		if set.Len() == 0 {
			fmt.Fprintln(out, "nothing to commit")
			return nil
		}

		// ---------------------------------------------------------
		// Phase 2: 提交
		// ---------------------------------------------------------
		start := time.Now()
		c, err := submit(ctx, set.Request(CF.Repo, branch, msg, author, committer))
		if err != nil {
			return err
		}
		report(out, branch, c, start)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)

	// 绑定 Flags
	commitCmd.Flags().StringVar(&commitDir, "dir", "", "commit every file under this directory")
	commitCmd.Flags().StringVar(&commitPrefix, "prefix", "", "repository path prefix for --dir")
	commitCmd.Flags().StringVar(&commitManifest, "manifest", "", "TOML manifest describing the change set")
	commitCmd.Flags().StringSliceVar(&commitDelete, "delete", nil, "paths to delete")
}
