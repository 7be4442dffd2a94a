package commands

import (
	"fmt"
	"time"

	"commitflow/pkg/types"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export DIR [REF]",
	Short: "Write the files of a commit into a directory",
	Long:  `Restore the snapshot of REF (default the configured branch) into DIR. Existing files are overwritten.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(cmd); err != nil {
			return err
		}
		if CF.Exporter == nil {
			return fmt.Errorf("export is only available on the vault backend")
		}
		ctx := contextOf(cmd)
		out := cmd.OutOrStdout()
		start := time.Now()

		// 1. 解析目标提交，拿到根树
		ref := CF.Branch
		if len(args) > 1 {
			ref = args[1]
		}
		c, err := CF.Backend.GetCommit(ctx, CF.Repo, ref)
		if err != nil {
			return fmt.Errorf("invalid commit '%s': %w", ref, err)
		}
		fmt.Fprintf(out, "🔄 Exporting %s (Author: %s)...\n", c.ID.Short(), c.Author.Name)

		// 2. 还原
		var files int
		var bytes int64
		err = CF.Exporter.RestoreTree(ctx, c.Tree, args[0], func(path string, hash types.Hash, size int64) {
			files++
			bytes += size
		})
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Fprintf(out, "✅ Wrote %d file(s), %d bytes to %s in %s\n", files, bytes, args[0], time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
