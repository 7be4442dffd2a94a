package commands

import (
	"fmt"
	"time"

	"commitflow/pkg/changeset"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm PATH...",
	Short: "Delete files from the branch",
	Long:  `Remove the given paths from the branch in one commit. Paths that do not exist are ignored.`,
	Args:  cobra.MinimumNArgs(1), // 至少指定一个文件
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		if message == "" {
			return fmt.Errorf("commit message cannot be empty (use -m)")
		}

		set := changeset.New()
		for _, p := range args {
			set.Delete(p)
		}

		author, committer, err := identities()
		if err != nil {
			return err
		}
		start := time.Now()
		c, err := submit(contextOf(cmd), set.Request(CF.Repo, CF.Branch, message, author, committer))
		if err != nil {
			return err
		}
		report(cmd.OutOrStdout(), CF.Branch, c, start)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}
