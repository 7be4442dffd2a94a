package commands

import (
	"fmt"
	"io"
	"time"

	"commitflow/pkg/changeset"

	"github.com/spf13/cobra"
)

var putFrom string

var putCmd = &cobra.Command{
	Use:   "put PATH --from FILE",
	Short: "Commit a single file",
	Long:  `Write one file at PATH on the branch and commit it. Use --from - to read the content from stdin.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireApp(); err != nil {
			return err
		}
		if message == "" {
			return fmt.Errorf("commit message cannot be empty (use -m)")
		}
		if putFrom == "" {
			return fmt.Errorf("--from is required")
		}

		// 1. 读取内容
		set := changeset.New()
		if putFrom == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			set.Put(args[0], changeset.ContentOf(data))
		} else if err := set.AddFile(args[0], putFrom); err != nil {
			return err
		}

		// 2. 提交
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
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putFrom, "from", "", "local file holding the content (- for stdin)")
}
