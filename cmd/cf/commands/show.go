package commands

import (
	"fmt"

	"commitflow/pkg/exporter"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [REF]",
	Short: "Show a commit and the files it changed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(cmd); err != nil {
			return err
		}
		ref := CF.Branch
		if len(args) > 0 {
			ref = args[0]
		}
		c, err := CF.Backend.GetCommit(contextOf(cmd), CF.Repo, ref)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", ref, err)
		}
		exporter.PrintCommit(cmd.OutOrStdout(), c)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
