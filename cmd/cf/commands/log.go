package commands

import (
	"errors"
	"fmt"

	"commitflow/pkg/exporter"
	"commitflow/pkg/gitapi"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [REF]",
	Short: "Show commit logs",
	Long:  `Display the first-parent history starting from REF (a branch or commit id, default the configured branch).`,
	Args:  cobra.MaximumNArgs(1), // 0 或 1 个参数
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(cmd); err != nil {
			return err
		}
		history, ok := CF.History()
		if !ok {
			return fmt.Errorf("backend %q cannot list history", viper.GetString("backend.type"))
		}

		ref := CF.Branch
		if len(args) > 0 {
			ref = args[0]
		}
		commits, err := history.Log(contextOf(cmd), CF.Repo, ref, logLimit)
		if errors.Is(err, gitapi.ErrNotFound) && len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No commits yet.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read history of %s: %w", ref, err)
		}
		exporter.PrintLog(cmd.OutOrStdout(), commits)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVarP(&logLimit, "max-count", "n", 0, "limit the number of commits (0 = all)")
}
