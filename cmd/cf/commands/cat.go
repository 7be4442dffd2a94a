package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat HASH",
	Short: "Print a vault object by hash",
	Long: `Print the object with the given (full or abbreviated) hash. Commits and trees
are printed in a readable form; blobs are written raw so they can be redirected to a file.`,
	Args: cobra.ExactArgs(1), // 必须提供 Hash
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(cmd); err != nil {
			return err
		}
		if CF.Vault == nil {
			return fmt.Errorf("cat is only available on the vault backend")
		}
		ctx := contextOf(cmd)

		// 1. 短哈希展开
		obj, err := CF.Vault.ReadObject(ctx, args[0])
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}

		// 2. 输出到 stdout，二进制可以通过 > file.bin 重定向
		if err := CF.Exporter.PrintObject(ctx, obj.ID, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
