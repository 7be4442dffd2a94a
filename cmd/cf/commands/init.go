package commands

import (
	"fmt"

	"commitflow/pkg/gitapi"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initFrom string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the target branch",
	Long: `Create the configured branch. Without --from the branch starts at an empty
root commit; with --from it starts at the given branch or commit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(cmd); err != nil {
			return err
		}
		ctx := contextOf(cmd)
		out := cmd.OutOrStdout()
		branch := CF.Branch

		// 1. 已存在就什么都不做
		if c, err := CF.Backend.GetCommit(ctx, CF.Repo, gitapi.BranchRef(branch)); err == nil {
			fmt.Fprintf(out, "⚠️  Branch %s already exists at %s\n", branch, c.ID.Short())
			return nil
		}

		// 2. 只有 vault 和 git 后端能建分支
		creator, ok := CF.Branches()
		if !ok {
			return fmt.Errorf("backend %q cannot create branches", viper.GetString("backend.type"))
		}
		author, _, err := identities()
		if err != nil {
			return err
		}
		head, err := creator.CreateBranch(ctx, CF.Repo, branch, initFrom, author)
		if err != nil {
			return fmt.Errorf("failed to create branch %s: %w", branch, err)
		}

		fmt.Fprintf(out, "✅ Initialized branch %s of %s at %s\n", branch, CF.Repo, head.Short())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initFrom, "from", "", "start the branch at this branch or commit")
}
