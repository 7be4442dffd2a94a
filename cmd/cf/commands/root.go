package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"commitflow/pkg/app"
	"commitflow/pkg/config"
	"commitflow/pkg/gitapi"
	"commitflow/pkg/identity"
	"commitflow/pkg/pipeline"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	CF *app.App

	message       string
	authorFlag    string
	committerFlag string
)

var rootCmd = &cobra.Command{
	Use:   "cf",
	Short: "commitflow: commit a set of file changes to a branch in one step",
	// SilenceUsage: 业务错误不必再打印一遍用法
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version 不需要任何依赖；测试里 CF 已经被注入
		if cmd.Name() == "version" || CF != nil {
			return nil
		}

		var err error
		CF, err = app.NewApp(contextOf(cmd))
		if err != nil {
			return fmt.Errorf("failed to initialize commitflow: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if CF == nil {
			return nil
		}
		return CF.Close()
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cf/config.yaml)")
	flags.StringVarP(&message, "message", "m", "", "commit message")
	flags.StringVar(&authorFlag, "author", "", `author identity, "Name <email>"`)
	flags.StringVar(&committerFlag, "committer", "", `committer identity, "Name <email>"`)

	// 下面这些绑定到 Viper，yaml / 环境变量 / flag 任选其一
	flags.StringP("branch", "b", "", "target branch")
	flags.String("repo", "", "repository as owner/name")
	flags.String("remote", "", "commit through a cf-server at this address")
	flags.String("backend", "", "object store backend: vault | git | github")
	flags.String("storage-path", "", "directory to store vault objects")
	for key, flag := range map[string]string{
		"branch":       "branch",
		"repo":         "repo",
		"remote":       "remote",
		"backend.type": "backend",
		"storage.path": "storage-path",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}

// =============================================================================
// 子命令共用
// =============================================================================

func requireApp() error {
	if CF == nil {
		return fmt.Errorf("application not initialized")
	}
	return nil
}

// requireBackend 只读命令需要直接访问后端，远程模式下不可用
func requireBackend(cmd *cobra.Command) error {
	if err := requireApp(); err != nil {
		return err
	}
	if CF.Backend == nil {
		return fmt.Errorf("'%s' needs a local backend (unset --remote)", cmd.Name())
	}
	return nil
}

// identities 合并 flag 和默认身份；committer 缺省时由后端决定
func identities() (author, committer *gitapi.Signature, err error) {
	author = CF.Identity
	if authorFlag != "" {
		if author, err = identity.Parse(authorFlag); err != nil {
			return nil, nil, fmt.Errorf("--author: %w", err)
		}
	}
	if committerFlag != "" {
		if committer, err = identity.Parse(committerFlag); err != nil {
			return nil, nil, fmt.Errorf("--committer: %w", err)
		}
	}
	return author, committer, nil
}

// submit 本地走管线，远程走 cf-server
func submit(ctx context.Context, req pipeline.Request) (*gitapi.Commit, error) {
	if timeout := viper.GetDuration("pipeline.timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if CF.Remote != nil {
		return CF.Remote.Apply(ctx, req, uuid.NewString())
	}
	return CF.Pipeline.Apply(ctx, req)
}

// report 打印一次提交的结果
func report(w io.Writer, branch string, c *gitapi.Commit, start time.Time) {
	subject, _, _ := strings.Cut(c.Message, "\n")
	fmt.Fprintf(w, "✅ [%s %s] %s\n", branch, c.ID.Short(), subject)
	fmt.Fprintf(w, "   %d file(s) changed: %d added, %d modified, %d removed\n",
		c.Stats.Total(), c.Stats.Added, c.Stats.Modified, c.Stats.Removed)
	fmt.Fprintf(w, "   Time: %s | Author: %s\n", time.Since(start).Round(time.Millisecond), identity.Format(c.Author))
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
