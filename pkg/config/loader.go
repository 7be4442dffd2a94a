package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 → ./.cf → ~/.cf
		viper.AddConfigPath(".")
		viper.AddConfigPath(".cf")
		viper.AddConfigPath(filepath.Join(home, ".cf"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (CF_GITHUB_TOKEN, CF_DATABASE_HOST 等)
	viper.SetEnvPrefix("CF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	// 只是没找到配置文件时继续使用默认值和环境变量；格式错误才算失败
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		// 走 stderr，cat 之类的命令要保持 stdout 干净
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 后端: vault | git | github
	viper.SetDefault("backend.type", "vault")
	viper.SetDefault("branch", "main")

	wd, _ := os.Getwd()
	root := filepath.Join(wd, ".cf")
	viper.SetDefault("repo", "local/"+filepath.Base(wd))

	// 对象存储 (vault 后端)
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(root, "objects"))
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("redis.ttl", 24*time.Hour)

	// 元数据库；sqlite 且未给 dsn 时落在 storage.path 同级的 meta.db
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// git 后端
	viper.SetDefault("git.path", filepath.Join(root, "repos"))
	viper.SetDefault("git.bare", true)

	// github 后端
	viper.SetDefault("github.timeout", 30*time.Second)

	// 管线
	viper.SetDefault("pipeline.blob_concurrency", 4)
	viper.SetDefault("pipeline.dedupe_blobs", false)
	viper.SetDefault("pipeline.timeout", 2*time.Minute)

	viper.SetDefault("server.addr", ":50051")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

// NewLogger 按 log.level / log.format 构造 slog.Logger
func NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", viper.GetString("log.level"), err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := viper.GetString("log.format"); format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log.format: %s", format)
	}
}
