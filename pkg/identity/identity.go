// Package identity 解析提交者身份
//
// 优先级: 显式参数 > 配置 user.name / user.email > gitconfig 的 [user] 段
package identity

import (
	"errors"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"commitflow/pkg/gitapi"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// ErrNoIdentity 所有来源都没有完整的 name + email
var ErrNoIdentity = errors.New("no identity configured")

// Parse 解析 "Name <email>"
func Parse(s string) (*gitapi.Signature, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("identity %q: want \"Name <email>\": %w", s, err)
	}
	if addr.Name == "" {
		return nil, fmt.Errorf("identity %q: name is empty", s)
	}
	return &gitapi.Signature{Name: addr.Name, Email: addr.Address}, nil
}

// Format 是 Parse 的逆操作
func Format(sig gitapi.Signature) string {
	return fmt.Sprintf("%s <%s>", sig.Name, sig.Email)
}

// GitConfigPaths 返回按优先级排列的 gitconfig 候选文件
// dir 是工作目录，其 .git/config 最先被查找
func GitConfigPaths(dir string) []string {
	paths := []string{filepath.Join(dir, ".git", "config")}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "git", "config"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".gitconfig"),
			filepath.Join(home, ".config", "git", "config"),
		)
	}
	return paths
}

// gitconfig 允许没有值的键 ("[core] bare" 等价于 true)
var gitConfigOptions = ini.LoadOptions{
	Loose:                   true,
	Insensitive:             true,
	AllowBooleanKeys:        true,
	SkipUnrecognizableLines: true,
}

// FromGitConfig 返回第一个同时配置了 user.name 和 user.email 的文件中的身份
// 不存在或读不了的文件被跳过，身份只是一个默认值
func FromGitConfig(paths ...string) (*gitapi.Signature, error) {
	for _, p := range paths {
		cfg, err := ini.LoadSources(gitConfigOptions, p)
		if err != nil {
			continue
		}
		user := cfg.Section("user")
		name, email := user.Key("name").String(), user.Key("email").String()
		if name != "" && email != "" {
			return &gitapi.Signature{Name: name, Email: email}, nil
		}
	}
	return nil, ErrNoIdentity
}

// Lookup 先读 viper 的 user.name / user.email，再回退到 gitconfig
func Lookup(v *viper.Viper, gitconfigs ...string) (*gitapi.Signature, error) {
	if v != nil {
		name, email := v.GetString("user.name"), v.GetString("user.email")
		if name != "" && email != "" {
			return &gitapi.Signature{Name: name, Email: email}, nil
		}
	}
	return FromGitConfig(gitconfigs...)
}
