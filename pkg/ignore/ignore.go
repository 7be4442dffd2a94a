package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是用户自定义忽略规则的文件名，放在被遍历目录的根上
const FileName = ".cfignore"

// defaultRules 总是生效，用户文件里的 "!" 也无法取消
var defaultRules = []string{
	// 仓库元数据
	".cf",
	".git",

	// 本地配置与凭据
	"config.yaml",
	".env",

	// 系统垃圾文件
	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断目录遍历时哪些路径不进入变更集
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 读取 root 下的 .cfignore (可选) 并与默认规则合并
// extra 是调用方追加的规则，例如命令行上的 --exclude
func NewMatcher(root string, extra ...string) (*Matcher, error) {
	rules := append(append([]string{}, defaultRules...), extra...)

	file := filepath.Join(root, FileName)
	if _, err := os.Stat(file); err != nil {
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
	}

	ignorer, err := gitignore.CompileIgnoreFileAndLines(file, rules...)
	if err != nil {
		return nil, err
	}
	return &Matcher{ignorer: ignorer}, nil
}

// Matches 接受相对于 root 的 posix 路径，true 表示忽略
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}
