package changeset

import (
	"fmt"
	"path/filepath"
	"strings"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/identity"
	"commitflow/pkg/pipeline"
	"commitflow/pkg/types"

	"github.com/BurntSushi/toml"
)

// Manifest 是 TOML 格式的变更清单
//
//	message = "update docs"
//	branch  = "main"
//	author  = "Ada <ada@example.com>"
//	delete  = ["old.txt"]
//
//	[[file]]
//	path   = "docs/readme.md"
//	source = "README.md"        # 相对于清单所在目录
//
//	[[file]]
//	path     = "VERSION"
//	content  = "1.2.0\n"
type Manifest struct {
	Message   string         `toml:"message"`
	Branch    string         `toml:"branch"`
	Author    string         `toml:"author"`
	Committer string         `toml:"committer"`
	Files     []ManifestFile `toml:"file"`
	Delete    []string       `toml:"delete"`

	dir string
}

type ManifestFile struct {
	Path     string `toml:"path"`
	Source   string `toml:"source"`
	Content  string `toml:"content"`
	Encoding string `toml:"encoding"`
}

// LoadManifest 解析清单；未知字段视为错误
func LoadManifest(file string) (*Manifest, error) {
	var m Manifest
	md, err := toml.DecodeFile(file, &m)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", file, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("manifest %s: unknown keys: %s", file, strings.Join(keys, ", "))
	}
	m.dir = filepath.Dir(file)
	return &m, nil
}

// Apply 把清单里的文件和删除项写入 s
func (m *Manifest) Apply(s *Set) error {
	for i, f := range m.Files {
		if f.Path == "" {
			return fmt.Errorf("file #%d: path is required", i+1)
		}
		switch {
		case f.Source != "" && f.Content != "":
			return fmt.Errorf("file %s: source and content are mutually exclusive", f.Path)
		case f.Source != "":
			src := f.Source
			if !filepath.IsAbs(src) {
				src = filepath.Join(m.dir, src)
			}
			if err := s.AddFile(f.Path, src); err != nil {
				return fmt.Errorf("file %s: %w", f.Path, err)
			}
		default:
			enc := types.Encoding(f.Encoding)
			if enc == "" {
				enc = types.EncodingUTF8
			}
			if !enc.IsValid() {
				return fmt.Errorf("file %s: unsupported encoding %q", f.Path, f.Encoding)
			}
			s.Put(f.Path, pipeline.Content{Data: []byte(f.Content), Encoding: enc})
		}
	}
	for _, p := range m.Delete {
		s.Delete(p)
	}
	return nil
}

// Identities 解析清单里的 author / committer，未设置时为 nil
func (m *Manifest) Identities() (author, committer *gitapi.Signature, err error) {
	if m.Author != "" {
		if author, err = identity.Parse(m.Author); err != nil {
			return nil, nil, err
		}
	}
	if m.Committer != "" {
		if committer, err = identity.Parse(m.Committer); err != nil {
			return nil, nil, err
		}
	}
	return author, committer, nil
}
