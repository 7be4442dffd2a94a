package pipeline

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"commitflow/pkg/gitapi"
	"commitflow/pkg/types"

	"github.com/hashicorp/go-multierror"
)

// Content 是一份待提交的文件内容
// Data 是按 Encoding 编码后的载荷 (utf-8 原文或 base64 文本)
type Content struct {
	Data     []byte
	Encoding types.Encoding
}

// Text 构造 UTF-8 文本内容
func Text(s string) Content {
	return Content{Data: []byte(s), Encoding: types.EncodingUTF8}
}

// Binary 把任意字节编码为 base64 内容
func Binary(b []byte) Content {
	return Content{Data: []byte(base64.StdEncoding.EncodeToString(b)), Encoding: types.EncodingBase64}
}

// Request 是管线的通用输入
// CommitFiles / CommitSingleFile / DeleteFiles 都是它的特例
type Request struct {
	Repo      types.RepoCoords
	Branch    string
	Message   string
	Upserts   map[string]Content
	Deletions []string
	Author    *gitapi.Signature
	Committer *gitapi.Signature
}

// plan 是校验、规范化之后的请求
type plan struct {
	branch    string
	upserts   map[string]Content
	deletions map[string]struct{}
}

func (p *plan) paths() []string {
	out := make([]string, 0, len(p.upserts))
	for path := range p.upserts {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// normalize 校验请求并收集全部问题，而不是遇到第一个就返回
func (r *Request) normalize() (*plan, error) {
	result := &multierror.Error{ErrorFormat: joinErrors}

	if r.Repo.Owner == "" || r.Repo.Name == "" {
		result = multierror.Append(result, fmt.Errorf("repository coordinates are required"))
	}
	branch := strings.TrimPrefix(strings.TrimSpace(r.Branch), "refs/heads/")
	if branch == "" {
		result = multierror.Append(result, fmt.Errorf("branch is required"))
	}
	if strings.TrimSpace(r.Message) == "" {
		result = multierror.Append(result, fmt.Errorf("commit message is required"))
	}

	p := &plan{
		branch:    branch,
		upserts:   make(map[string]Content, len(r.Upserts)),
		deletions: make(map[string]struct{}, len(r.Deletions)),
	}

	raws := make([]string, 0, len(r.Upserts))
	for raw := range r.Upserts {
		raws = append(raws, raw)
	}
	sort.Strings(raws)
	for _, raw := range raws {
		c := r.Upserts[raw]
		path, err := gitapi.CleanPath(raw)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if _, dup := p.upserts[path]; dup {
			result = multierror.Append(result, fmt.Errorf("path %q given more than once", path))
			continue
		}
		if c.Encoding == "" {
			c.Encoding = types.EncodingUTF8
		}
		if !c.Encoding.IsValid() {
			result = multierror.Append(result, fmt.Errorf("path %q: unsupported encoding %q", path, c.Encoding))
			continue
		}
		if c.Encoding == types.EncodingBase64 {
			if _, err := base64.StdEncoding.DecodeString(string(c.Data)); err != nil {
				result = multierror.Append(result, fmt.Errorf("path %q: invalid base64 content: %w", path, err))
				continue
			}
		}
		p.upserts[path] = c
	}

	for _, raw := range r.Deletions {
		path, err := gitapi.CleanPath(raw)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		// 同一路径既改又删没有合理语义，直接拒绝
		if _, both := p.upserts[path]; both {
			result = multierror.Append(result, fmt.Errorf("path %q is both changed and deleted", path))
			continue
		}
		p.deletions[path] = struct{}{}
	}

	if len(r.Upserts) == 0 && len(r.Deletions) == 0 {
		result = multierror.Append(result, fmt.Errorf("nothing to commit"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return p, nil
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}
