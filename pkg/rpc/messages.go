package rpc

// 线上消息，用 CBOR 编码；字段键短小且固定

type Identity struct {
	Name  string `cbor:"n"`
	Email string `cbor:"e"`
	// Unix 秒；0 表示由服务端填充
	When int64 `cbor:"w,omitempty"`
}

type FileContent struct {
	Path     string `cbor:"p"`
	Data     []byte `cbor:"d"`
	Encoding string `cbor:"e,omitempty"`
}

type CommitFilesRequest struct {
	Owner     string        `cbor:"o"`
	Repo      string        `cbor:"r"`
	Branch    string        `cbor:"b"`
	Message   string        `cbor:"m"`
	Files     []FileContent `cbor:"f"`
	Author    *Identity     `cbor:"a,omitempty"`
	Committer *Identity     `cbor:"c,omitempty"`
}

type CommitSingleFileRequest struct {
	Owner     string      `cbor:"o"`
	Repo      string      `cbor:"r"`
	Branch    string      `cbor:"b"`
	Message   string      `cbor:"m"`
	File      FileContent `cbor:"f"`
	Author    *Identity   `cbor:"a,omitempty"`
	Committer *Identity   `cbor:"c,omitempty"`
}

type DeleteFilesRequest struct {
	Owner     string    `cbor:"o"`
	Repo      string    `cbor:"r"`
	Branch    string    `cbor:"b"`
	Message   string    `cbor:"m"`
	Paths     []string  `cbor:"d"`
	Author    *Identity `cbor:"a,omitempty"`
	Committer *Identity `cbor:"c,omitempty"`
}

// ApplyRequest 同时携带写入和删除
type ApplyRequest struct {
	Owner     string        `cbor:"o"`
	Repo      string        `cbor:"r"`
	Branch    string        `cbor:"b"`
	Message   string        `cbor:"m"`
	Files     []FileContent `cbor:"f"`
	Deletions []string      `cbor:"d"`
	Author    *Identity     `cbor:"a,omitempty"`
	Committer *Identity     `cbor:"c,omitempty"`
}

type FileChange struct {
	Path   string `cbor:"p"`
	Status string `cbor:"s"`
	ID     string `cbor:"h"`
}

type CommitResponse struct {
	SHA       string       `cbor:"sha"`
	Tree      string       `cbor:"t"`
	Parents   []string     `cbor:"p"`
	Message   string       `cbor:"m"`
	Author    Identity     `cbor:"a"`
	Committer Identity     `cbor:"c"`
	Files     []FileChange `cbor:"f"`
	Added     int          `cbor:"sa"`
	Modified  int          `cbor:"sm"`
	Removed   int          `cbor:"sr"`
}
