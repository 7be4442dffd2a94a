package identity

import (
	"os"
	"path/filepath"
	"testing"

	"commitflow/pkg/gitapi"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGitConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestParse(t *testing.T) {
	sig, err := Parse("Ada Lovelace <ada@example.com>")
	require.NoError(t, err)
	assert.Equal(t, &gitapi.Signature{Name: "Ada Lovelace", Email: "ada@example.com"}, sig)
	assert.Equal(t, "Ada Lovelace <ada@example.com>", Format(*sig))

	for _, bad := range []string{"", "ada@example.com", "Ada <>", "<ada@example.com>"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestFromGitConfig(t *testing.T) {
	partial := writeGitConfig(t, t.TempDir(), "[user]\n\tname = Only Name\n")
	full := writeGitConfig(t, t.TempDir(), `[core]
	bare = false
[remote "origin"]
	url = https://example.com/octo/hello.git
[user]
	name = Grace Hopper
	email = grace@example.com
`)
	missing := filepath.Join(t.TempDir(), "nope")

	sig, err := FromGitConfig(missing, partial, full)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", sig.Name)
	assert.Equal(t, "grace@example.com", sig.Email)

	_, err = FromGitConfig(missing, partial)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestFromGitConfig_ValuelessKeys(t *testing.T) {
	cfg := writeGitConfig(t, t.TempDir(), `[core]
	bare
	logallrefupdates
[user]
	name = Grace Hopper
	email = grace@example.com
`)
	sig, err := FromGitConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", sig.Name)
}

func TestFromGitConfig_UnreadableIsSkipped(t *testing.T) {
	dir := t.TempDir() // 目录不能当文件读
	full := writeGitConfig(t, t.TempDir(), "[user]\n\tname = Ada\n\temail = ada@example.com\n")

	sig, err := FromGitConfig(dir, full)
	require.NoError(t, err)
	assert.Equal(t, "Ada", sig.Name)

	_, err = FromGitConfig(dir)
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestLookup_ViperWins(t *testing.T) {
	full := writeGitConfig(t, t.TempDir(), "[user]\nname = Git User\nemail = git@example.com\n")

	v := viper.New()
	v.Set("user.name", "Config User")
	v.Set("user.email", "config@example.com")
	sig, err := Lookup(v, full)
	require.NoError(t, err)
	assert.Equal(t, "Config User", sig.Name)

	sig, err = Lookup(viper.New(), full)
	require.NoError(t, err)
	assert.Equal(t, "Git User", sig.Name)
}

func TestGitConfigPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GitConfigPaths("/work")
	require.GreaterOrEqual(t, len(paths), 2)
	assert.Equal(t, filepath.Join("/work", ".git", "config"), paths[0])
	assert.Equal(t, filepath.Join("/xdg", "git", "config"), paths[1])
}
