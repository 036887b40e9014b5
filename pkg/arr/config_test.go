package arr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	writeFile(t, path, `
specialize = false
timeout = "250ms"
native_cache_size = 8

[eager_eval]
variables = true
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, config.Specialize)
	assert.Equal(t, 250*time.Millisecond, config.Timeout.Duration)
	assert.Equal(t, 8, config.NativeCacheSize)
	assert.True(t, config.EagerEval.Variables)
	assert.True(t, config.EagerEval.Constants, "unset keys keep their defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFile)
	writeFile(t, path, `timeout = "soon"`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "parsing "+path)

	_, err = LoadConfig(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestFindConfig(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFile), `specialize = false`)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	path, config, err := FindConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ConfigFile), path)
	assert.False(t, config.Specialize)
}

func TestFindConfigStopsAtRepository(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ConfigFile), `specialize = false`)
	repo := filepath.Join(root, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0o755))

	path, config, err := FindConfig(repo)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig(), config)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ARR_SPECIALIZE", "false")
	t.Setenv("ARR_TIMEOUT", "2s")
	config, err := DefaultConfig().ApplyEnv()
	require.NoError(t, err)
	assert.False(t, config.Specialize)
	assert.Equal(t, 2*time.Second, config.Timeout.Duration)

	t.Setenv("ARR_SPECIALIZE", "")
	t.Setenv("ARR_TIMEOUT", "")
	config, err = DefaultConfig().ApplyEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config, "empty variables are ignored")

	t.Setenv("ARR_SPECIALIZE", "maybe")
	_, err = DefaultConfig().ApplyEnv()
	assert.ErrorContains(t, err, "ARR_SPECIALIZE")

	t.Setenv("ARR_SPECIALIZE", "")
	t.Setenv("ARR_TIMEOUT", "later")
	_, err = DefaultConfig().ApplyEnv()
	assert.ErrorContains(t, err, "ARR_TIMEOUT")
}
