package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewsync.toml")

	content := `[gitlab]
url = "https://gitlab.example.com"
token = "glpat-test"
project = "group/project"

[sync]
comments_file = "out.json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://gitlab.example.com", cfg.GitLab.URL)
	assert.Equal(t, "glpat-test", cfg.GitLab.Token)
	assert.Equal(t, "group/project", cfg.GitLab.Project)
	assert.Equal(t, "out.json", cfg.Sync.CommentsFile)
	// Default survives when the file does not set it
	assert.Equal(t, "origin", cfg.Sync.Remote)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewsync.toml")

	content := `[gitlab]
url = "https://gitlab.example.com"
token = "from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("REVIEWSYNC_GITLAB_TOKEN", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.GitLab.Token)
	assert.Equal(t, "https://gitlab.example.com", cfg.GitLab.URL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	var cfg Config

	err := Validate(&cfg)
	assert.ErrorContains(t, err, "url")

	cfg.GitLab.URL = "https://gitlab.example.com"
	err = Validate(&cfg)
	assert.ErrorContains(t, err, "token")

	cfg.GitLab.Token = "glpat-test"
	assert.NoError(t, Validate(&cfg))
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviewsync.toml")

	require.NoError(t, InitConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://gitlab.example.com", cfg.GitLab.URL)

	// A second init must not overwrite the existing file
	assert.Error(t, InitConfig(path))
}
