package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdpress/mdpress/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "book.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "book:\n  title: Test Book\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Book.Language)
	assert.Equal(t, "src", cfg.Book.Src)
	assert.Equal(t, "book", cfg.Build.Output)
	assert.Equal(t, "gh-pages", cfg.Publish.Branch)
	assert.Equal(t, "MDPRESS_PUBLISH_TOKEN", cfg.Publish.TokenEnv)
	assert.Equal(t, ":4000", cfg.Preview.Addr)
	assert.Equal(t, 10*time.Second, cfg.VerifyTimeout())
	assert.Equal(t, 10*time.Minute, cfg.DaemonInterval())
}

func TestLoadRequiresTitle(t *testing.T) {
	path := writeConfig(t, "book:\n  src: src\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "book:\n  title: T\nverify:\n  timeout: soon\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PUBLISH_URL", "https://example.com/site.git")
	path := writeConfig(t, "book:\n  title: T\npublish:\n  url: ${TEST_PUBLISH_URL}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/site.git", cfg.Publish.URL)
}

func TestPublishTokenFromEnv(t *testing.T) {
	t.Setenv("MDPRESS_PUBLISH_TOKEN", "sekrit")
	cfg := &Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, "sekrit", cfg.PublishToken())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestInitWritesSkeleton(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	require.NoError(t, Init("book.yaml", "Field Notes", false))

	cfg, err := Load("book.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Field Notes", cfg.Book.Title)
	assert.FileExists(t, filepath.Join("src", "SUMMARY.md"))
	assert.FileExists(t, filepath.Join("src", "intro.md"))

	// Second init without force must not clobber.
	err = Init("book.yaml", "Other", false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}
