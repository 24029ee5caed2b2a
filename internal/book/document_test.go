package book

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdpress/mdpress/internal/errors"
)

func writeBook(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestLoadResolvesAllReferences(t *testing.T) {
	dir := writeBook(t, map[string]string{
		"SUMMARY.md": "- [Intro](intro.md)\n- [About](about.md)\n",
		"intro.md":   "# Introduction\n\nHello.\n",
		"about.md":   "# About Me\n\nBio.\n",
	})

	b, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, b.Order, 2)
	assert.Equal(t, "Introduction", b.Documents["intro.md"].Title)
	assert.Equal(t, "About Me", b.Documents["about.md"].Title)
}

func TestLoadMissingDocumentIsValidationError(t *testing.T) {
	dir := writeBook(t, map[string]string{
		"SUMMARY.md": "- [Intro](intro.md)\n- [Gone](missing.md)\n",
		"intro.md":   "# Intro\n",
	})

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestLoadMissingSummaryIsValidationError(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestTitleFallsBackToFilename(t *testing.T) {
	dir := writeBook(t, map[string]string{
		"SUMMARY.md":        "- [Notes](field-notes.md)\n",
		"field-notes.md":    "No heading here, only prose.\n",
	})

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "field notes", b.Documents["field-notes.md"].Title)
}

func TestTitleIgnoresLowerLevelHeadings(t *testing.T) {
	dir := writeBook(t, map[string]string{
		"SUMMARY.md": "- [X](x.md)\n",
		"x.md":       "## Subsection First\n\n# Real Title\n",
	})

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Real Title", b.Documents["x.md"].Title)
}

func TestLoadNestedPaths(t *testing.T) {
	dir := writeBook(t, map[string]string{
		"SUMMARY.md":      "- [CRDTs](crdts/index.md)\n  - [Deltas](crdts/deltas.md)\n",
		"crdts/index.md":  "# CRDTs\n",
		"crdts/deltas.md": "# Delta Synchronization\n",
	})

	b, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Delta Synchronization", b.Documents["crdts/deltas.md"].Title)
}
