package linkcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdpress/mdpress/internal/errors"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestCheckPassesOnIntactTree(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"intro.html":    `<html><body><a href="about.html">about</a><img src="img/d.png"></body></html>`,
		"about.html":    `<html><body><a href="intro.html#top">back</a></body></html>`,
		"img/d.png":     "png",
		"css/style.css": "body{}",
	})
	assert.NoError(t, Check(dir))
}

func TestCheckReportsDanglingHref(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"intro.html": `<html><body><a href="missing.html">gone</a></body></html>`,
	})
	err := Check(dir)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLink))
}

func TestCheckReportsDanglingImage(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"page.html": `<html><body><img src="img/nope.png"></body></html>`,
	})
	err := Check(dir)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLink))
}

func TestCheckIgnoresExternalAndAnchors(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"page.html": `<html><body>
<a href="https://example.com/x.html">ext</a>
<a href="#local">anchor</a>
<a href="mailto:a@b.c">mail</a>
<a href="/hosted/absolute.html">host</a>
</body></html>`,
	})
	assert.NoError(t, Check(dir))
}

func TestCheckNestedRelativePaths(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"crdts/deltas.html": `<html><body><a href="../intro.html">up</a><link href="../css/style.css"></body></html>`,
		"intro.html":        `<html><body></body></html>`,
		"css/style.css":     "body{}",
	})
	assert.NoError(t, Check(dir))
}

func TestCheckEscapingTreeIsDangling(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"page.html": `<html><body><a href="../../outside.html">out</a></body></html>`,
	})
	err := Check(dir)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLink))
}

func TestResolveRelative(t *testing.T) {
	got, ok := resolveRelative("crdts/index.html", "deltas.html")
	require.True(t, ok)
	assert.Equal(t, "crdts/deltas.html", got)

	got, ok = resolveRelative("crdts/index.html", "../about.html#x")
	require.True(t, ok)
	assert.Equal(t, "about.html", got)

	_, ok = resolveRelative("a.html", "https://example.com/")
	assert.False(t, ok)
}
