package render

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/errors"
)

//go:embed assets
var embeddedAssets embed.FS

// CopyAssets writes the embedded theme assets (stylesheet, script) into the
// output tree and copies non-markdown files (images and the like) from the
// source tree so relative references keep resolving.
func CopyAssets(srcDir, outDir string) error {
	if err := copyEmbedded(outDir); err != nil {
		return err
	}
	return copySourceAssets(srcDir, outDir)
}

func copyEmbedded(outDir string) error {
	return fs.WalkDir(embeddedAssets, "assets", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(p, "assets/")
		data, err := embeddedAssets.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read embedded asset %s: %w", p, err)
		}
		target := filepath.Join(outDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "create asset directory").WithContext("path", target)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write asset").WithContext("path", target)
		}
		return nil
	})
}

// copySourceAssets mirrors everything under srcDir that is not a markdown
// document or the manifest into the output tree.
func copySourceAssets(srcDir, outDir string) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.EqualFold(filepath.Ext(name), ".md") || name == book.SummaryFile {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Clean(p))
		if err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "read source asset").WithContext("path", rel)
		}
		target := filepath.Join(outDir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "create asset directory").WithContext("path", target)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write source asset").WithContext("path", target)
		}
		return nil
	})
}

const indexRedirect = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0; url=%s">
<link rel="canonical" href="%s">
</head>
<body><a href="%s">Redirecting&hellip;</a></body>
</html>
`

// WriteIndex writes a root index.html redirecting to the first chapter, so
// the published site root lands on the start of the book.
func WriteIndex(b *book.Book, outDir string) error {
	if len(b.Order) == 0 {
		return errors.ValidationError("book has no chapters to index")
	}
	first := OutputPath(b.Order[0].Path)
	if first == "index.html" {
		return nil // first chapter already is the site root
	}
	html := fmt.Sprintf(indexRedirect, first, first, first)
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), []byte(html), 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write index redirect")
	}
	return nil
}
