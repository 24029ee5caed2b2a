package book

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/mdpress/mdpress/internal/errors"
)

// Document is one authored content unit. Immutable once loaded.
type Document struct {
	Path    string // manifest-relative path, e.g. "crdts/deltas.md"
	AbsPath string
	Content []byte
	Title   string // first level-1 heading, falling back to the file name stem
	Samples []Sample
}

// Book binds the manifest, the documents it references, and the reading order.
type Book struct {
	SrcDir    string
	Summary   *Summary
	Documents map[string]*Document // keyed by manifest-relative path
	Order     []*Chapter           // flattened leaves in reading order
}

// SummaryFile is the manifest file name expected at the source root.
const SummaryFile = "SUMMARY.md"

// Load reads the manifest from srcDir, resolves every referenced document,
// and extracts titles and runnable samples. A reference with no backing file
// is a ValidationError; no partial book is returned.
func Load(srcDir string) (*Book, error) {
	summaryPath := filepath.Join(srcDir, SummaryFile)
	data, err := os.ReadFile(filepath.Clean(summaryPath))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, errors.SeverityFatal, "read navigation manifest").WithContext("path", summaryPath)
	}

	summary, err := ParseSummary(data)
	if err != nil {
		return nil, err
	}

	b := &Book{
		SrcDir:    srcDir,
		Summary:   summary,
		Documents: make(map[string]*Document),
		Order:     summary.Flatten(),
	}

	for _, ch := range b.Order {
		if _, ok := b.Documents[ch.Path]; ok {
			continue // same document referenced twice; load once
		}
		doc, err := loadDocument(srcDir, ch.Path)
		if err != nil {
			return nil, err
		}
		b.Documents[ch.Path] = doc
	}
	return b, nil
}

func loadDocument(srcDir, relPath string) (*Document, error) {
	absPath := filepath.Join(srcDir, filepath.FromSlash(relPath))
	content, err := os.ReadFile(filepath.Clean(absPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ValidationError("manifest references a document that does not exist").
				WithContext("path", relPath)
		}
		return nil, errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "read document").WithContext("path", relPath)
	}

	doc := &Document{
		Path:    relPath,
		AbsPath: absPath,
		Content: content,
	}
	doc.Title = extractTitle(content)
	if doc.Title == "" {
		doc.Title = titleFromFilename(relPath)
	}
	doc.Samples = ExtractSamples(relPath, content)
	return doc, nil
}

// extractTitle returns the text of the first level-1 heading, or "".
func extractTitle(content []byte) string {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))

	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering || title != "" {
			return gmast.WalkContinue, nil
		}
		if h, ok := n.(*gmast.Heading); ok && h.Level == 1 {
			title = string(nodeText(h, content))
			return gmast.WalkStop, nil
		}
		return gmast.WalkContinue, nil
	})
	return strings.TrimSpace(title)
}

// nodeText collects the raw text content beneath a node.
func nodeText(n gmast.Node, source []byte) []byte {
	var sb strings.Builder
	_ = gmast.Walk(n, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if t, ok := c.(*gmast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
		return gmast.WalkContinue, nil
	})
	return []byte(sb.String())
}

// titleFromFilename derives a fallback title from the file name stem.
func titleFromFilename(relPath string) string {
	base := filepath.Base(relPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ReplaceAll(stem, "-", " ")
	stem = strings.ReplaceAll(stem, "_", " ")
	return stem
}
