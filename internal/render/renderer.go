// Package render turns a loaded book into a static HTML site: one page per
// document, shared chrome (sidebar, previous/next), embedded assets, and an
// aggregated search index.
package render

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/sync/errgroup"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/errors"
)

// Renderer renders documents against a fixed book and configuration.
// It holds no mutable state across pages, so pages may render in parallel.
type Renderer struct {
	cfg  *config.Config
	book *book.Book
}

// NewRenderer creates a renderer for one build.
func NewRenderer(cfg *config.Config, b *book.Book) *Renderer {
	return &Renderer{cfg: cfg, book: b}
}

// OutputPath maps a manifest-relative document path to its rendered path.
func OutputPath(docPath string) string {
	return strings.TrimSuffix(docPath, path.Ext(docPath)) + ".html"
}

// RenderAll renders every document into outDir. Pages render in parallel;
// the first error cancels the remaining work. Rendering is deterministic:
// unchanged inputs produce byte-identical pages.
func (r *Renderer) RenderAll(ctx context.Context, outDir string) error {
	parallelism := r.cfg.Build.Parallelism
	if parallelism < 1 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, ch := range r.book.Order {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return r.renderPage(i, ch, outDir)
		})
	}
	return g.Wait()
}

// renderPage renders the i-th chapter in reading order.
func (r *Renderer) renderPage(i int, ch *book.Chapter, outDir string) error {
	doc := r.book.Documents[ch.Path]

	fragment, err := r.RenderFragment(doc)
	if err != nil {
		return err
	}

	page := pageData{
		BookTitle:   r.cfg.Book.Title,
		Description: r.cfg.Book.Description,
		Language:    r.cfg.Book.Language,
		Title:       doc.Title,
		Content:     fragment,
		PathPrefix:  pathPrefix(ch.Path),
	}
	page.Sidebar = renderSidebar(r.book.Summary.Chapters, ch.Path, page.PathPrefix)
	if i > 0 {
		prev := r.book.Order[i-1]
		page.Prev = &pageLink{Title: prev.Title, Href: page.PathPrefix + OutputPath(prev.Path)}
	}
	if i < len(r.book.Order)-1 {
		next := r.book.Order[i+1]
		page.Next = &pageLink{Title: next.Title, Href: page.PathPrefix + OutputPath(next.Path)}
	}

	html, err := renderTemplate(page)
	if err != nil {
		return errors.Wrap(err, errors.CategoryRender, errors.SeverityFatal, "assemble page").WithContext("path", ch.Path)
	}

	outPath := filepath.Join(outDir, filepath.FromSlash(OutputPath(ch.Path)))
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "create page directory").WithContext("path", outPath)
	}
	if err := os.WriteFile(outPath, html, 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write page").WithContext("path", outPath)
	}
	return nil
}

// RenderFragment converts one document's markdown to an HTML fragment,
// rewriting intra-book .md links to their rendered .html paths. A link to a
// markdown path not present in the book is a LinkError.
func (r *Renderer) RenderFragment(doc *book.Document) ([]byte, error) {
	rewriter := &linkRewriter{book: r.book, docPath: doc.Path}
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(rewriter.prioritized()),
		),
		goldmark.WithRendererOptions(ghtml.WithUnsafe()),
	)

	var buf bytes.Buffer
	if err := md.Convert(doc.Content, &buf); err != nil {
		return nil, errors.Wrap(err, errors.CategoryRender, errors.SeverityFatal, "render markdown").WithContext("path", doc.Path)
	}
	if rewriter.err != nil {
		return nil, rewriter.err
	}
	return buf.Bytes(), nil
}

// pathPrefix returns the "../" chain that takes a rendered page back to the
// site root, derived from the document's depth in the source tree.
func pathPrefix(docPath string) string {
	depth := strings.Count(docPath, "/")
	return strings.Repeat("../", depth)
}

// ResolveInternal resolves a relative markdown destination against the
// linking document and reports the manifest-relative target path.
func ResolveInternal(fromDoc, dest string) string {
	return path.Clean(path.Join(path.Dir(fromDoc), dest))
}
