package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/errors"
)

// SearchIndexFile is the name of the aggregated search index in the output tree.
const SearchIndexFile = "search-index.json"

// searchIndex maps normalized terms to the pages containing them.
type searchIndex struct {
	Pages []searchPage     `json:"pages"`
	Terms map[string][]int `json:"terms"` // term -> indexes into Pages
}

type searchPage struct {
	Path  string `json:"path"` // rendered page path
	Title string `json:"title"`
}

// WriteSearchIndex builds and writes the search index for the whole book.
// Output is deterministic: pages in reading order, term postings sorted.
func WriteSearchIndex(b *book.Book, outDir string) error {
	idx := searchIndex{Terms: make(map[string][]int)}

	seen := map[string]bool{}
	for _, ch := range b.Order {
		if seen[ch.Path] {
			continue
		}
		seen[ch.Path] = true
		doc := b.Documents[ch.Path]

		pageIdx := len(idx.Pages)
		idx.Pages = append(idx.Pages, searchPage{Path: OutputPath(ch.Path), Title: doc.Title})

		for term := range tokenize(plainText(doc.Content)) {
			idx.Terms[term] = append(idx.Terms[term], pageIdx)
		}
	}

	for term := range idx.Terms {
		sort.Ints(idx.Terms[term])
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, errors.SeverityFatal, "marshal search index")
	}
	if err := os.WriteFile(filepath.Join(outDir, SearchIndexFile), data, 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write search index")
	}
	return nil
}

// plainText extracts the prose of a markdown document (headings, paragraphs,
// list items); code blocks are excluded from the index.
func plainText(content []byte) string {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))

	var sb strings.Builder
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *gmast.FencedCodeBlock, *gmast.CodeBlock:
			return gmast.WalkSkipChildren, nil
		case *gmast.Text:
			sb.Write(t.Segment.Value(content))
			sb.WriteByte(' ')
		}
		return gmast.WalkContinue, nil
	})
	return sb.String()
}

// foldTransformer strips diacritics: decompose (NFKD), drop combining marks,
// recompose (NFC).
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// tokenize normalizes prose into a set of lowercase search terms.
func tokenize(s string) map[string]struct{} {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	terms := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(folded), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		if len(w) < 2 {
			continue
		}
		terms[w] = struct{}{}
	}
	return terms
}
