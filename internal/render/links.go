package render

import (
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/errors"
)

// linkRewriter rewrites intra-book markdown link destinations to their
// rendered .html paths during parsing. The first unresolvable target is
// recorded in err; callers must check it after Convert.
type linkRewriter struct {
	book    *book.Book
	docPath string
	err     error
}

func (lr *linkRewriter) prioritized() util.PrioritizedValue {
	return util.Prioritized(lr, 100)
}

// Transform implements parser.ASTTransformer.
func (lr *linkRewriter) Transform(doc *gmast.Document, reader text.Reader, pc parser.Context) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		link, ok := n.(*gmast.Link)
		if !ok {
			return gmast.WalkContinue, nil
		}
		rewritten, err := lr.rewrite(string(link.Destination))
		if err != nil {
			if lr.err == nil {
				lr.err = err
			}
			return gmast.WalkStop, nil
		}
		link.Destination = []byte(rewritten)
		return gmast.WalkContinue, nil
	})
}

// rewrite maps a markdown destination to its rendered equivalent. External
// URLs, in-page anchors, and non-markdown paths pass through untouched.
func (lr *linkRewriter) rewrite(dest string) (string, error) {
	if dest == "" || isExternal(dest) || strings.HasPrefix(dest, "#") || strings.HasPrefix(dest, "/") {
		return dest, nil
	}

	target, fragment := splitFragment(dest)
	if !strings.HasSuffix(strings.ToLower(target), ".md") {
		return dest, nil
	}

	resolved := ResolveInternal(lr.docPath, target)
	if _, ok := lr.book.Documents[resolved]; !ok {
		return "", errors.LinkError("cross-document link target is not part of the book").
			WithContext("document", lr.docPath).
			WithContext("link", dest)
	}

	rewritten := OutputPath(target)
	if fragment != "" {
		rewritten += "#" + fragment
	}
	return rewritten, nil
}

func isExternal(dest string) bool {
	for _, scheme := range []string{"http://", "https://", "mailto:", "ftp://"} {
		if strings.HasPrefix(dest, scheme) {
			return true
		}
	}
	return false
}

func splitFragment(dest string) (target, fragment string) {
	if i := strings.IndexByte(dest, '#'); i >= 0 {
		return dest[:i], dest[i+1:]
	}
	return dest, ""
}
