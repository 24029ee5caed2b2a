// Package linkcheck verifies link integrity of a rendered output tree: every
// relative target referenced by a page must exist in the tree. Link integrity
// is a build-time invariant, not a runtime concern.
package linkcheck

import (
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/mdpress/mdpress/internal/errors"
)

// Link is one extracted reference from a rendered page.
type Link struct {
	Page      string // output-relative path of the referencing page
	Target    string // raw attribute value
	Tag       string // a, img, link, script
	Attribute string // href or src
}

// Check walks every .html file under outDir and validates that all relative
// link targets resolve to files in the tree. The first dangling link is
// returned as a LinkError.
func Check(outDir string) error {
	files, err := collectFiles(outDir)
	if err != nil {
		return err
	}

	for _, page := range sortedHTMLPages(files) {
		links, err := extractFromFile(filepath.Join(outDir, filepath.FromSlash(page)), page)
		if err != nil {
			return err
		}
		for _, l := range links {
			target, ok := resolveRelative(page, l.Target)
			if !ok {
				continue // external, anchor-only, or absolute reference
			}
			if !files[target] {
				return errors.LinkError("rendered page references a target missing from the output tree").
					WithContext("page", l.Page).
					WithContext("link", l.Target)
			}
		}
	}
	return nil
}

// collectFiles indexes every file under outDir by slash-separated relative path.
func collectFiles(outDir string) (map[string]bool, error) {
	files := make(map[string]bool)
	err := filepath.WalkDir(outDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outDir, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "walk output tree")
	}
	return files, nil
}

func sortedHTMLPages(files map[string]bool) []string {
	var pages []string
	for f := range files {
		if strings.HasSuffix(f, ".html") {
			pages = append(pages, f)
		}
	}
	// Deterministic order keeps the first-reported error stable.
	for i := 1; i < len(pages); i++ {
		for j := i; j > 0 && pages[j] < pages[j-1]; j-- {
			pages[j], pages[j-1] = pages[j-1], pages[j]
		}
	}
	return pages
}

// extractFromFile parses a rendered page and collects link-like attributes.
func extractFromFile(absPath, page string) ([]Link, error) {
	f, err := os.Open(filepath.Clean(absPath))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "open rendered page").WithContext("path", page)
	}
	defer func() { _ = f.Close() }()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, errors.SeverityFatal, "parse rendered page").WithContext("path", page)
	}

	var links []Link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a", "link":
				if v := attr(n, "href"); v != "" {
					links = append(links, Link{Page: page, Target: v, Tag: n.Data, Attribute: "href"})
				}
			case "img", "script":
				if v := attr(n, "src"); v != "" {
					links = append(links, Link{Page: page, Target: v, Tag: n.Data, Attribute: "src"})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// resolveRelative maps a raw target to an output-relative path. It reports
// ok=false for targets that are not relative file references (external URLs,
// pure anchors, site-absolute paths left to the hosting layer).
func resolveRelative(page, target string) (string, bool) {
	if target == "" || strings.HasPrefix(target, "#") || strings.HasPrefix(target, "/") {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	p := u.Path
	if p == "" {
		return "", false
	}
	resolved := path.Clean(path.Join(path.Dir(page), p))
	if strings.HasPrefix(resolved, "..") {
		// Escapes the output tree; treat as dangling via a never-present key.
		return resolved, true
	}
	return resolved, true
}
