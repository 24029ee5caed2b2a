// Package book models a book: the navigation manifest (SUMMARY.md), the
// documents it binds, and the runnable samples embedded in them.
package book

import (
	"regexp"
	"strings"

	"github.com/mdpress/mdpress/internal/errors"
)

// Chapter is one node of the navigation tree: either a leaf bound to a
// document path or a section grouping label with children.
type Chapter struct {
	Title    string
	Path     string // manifest-relative document path; empty for sections and drafts
	Level    int
	Children []*Chapter
}

// IsSection reports whether the chapter is a grouping label with no document.
func (c *Chapter) IsSection() bool { return c.Path == "" }

// Summary is the parsed navigation manifest.
type Summary struct {
	Chapters []*Chapter
}

// linkedEntryRe captures: indent, title, path. Handles '*' or '-' list markers.
// Example: `  - [My Chapter](./my-chapter.md)`. Empty path marks a draft.
var linkedEntryRe = regexp.MustCompile(`^(?P<indent>\s*)[-*]\s+\[(?P<title>[^\]]+)\]\((?P<path>[^)]*)\)\s*$`)

// bareEntryRe matches section labels written as plain list items: `- Part One`.
var bareEntryRe = regexp.MustCompile(`^(?P<indent>\s*)[-*]\s+(?P<title>[^\[].*)$`)

// ParseSummary parses a SUMMARY.md outline into an ordered chapter tree.
// Ordering in the manifest determines sidebar order and linear reading order.
func ParseSummary(data []byte) (*Summary, error) {
	summary := &Summary{}

	// Stack of child lists; index = nesting level.
	stack := []*[]*Chapter{&summary.Chapters}
	lastLevel := 0

	for lineNo, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "<!--") {
			// Top-level markdown headings title the summary itself; skip.
			continue
		}
		if !strings.HasPrefix(trimmed, "- ") && !strings.HasPrefix(trimmed, "* ") {
			return nil, errors.ValidationError("unparsable manifest line").
				WithContext("line", lineNo+1).WithContext("text", trimmed)
		}

		var title, path, indent string
		if m := linkedEntryRe.FindStringSubmatch(line); m != nil {
			indent, title, path = m[1], strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
		} else if m := bareEntryRe.FindStringSubmatch(line); m != nil {
			indent, title = m[1], strings.TrimSpace(m[2])
		} else {
			return nil, errors.ValidationError("unparsable manifest entry").
				WithContext("line", lineNo+1).WithContext("text", trimmed)
		}

		level := indentLevel(indent)
		if level > lastLevel+1 {
			return nil, errors.ValidationError("manifest entry skips a nesting level").
				WithContext("line", lineNo+1).WithContext("title", title)
		}

		path = strings.TrimPrefix(path, "./")
		ch := &Chapter{Title: title, Path: path, Level: level}

		switch {
		case level == lastLevel+1:
			// Descend: the previous entry at the current level becomes the parent.
			parentList := stack[len(stack)-1]
			if len(*parentList) == 0 {
				return nil, errors.ValidationError("manifest begins with an indented entry").
					WithContext("line", lineNo+1).WithContext("title", title)
			}
			parent := (*parentList)[len(*parentList)-1]
			stack = append(stack, &parent.Children)
		case level < lastLevel:
			stack = stack[:level+1]
		}

		list := stack[len(stack)-1]
		*list = append(*list, ch)
		lastLevel = level
	}

	if len(summary.Chapters) == 0 {
		return nil, errors.ValidationError("manifest contains no entries")
	}
	return summary, nil
}

// indentLevel converts leading whitespace into a nesting level. Tabs count as
// one level, otherwise two spaces per level (mdbook convention).
func indentLevel(indent string) int {
	if indent == "" {
		return 0
	}
	if strings.Contains(indent, "\t") {
		return strings.Count(indent, "\t")
	}
	return len(indent) / 2
}

// Flatten returns the leaf chapters (those bound to documents) in linear
// reading order. Previous/next navigation derives from this sequence.
func (s *Summary) Flatten() []*Chapter {
	var out []*Chapter
	var walk func(chs []*Chapter)
	walk = func(chs []*Chapter) {
		for _, ch := range chs {
			if !ch.IsSection() {
				out = append(out, ch)
			}
			walk(ch.Children)
		}
	}
	walk(s.Chapters)
	return out
}

// Paths returns every referenced document path in manifest order.
func (s *Summary) Paths() []string {
	leaves := s.Flatten()
	paths := make([]string, 0, len(leaves))
	for _, ch := range leaves {
		paths = append(paths, ch.Path)
	}
	return paths
}
