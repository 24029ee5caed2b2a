package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/mdpress/mdpress/internal/book"
)

// pageData is the model handed to the page template.
type pageData struct {
	BookTitle   string
	Description string
	Language    string
	Title       string
	Content     []byte
	Sidebar     template.HTML
	PathPrefix  string
	Prev        *pageLink
	Next        *pageLink
}

type pageLink struct {
	Title string
	Href  string
}

const pageTemplate = `<!DOCTYPE html>
<html lang="{{.Language}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - {{.BookTitle}}</title>
{{- if .Description}}
<meta name="description" content="{{.Description}}">
{{- end}}
<link rel="stylesheet" href="{{.PathPrefix}}css/style.css">
<script defer src="{{.PathPrefix}}js/book.js"></script>
</head>
<body>
<nav class="sidebar" aria-label="Table of contents">
<div class="book-title"><a href="{{.PathPrefix}}index.html">{{.BookTitle}}</a></div>
{{.Sidebar}}
</nav>
<main class="page">
<article class="content">
{{.Body}}
</article>
<nav class="chapter-nav">
{{- if .Prev}}
<a class="prev" rel="prev" href="{{.Prev.Href}}">&larr; {{.Prev.Title}}</a>
{{- end}}
{{- if .Next}}
<a class="next" rel="next" href="{{.Next.Href}}">{{.Next.Title}} &rarr;</a>
{{- end}}
</nav>
</main>
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// renderTemplate assembles the full page. The rendered markdown fragment is
// trusted output of our own renderer; it is injected unescaped.
func renderTemplate(page pageData) ([]byte, error) {
	data := struct {
		pageData
		Body template.HTML
	}{pageData: page, Body: template.HTML(page.Content)}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderSidebar renders the navigation tree as nested lists. The chapter
// whose path matches activePath is marked active.
func renderSidebar(chapters []*book.Chapter, activePath, prefix string) template.HTML {
	var sb strings.Builder
	writeSidebarList(&sb, chapters, activePath, prefix)
	return template.HTML(sb.String())
}

func writeSidebarList(sb *strings.Builder, chapters []*book.Chapter, activePath, prefix string) {
	if len(chapters) == 0 {
		return
	}
	sb.WriteString("<ol class=\"chapters\">")
	for _, ch := range chapters {
		if ch.IsSection() {
			sb.WriteString("<li class=\"section\"><span>")
			sb.WriteString(template.HTMLEscapeString(ch.Title))
			sb.WriteString("</span>")
		} else {
			class := "chapter"
			if ch.Path == activePath {
				class = "chapter active"
			}
			sb.WriteString("<li class=\"" + class + "\"><a href=\"")
			sb.WriteString(template.HTMLEscapeString(prefix + OutputPath(ch.Path)))
			sb.WriteString("\">")
			sb.WriteString(template.HTMLEscapeString(ch.Title))
			sb.WriteString("</a>")
		}
		writeSidebarList(sb, ch.Children, activePath, prefix)
		sb.WriteString("</li>")
	}
	sb.WriteString("</ol>")
}
