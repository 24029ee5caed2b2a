package book

import (
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Expectation enumerates declared outcomes for a runnable sample.
type Expectation string

const (
	// ExpectSuccess marks a sample that must run to completion.
	ExpectSuccess Expectation = "must-succeed"
	// ExpectFailure marks a directed-failure demonstration: the sample must error.
	ExpectFailure Expectation = "must-fail"
	// ExpectSkip marks an illustrative-only sample: rendered, never executed.
	ExpectSkip Expectation = "skip"
)

// Sample is a fenced code block extracted for the verification pass.
type Sample struct {
	Document string // owning document path
	Index    int    // ordinal of the block within the document (runnable blocks only)
	Lang     string
	Code     string
	Expect   Expectation
}

// ID returns a stable diagnostic identifier, e.g. "intro.md#2".
func (s Sample) ID() string {
	return s.Document + "#" + itoa(s.Index)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [8]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

// ExtractSamples walks a document's fenced code blocks and returns the Go
// samples with their declared expectations. Info-string directives after the
// language tag (comma- or space-separated):
//
//	should_fail, must_fail  -> must-fail
//	no_run, norun, ignore, skip -> skip
//
// A plain `go` block defaults to must-succeed. Blocks in other languages are
// render-only and never extracted.
func ExtractSamples(docPath string, content []byte) []Sample {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))

	var samples []Sample
	index := 0
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		fcb, ok := n.(*gmast.FencedCodeBlock)
		if !ok {
			return gmast.WalkContinue, nil
		}
		lang, directives := parseInfo(fcb, content)
		if lang != "go" {
			return gmast.WalkContinue, nil
		}
		samples = append(samples, Sample{
			Document: docPath,
			Index:    index,
			Lang:     lang,
			Code:     blockText(fcb, content),
			Expect:   expectation(directives),
		})
		index++
		return gmast.WalkContinue, nil
	})
	return samples
}

// parseInfo splits a fence info string into language and directive tokens.
func parseInfo(fcb *gmast.FencedCodeBlock, source []byte) (lang string, directives []string) {
	if fcb.Info == nil {
		return "", nil
	}
	info := string(fcb.Info.Segment.Value(source))
	fields := strings.FieldsFunc(info, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func expectation(directives []string) Expectation {
	for _, d := range directives {
		switch strings.ToLower(d) {
		case "should_fail", "must_fail", "should-fail", "must-fail":
			return ExpectFailure
		case "no_run", "norun", "no-run", "ignore", "skip":
			return ExpectSkip
		}
	}
	return ExpectSuccess
}

func blockText(fcb *gmast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	lines := fcb.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

// RunnableSamples collects every sample across the book in reading order.
func (b *Book) RunnableSamples() []Sample {
	var out []Sample
	seen := map[string]bool{}
	for _, ch := range b.Order {
		if seen[ch.Path] {
			continue
		}
		seen[ch.Path] = true
		out = append(out, b.Documents[ch.Path].Samples...)
	}
	return out
}
