package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = "# Panics\n\n" +
	"```go\n" +
	"package main\n\nfunc main() {}\n" +
	"```\n\n" +
	"```go,should_fail\n" +
	"package main\n\nfunc main() { panic(\"boom\") }\n" +
	"```\n\n" +
	"```go,no_run\n" +
	"package main // requires cgo\n" +
	"```\n\n" +
	"```rust\n" +
	"fn main() {}\n" +
	"```\n\n" +
	"```text\nnot code\n```\n"

func TestExtractSamplesDirectives(t *testing.T) {
	samples := ExtractSamples("panics.md", []byte(sampleDoc))
	require.Len(t, samples, 3, "only go blocks are extracted")

	assert.Equal(t, ExpectSuccess, samples[0].Expect)
	assert.Equal(t, ExpectFailure, samples[1].Expect)
	assert.Equal(t, ExpectSkip, samples[2].Expect)

	assert.Contains(t, samples[0].Code, "func main() {}")
	assert.Contains(t, samples[1].Code, "panic")
	assert.Equal(t, "panics.md#1", samples[1].ID())
}

func TestExtractSamplesSpaceSeparatedInfo(t *testing.T) {
	doc := "```go ignore\npackage main\n```\n"
	samples := ExtractSamples("d.md", []byte(doc))
	require.Len(t, samples, 1)
	assert.Equal(t, ExpectSkip, samples[0].Expect)
}

func TestExtractSamplesNoneForProseOnly(t *testing.T) {
	assert.Empty(t, ExtractSamples("d.md", []byte("# Title\n\nProse only.\n")))
}

func TestRunnableSamplesAcrossBook(t *testing.T) {
	dir := writeBook(t, map[string]string{
		"SUMMARY.md": "- [A](a.md)\n- [B](b.md)\n",
		"a.md":       "# A\n\n```go\npackage main\nfunc main() {}\n```\n",
		"b.md":       "# B\n\n```go,should_fail\npackage main\nfunc main() { panic(1) }\n```\n",
	})
	b, err := Load(dir)
	require.NoError(t, err)

	samples := b.RunnableSamples()
	require.Len(t, samples, 2)
	assert.Equal(t, "a.md", samples[0].Document)
	assert.Equal(t, "b.md", samples[1].Document)
}
