package site

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/errors"
	"github.com/mdpress/mdpress/internal/pipeline"
	"github.com/mdpress/mdpress/internal/verify"
)

func writeBook(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	for name, content := range files {
		path := filepath.Join(srcDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := &config.Config{}
	cfg.Book.Title = "Test Book"
	cfg.ApplyDefaults()
	cfg.Book.Src = srcDir
	cfg.Build.Output = filepath.Join(root, "book")
	return cfg
}

func validBookFiles() map[string]string {
	return map[string]string{
		"SUMMARY.md": "# Summary\n\n- [Intro](intro.md)\n- [Details](details.md)\n",
		"intro.md":   "# Intro\n\nSee [details](details.md).\n",
		"details.md": "# Details\n\nBack to [intro](intro.md).\n",
	}
}

func TestBuildWritesPagesAndReport(t *testing.T) {
	cfg := writeBook(t, validBookFiles())
	g := NewGenerator(cfg)

	report, err := g.Build(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 2, report.Pages)

	for _, f := range []string{"intro.html", "details.html", "index.html", "search-index.json", ReportFile} {
		_, err := os.Stat(filepath.Join(cfg.Build.Output, f))
		assert.NoError(t, err, f)
	}
	// staging dir must be gone
	entries, err := os.ReadDir(filepath.Dir(cfg.Build.Output))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-")
	}
}

func TestFailedBuildKeepsPreviousOutput(t *testing.T) {
	cfg := writeBook(t, validBookFiles())
	g := NewGenerator(cfg)
	_, err := g.Build(context.Background(), "b1")
	require.NoError(t, err)

	marker := filepath.Join(cfg.Build.Output, "intro.html")
	before, err := os.ReadFile(marker)
	require.NoError(t, err)

	// Break the book: dangling internal link.
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Book.Src, "intro.md"),
		[]byte("# Intro\n\nSee [gone](missing.md).\n"), 0o644))

	report, err := g.Build(context.Background(), "b2")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLink))
	assert.Equal(t, OutcomeFailed, report.Outcome)

	after, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, before, after, "previous output must survive a failed build")

	entries, err := os.ReadDir(filepath.Dir(cfg.Build.Output))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-", "failed build must clean its staging dir")
	}
}

func TestBuildFailsOnMissingDocument(t *testing.T) {
	files := validBookFiles()
	delete(files, "details.md")
	cfg := writeBook(t, files)

	report, err := NewGenerator(cfg).Build(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, OutcomeFailed, report.Outcome)
	_, statErr := os.Stat(cfg.Build.Output)
	assert.True(t, os.IsNotExist(statErr), "no output on first failed build")
}

func TestSampleFailureAbortsBeforeRender(t *testing.T) {
	cfg := writeBook(t, validBookFiles())
	g := NewGenerator(cfg)
	_, err := g.Build(context.Background(), "b1")
	require.NoError(t, err)

	marker := filepath.Join(cfg.Build.Output, "intro.html")
	before, err := os.ReadFile(marker)
	require.NoError(t, err)

	// A must-fail sample that runs fine must fail the build.
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.Book.Src, "intro.md"),
		[]byte("# Intro\n\nSee [details](details.md).\n\n```go,must_fail\npackage main\n\nfunc main() {}\n```\n"), 0o644))

	report, err := g.Build(context.Background(), "b2")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySample))
	assert.Equal(t, 1, report.SamplesFailed)
	assert.NotContains(t, report.StageDurations, StageRenderPages, "verify failure must stop the pipeline before rendering")

	after, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuildPublishesPipelineEvents(t *testing.T) {
	cfg := writeBook(t, validBookFiles())
	bus := pipeline.NewBus()
	var names []string
	bus.Subscribe("build.started", func(e pipeline.Event) error { names = append(names, e.Name()); return nil })
	bus.Subscribe("build.finished", func(e pipeline.Event) error { names = append(names, e.Name()); return nil })

	_, err := NewGenerator(cfg, WithBus(bus)).Build(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"build.started", "build.finished"}, names)
}

func TestTestModeReportsSampleFailure(t *testing.T) {
	cfg := writeBook(t, map[string]string{
		"SUMMARY.md": "# Summary\n\n- [Intro](intro.md)\n",
		"intro.md": "# Intro\n\n```go\npackage main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(undefined)\n}\n```\n",
	})

	report, results, err := NewGenerator(cfg).Test(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySample))
	require.Len(t, results, 1)
	assert.Equal(t, verify.OutcomeFailed, results[0].Outcome)
	assert.Equal(t, 1, report.SamplesFailed)
	assert.Equal(t, OutcomeFailed, report.Outcome)
}

func TestTestModePassesGoodSamples(t *testing.T) {
	cfg := writeBook(t, map[string]string{
		"SUMMARY.md": "# Summary\n\n- [Intro](intro.md)\n",
		"intro.md": "# Intro\n\n```go\npackage main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"ok\")\n}\n```\n" +
			"\n```go,skip\npackage main\n\nfunc main() { panic(\"never runs\") }\n```\n",
	})

	report, results, err := NewGenerator(cfg).Test(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, report.SamplesPassed)
	assert.Equal(t, 1, report.SamplesSkipped)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
}

func TestVerifyDisabledSkipsExecution(t *testing.T) {
	cfg := writeBook(t, map[string]string{
		"SUMMARY.md": "# Summary\n\n- [Intro](intro.md)\n",
		"intro.md":   "# Intro\n\n```go\npackage main\n\nfunc main() { panic(\"boom\") }\n```\n",
	})
	cfg.Verify.Disabled = true

	report, results, err := NewGenerator(cfg).Test(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 1, report.Samples)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
}

func TestBuildCanceledContext(t *testing.T) {
	cfg := writeBook(t, validBookFiles())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewGenerator(cfg).Build(ctx, "b1")
	require.Error(t, err)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
}
