// Package site orchestrates the build pipeline: load the book, verify
// runnable samples, render pages into a staging directory, and atomically
// promote the staging directory to the configured output.
package site

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/linkcheck"
	"github.com/mdpress/mdpress/internal/logfields"
	"github.com/mdpress/mdpress/internal/metrics"
	"github.com/mdpress/mdpress/internal/pipeline"
	"github.com/mdpress/mdpress/internal/render"
	"github.com/mdpress/mdpress/internal/verify"
)

// Generator runs the build pipeline for one book.
type Generator struct {
	cfg      *config.Config
	recorder metrics.Recorder
	bus      *pipeline.Bus // optional; nil disables events
	stageDir string        // staging dir of the in-flight build
}

// Option configures a Generator.
type Option func(*Generator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(g *Generator) { g.recorder = r }
}

// WithBus attaches a pipeline event bus.
func WithBus(b *pipeline.Bus) Option {
	return func(g *Generator) { g.bus = b }
}

// NewGenerator creates a generator for the given configuration.
func NewGenerator(cfg *config.Config, opts ...Option) *Generator {
	g := &Generator{cfg: cfg, recorder: metrics.NoopRecorder{}}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Build runs the full pipeline under buildID. On success the staging
// directory replaces the configured output atomically; on failure the
// staging directory is removed and any previous output is left untouched.
func (g *Generator) Build(ctx context.Context, buildID string) (*BuildReport, error) {
	report := newBuildReport(buildID)
	bs := newBuildState(g.cfg, report, g.recorder)

	g.publishStarted(buildID, "build")

	if err := g.beginStaging(); err != nil {
		return report, fmt.Errorf("begin staging: %w", err)
	}
	bs.StageDir = g.stageDir

	stages := []namedStage{
		{StageLoadBook, stageLoadBook},
		{StageVerify, stageVerifySamples},
		{StageRenderPages, stageRenderPages},
		{StageCopyAssets, stageCopyAssets},
		{StageSearchIndex, stageSearchIndex},
		{StageWriteIndex, stageWriteIndex},
		{StageCheckLinks, stageCheckLinks},
	}

	if err := runStages(ctx, bs, g.recorder, g.bus, stages); err != nil {
		g.abortStaging()
		report.finish()
		g.finishBuild(report, err)
		return report, err
	}

	report.finish()
	if err := g.finalizeStaging(); err != nil {
		report.Outcome = OutcomeFailed
		g.finishBuild(report, err)
		return report, fmt.Errorf("finalize staging: %w", err)
	}
	if err := report.Persist(g.cfg.Build.Output); err != nil {
		slog.Warn("Failed to persist build report", "error", err)
	}
	g.finishBuild(report, nil)
	slog.Info("Build complete",
		logfields.BuildID(buildID),
		"pages", report.Pages,
		"samples", report.Samples,
		logfields.DurationMS(float64(report.Duration().Milliseconds())))
	return report, nil
}

// Test runs the load and verify stages only. Nothing is rendered and no
// staging directory is created.
func (g *Generator) Test(ctx context.Context, buildID string) (*BuildReport, []verify.Result, error) {
	report := newBuildReport(buildID)
	bs := newBuildState(g.cfg, report, g.recorder)

	g.publishStarted(buildID, "test")

	stages := []namedStage{
		{StageLoadBook, stageLoadBook},
		{StageVerify, stageVerifySamples},
	}
	err := runStages(ctx, bs, g.recorder, g.bus, stages)
	report.finish()
	g.finishBuild(report, err)
	return report, bs.Results, err
}

func (g *Generator) publishStarted(buildID, mode string) {
	if g.bus == nil {
		return
	}
	_ = g.bus.Publish(pipeline.BuildStarted{BuildID: buildID, Mode: mode, At: time.Now()})
}

func (g *Generator) finishBuild(report *BuildReport, err error) {
	g.recorder.ObserveBuildDuration(report.Duration())
	g.recorder.IncBuildOutcome(metrics.ResultLabel(report.Outcome))
	if g.bus == nil {
		return
	}
	ev := pipeline.BuildFinished{
		BuildID:  report.BuildID,
		Status:   string(report.Outcome),
		Duration: report.Duration(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	_ = g.bus.Publish(ev)
}

// beginStaging creates a sibling staging directory for atomic build output.
func (g *Generator) beginStaging() error {
	stage := fmt.Sprintf("%s.staging-%d", g.cfg.Build.Output, time.Now().UnixNano())
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return err
	}
	g.stageDir = stage
	slog.Debug("Initialized staging directory", "staging", stage, "final", g.cfg.Build.Output)
	return nil
}

// finalizeStaging promotes the staging directory to the final output path.
// The previous output is renamed aside first so the swap is a single rename,
// then removed best-effort.
func (g *Generator) finalizeStaging() error {
	if g.stageDir == "" {
		return fmt.Errorf("no staging directory initialized")
	}
	out := g.cfg.Build.Output
	prev := out + ".prev"
	if _, err := os.Stat(prev); err == nil {
		if err := os.RemoveAll(prev); err != nil {
			return fmt.Errorf("remove previous backup: %w", err)
		}
	}
	if _, err := os.Stat(out); err == nil {
		if err := os.Rename(out, prev); err != nil {
			return fmt.Errorf("backup existing output: %w", err)
		}
	}
	if err := os.Rename(g.stageDir, out); err != nil {
		return fmt.Errorf("promote staging: %w", err)
	}
	g.stageDir = ""
	if err := os.RemoveAll(prev); err != nil {
		slog.Warn("Failed to remove previous backup", logfields.Path(prev), "error", err)
	}
	slog.Info("Promoted staging directory", "output", out)
	return nil
}

// abortStaging removes the staging directory after a failed build.
func (g *Generator) abortStaging() {
	if g.stageDir == "" {
		return
	}
	dir := g.stageDir
	g.stageDir = ""
	if err := os.RemoveAll(dir); err != nil {
		slog.Warn("Failed to remove staging directory after abort", "staging", dir, "error", err)
	}
}

// Stage implementations.

func stageLoadBook(_ context.Context, bs *BuildState) error {
	b, err := book.Load(bs.Config.Book.Src)
	if err != nil {
		return newFatalStageError(StageLoadBook, err)
	}
	bs.Book = b
	bs.Report.Pages = len(b.Order)
	slog.Debug("Loaded book", "chapters", len(b.Order), logfields.Path(bs.Config.Book.Src))
	return nil
}

func stageVerifySamples(ctx context.Context, bs *BuildState) error {
	samples := bs.Book.RunnableSamples()
	bs.Report.Samples = len(samples)
	if bs.Config.Verify.Disabled || len(samples) == 0 {
		return nil
	}

	runner := verify.NewRunner(bs.Config.VerifyTimeout(), bs.Config.Verify.Parallelism)
	results, err := runner.VerifyAll(ctx, samples)
	bs.Results = results
	for _, res := range results {
		bs.Recorder.IncSampleOutcome(string(res.Outcome))
		switch res.Outcome {
		case verify.OutcomePassed:
			bs.Report.SamplesPassed++
		case verify.OutcomeFailed:
			bs.Report.SamplesFailed++
		case verify.OutcomeSkipped:
			bs.Report.SamplesSkipped++
		}
	}
	if err != nil {
		return newFatalStageError(StageVerify, err)
	}
	return nil
}

func stageRenderPages(ctx context.Context, bs *BuildState) error {
	r := render.NewRenderer(bs.Config, bs.Book)
	if err := r.RenderAll(ctx, bs.StageDir); err != nil {
		return newFatalStageError(StageRenderPages, err)
	}
	return nil
}

func stageCopyAssets(_ context.Context, bs *BuildState) error {
	if err := render.CopyAssets(bs.Config.Book.Src, bs.StageDir); err != nil {
		return newFatalStageError(StageCopyAssets, err)
	}
	return nil
}

func stageSearchIndex(_ context.Context, bs *BuildState) error {
	if err := render.WriteSearchIndex(bs.Book, bs.StageDir); err != nil {
		// Search is an enhancement; a broken index should not block publishing.
		return newWarnStageError(StageSearchIndex, err)
	}
	return nil
}

func stageWriteIndex(_ context.Context, bs *BuildState) error {
	if err := render.WriteIndex(bs.Book, bs.StageDir); err != nil {
		return newFatalStageError(StageWriteIndex, err)
	}
	return nil
}

func stageCheckLinks(_ context.Context, bs *BuildState) error {
	if err := linkcheck.Check(bs.StageDir); err != nil {
		return newFatalStageError(StageCheckLinks, err)
	}
	return nil
}
