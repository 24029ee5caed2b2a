package site

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/metrics"
	"github.com/mdpress/mdpress/internal/pipeline"
	"github.com/mdpress/mdpress/internal/verify"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *BuildState) error

// Stage names, in pipeline order.
const (
	StageLoadBook    = "load_book"
	StageVerify      = "verify_samples"
	StageRenderPages = "render_pages"
	StageCopyAssets  = "copy_assets"
	StageSearchIndex = "search_index"
	StageWriteIndex  = "write_index"
	StageCheckLinks  = "check_links"
)

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// BuildState carries mutable state across stages.
type BuildState struct {
	Config   *config.Config
	Book     *book.Book
	StageDir string // staging directory pages are written into
	Results  []verify.Result
	Report   *BuildReport
	Timings  map[string]time.Duration
	Recorder metrics.Recorder
}

func newBuildState(cfg *config.Config, report *BuildReport, rec metrics.Recorder) *BuildState {
	return &BuildState{
		Config:   cfg,
		Report:   report,
		Timings:  make(map[string]time.Duration),
		Recorder: rec,
	}
}

type namedStage struct {
	name string
	fn   Stage
}

// runStages executes stages in order, recording timings, metrics, and bus
// events, stopping on the first fatal error. Warning stage errors are
// recorded and the pipeline continues.
func runStages(ctx context.Context, bs *BuildState, rec metrics.Recorder, bus *pipeline.Bus, stages []namedStage) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.name, ctx.Err())
			bs.Report.recordError(st.name, se)
			rec.IncStageResult(st.name, metrics.ResultCanceled)
			return se
		default:
		}

		t0 := time.Now()
		err := st.fn(ctx, bs)
		dur := time.Since(t0)
		bs.Timings[st.name] = dur
		bs.Report.StageDurations[st.name] = dur
		rec.ObserveStageDuration(st.name, dur)

		result := metrics.ResultSuccess
		var se *StageError
		if err != nil {
			if !goerrors.As(err, &se) {
				se = newFatalStageError(st.name, err)
			}
			switch se.Kind {
			case StageErrorWarning:
				result = metrics.ResultWarning
			case StageErrorCanceled:
				result = metrics.ResultCanceled
			default:
				result = metrics.ResultFatal
			}
		}
		rec.IncStageResult(st.name, result)
		publishStage(bus, bs.Report.BuildID, st.name, string(result), dur)

		if se == nil {
			continue
		}
		if se.Kind == StageErrorWarning {
			bs.Report.recordWarning(st.name, se)
			continue
		}
		bs.Report.recordError(st.name, se)
		return se
	}
	return nil
}

func publishStage(bus *pipeline.Bus, buildID, stage, result string, dur time.Duration) {
	if bus == nil {
		return
	}
	_ = bus.Publish(pipeline.StageCompleted{
		BuildID:  buildID,
		Stage:    stage,
		Result:   result,
		Duration: dur,
	})
}
