package site

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/metrics"
)

func newTestState() *BuildState {
	cfg := &config.Config{}
	cfg.Book.Title = "t"
	cfg.ApplyDefaults()
	return newBuildState(cfg, newBuildReport("b1"), metrics.NoopRecorder{})
}

func TestRunStagesWarningContinues(t *testing.T) {
	bs := newTestState()
	var ran []string
	stages := []namedStage{
		{"warns", func(context.Context, *BuildState) error {
			ran = append(ran, "warns")
			return newWarnStageError("warns", fmt.Errorf("soft failure"))
		}},
		{"after", func(context.Context, *BuildState) error {
			ran = append(ran, "after")
			return nil
		}},
	}

	err := runStages(context.Background(), bs, metrics.NoopRecorder{}, nil, stages)
	require.NoError(t, err)
	assert.Equal(t, []string{"warns", "after"}, ran)
	assert.Len(t, bs.Report.Warnings, 1)
	assert.Equal(t, string(StageErrorWarning), bs.Report.StageErrors["warns"])
}

func TestRunStagesFatalStops(t *testing.T) {
	bs := newTestState()
	var afterRan bool
	stages := []namedStage{
		{"fails", func(context.Context, *BuildState) error {
			return newFatalStageError("fails", fmt.Errorf("hard failure"))
		}},
		{"after", func(context.Context, *BuildState) error {
			afterRan = true
			return nil
		}},
	}

	err := runStages(context.Background(), bs, metrics.NoopRecorder{}, nil, stages)
	require.Error(t, err)
	assert.False(t, afterRan)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, "fails", se.Stage)
}

func TestRunStagesWrapsPlainErrorsAsFatal(t *testing.T) {
	bs := newTestState()
	stages := []namedStage{
		{"plain", func(context.Context, *BuildState) error { return fmt.Errorf("oops") }},
	}

	err := runStages(context.Background(), bs, metrics.NoopRecorder{}, nil, stages)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, string(StageErrorFatal), bs.Report.StageErrors["plain"])
}

func TestRunStagesRecordsTimings(t *testing.T) {
	bs := newTestState()
	stages := []namedStage{
		{"one", func(context.Context, *BuildState) error { return nil }},
		{"two", func(context.Context, *BuildState) error { return nil }},
	}

	require.NoError(t, runStages(context.Background(), bs, metrics.NoopRecorder{}, nil, stages))
	assert.Contains(t, bs.Timings, "one")
	assert.Contains(t, bs.Timings, "two")
	assert.Contains(t, bs.Report.StageDurations, "one")
}

func TestRunStagesCanceledContext(t *testing.T) {
	bs := newTestState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stages := []namedStage{
		{"never", func(context.Context, *BuildState) error {
			t.Fatal("stage must not run after cancellation")
			return nil
		}},
	}
	err := runStages(ctx, bs, metrics.NoopRecorder{}, nil, stages)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorCanceled, se.Kind)
}
