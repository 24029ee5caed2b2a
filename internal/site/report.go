package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

// BuildReport captures high-level metrics about one build run.
type BuildReport struct {
	BuildID        string                   `json:"build_id"`
	Start          time.Time                `json:"start"`
	End            time.Time                `json:"end"`
	Outcome        BuildOutcome             `json:"outcome"`
	Pages          int                      `json:"pages"`
	Samples        int                      `json:"samples"`
	SamplesPassed  int                      `json:"samples_passed"`
	SamplesFailed  int                      `json:"samples_failed"`
	SamplesSkipped int                      `json:"samples_skipped"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	StageErrors    map[string]string        `json:"stage_errors,omitempty"` // stage -> error kind
	Warnings       []string                 `json:"warnings,omitempty"`
	Errors         []string                 `json:"errors,omitempty"`
}

// ReportFile is the report file name written into the output directory.
const ReportFile = "build-report.json"

func newBuildReport(buildID string) *BuildReport {
	return &BuildReport{
		BuildID:        buildID,
		Start:          time.Now(),
		StageDurations: make(map[string]time.Duration),
		StageErrors:    make(map[string]string),
	}
}

func (r *BuildReport) recordWarning(stage string, se *StageError) {
	r.StageErrors[stage] = string(se.Kind)
	r.Warnings = append(r.Warnings, se.Error())
}

func (r *BuildReport) recordError(stage string, se *StageError) {
	r.StageErrors[stage] = string(se.Kind)
	r.Errors = append(r.Errors, se.Error())
}

// finish stamps the end time and derives the overall outcome.
func (r *BuildReport) finish() {
	r.End = time.Now()
	r.Outcome = r.deriveOutcome()
}

func (r *BuildReport) deriveOutcome() BuildOutcome {
	for _, kind := range r.StageErrors {
		if kind == string(StageErrorCanceled) {
			return OutcomeCanceled
		}
	}
	if len(r.Errors) > 0 {
		return OutcomeFailed
	}
	if len(r.Warnings) > 0 {
		return OutcomeWarning
	}
	return OutcomeSuccess
}

// Duration is the wall-clock time of the whole run.
func (r *BuildReport) Duration() time.Duration { return r.End.Sub(r.Start) }

// Persist writes the report as JSON into dir.
func (r *BuildReport) Persist(dir string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal build report: %w", err)
	}
	path := filepath.Join(dir, ReportFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write build report: %w", err)
	}
	return nil
}
