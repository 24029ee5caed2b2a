// Package pipeline provides a synchronous event bus connecting the build
// pipeline to the history store and optional notifiers.
package pipeline

import "time"

// Event is a named occurrence in a pipeline run.
type Event interface {
	Name() string
	GetBuildID() string
}

// BuildStarted is published when a pipeline run begins.
type BuildStarted struct {
	BuildID string    `json:"build_id"`
	Commit  string    `json:"commit,omitempty"`
	Mode    string    `json:"mode"` // build, test, publish
	At      time.Time `json:"at"`
}

func (e BuildStarted) Name() string       { return "build.started" }
func (e BuildStarted) GetBuildID() string { return e.BuildID }

// StageCompleted is published after each pipeline stage.
type StageCompleted struct {
	BuildID  string        `json:"build_id"`
	Stage    string        `json:"stage"`
	Result   string        `json:"result"`
	Duration time.Duration `json:"duration"`
}

func (e StageCompleted) Name() string       { return "stage.completed" }
func (e StageCompleted) GetBuildID() string { return e.BuildID }

// BuildFinished is published when a pipeline run ends.
type BuildFinished struct {
	BuildID  string        `json:"build_id"`
	Status   string        `json:"status"` // success or failed
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e BuildFinished) Name() string       { return "build.finished" }
func (e BuildFinished) GetBuildID() string { return e.BuildID }

// SitePublished is published after the publish target is replaced.
type SitePublished struct {
	BuildID string `json:"build_id"`
	Remote  string `json:"remote"`
	Branch  string `json:"branch"`
	Commit  string `json:"commit"` // commit created on the publish branch
}

func (e SitePublished) Name() string       { return "site.published" }
func (e SitePublished) GetBuildID() string { return e.BuildID }
