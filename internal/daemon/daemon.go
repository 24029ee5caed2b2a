// Package daemon runs scheduled build-and-publish cycles.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/logfields"
	"github.com/mdpress/mdpress/internal/publish"
	"github.com/mdpress/mdpress/internal/site"
)

// Daemon periodically builds the book and pushes the result to the publish
// branch. Runs are serialized: a cycle that overruns the interval delays the
// next one instead of racing it.
type Daemon struct {
	cfg       *config.Config
	generator *site.Generator
	publisher *publish.Publisher
	scheduler gocron.Scheduler

	mu sync.Mutex // serializes build+publish cycles
}

// New creates a daemon around an existing generator.
func New(cfg *config.Config, g *site.Generator) (*Daemon, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Daemon{
		cfg:       cfg,
		generator: g,
		publisher: publish.NewPublisher(cfg),
		scheduler: s,
	}, nil
}

// Run schedules the periodic cycle and blocks until ctx is canceled or an
// interrupt arrives. One cycle runs immediately on startup.
func (d *Daemon) Run(ctx context.Context) error {
	interval := d.cfg.DaemonInterval()
	_, err := d.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(d.runCycle, ctx),
		gocron.WithName("build-publish"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule build job: %w", err)
	}

	slog.Info("Daemon started", "interval", interval.String())
	d.scheduler.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		slog.Info("Received signal; shutting down", "signal", sig.String())
	}
	return d.scheduler.Shutdown()
}

// runCycle performs one build-and-publish pass.
func (d *Daemon) runCycle(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buildID := uuid.NewString()
	slog.Info("Scheduled build starting", logfields.BuildID(buildID))

	report, err := d.generator.Build(ctx, buildID)
	if err != nil {
		slog.Error("Scheduled build failed", logfields.BuildID(buildID), "error", err)
		return
	}

	if d.cfg.Publish.URL == "" {
		slog.Debug("No publish target configured; skipping publish", logfields.BuildID(buildID))
		return
	}
	res, err := d.publisher.Publish(ctx, buildID, d.cfg.Build.Output)
	if err != nil {
		slog.Error("Scheduled publish failed", logfields.BuildID(buildID), "error", err)
		return
	}
	if res.Skipped {
		slog.Info("Scheduled cycle complete; nothing to publish",
			logfields.BuildID(buildID), "pages", report.Pages)
		return
	}
	slog.Info("Scheduled cycle complete",
		logfields.BuildID(buildID),
		"pages", report.Pages,
		logfields.Branch(res.Branch),
		logfields.Commit(res.Commit[:8]))
}
