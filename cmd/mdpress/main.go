// Command mdpress builds, verifies, and publishes a book written in
// Markdown. See `mdpress --help` for the available commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/daemon"
	"github.com/mdpress/mdpress/internal/eventstore"
	"github.com/mdpress/mdpress/internal/notify"
	"github.com/mdpress/mdpress/internal/pipeline"
	"github.com/mdpress/mdpress/internal/preview"
	"github.com/mdpress/mdpress/internal/publish"
	"github.com/mdpress/mdpress/internal/site"
	"github.com/mdpress/mdpress/internal/verify"
	"github.com/mdpress/mdpress/internal/version"
)

type cli struct {
	Config  string           `short:"c" help:"Configuration file path" default:"book.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init    initCmd    `cmd:"" help:"Initialize a new book in the current directory"`
	Build   buildCmd   `cmd:"" help:"Build the book: verify samples, render pages, check links"`
	Test    testCmd    `cmd:"" help:"Run the sample verification pass without building"`
	Publish publishCmd `cmd:"" help:"Build and push the rendered book to the publish branch"`
	Serve   serveCmd   `cmd:"" help:"Serve the book locally, rebuilding on change"`
	Daemon  daemonCmd  `cmd:"" help:"Run scheduled build-and-publish cycles"`
	History historyCmd `cmd:"" help:"Show recent builds from the history store"`
}

// AfterApply runs after flag parsing; set up logging once.
func (c *cli) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("mdpress"),
		kong.Description("Build, verify, and publish Markdown books."),
		kong.Vars{"version": version.Version},
	)
	if err := ctx.Run(&c); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

// buildEnv wires the shared pipeline pieces a build-like command needs.
type buildEnv struct {
	cfg   *config.Config
	bus   *pipeline.Bus
	store eventstore.Store
	noti  *notify.Notifier
}

func newBuildEnv(configPath string) (*buildEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	bus := pipeline.NewBusWithEventStore(store)

	noti, err := notify.NewNotifier(cfg)
	if err != nil {
		// A broken notifier must not block local work.
		slog.Warn("Notifier unavailable; continuing without notifications", "error", err)
	}
	noti.Attach(bus)

	return &buildEnv{cfg: cfg, bus: bus, store: store, noti: noti}, nil
}

func (e *buildEnv) close() {
	e.noti.Close()
	if err := e.store.Close(); err != nil {
		slog.Warn("Failed to close history store", "error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

type initCmd struct {
	Title string `arg:"" optional:"" help:"Book title" default:"My Book"`
	Force bool   `help:"Overwrite an existing configuration file"`
}

func (cmd *initCmd) Run(c *cli) error {
	if err := config.Init(c.Config, cmd.Title, cmd.Force); err != nil {
		return err
	}
	fmt.Printf("Initialized book %q (%s)\n", cmd.Title, c.Config)
	return nil
}

type buildCmd struct{}

func (cmd *buildCmd) Run(c *cli) error {
	env, err := newBuildEnv(c.Config)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signalContext()
	defer cancel()

	buildID := uuid.NewString()
	report, err := site.NewGenerator(env.cfg, site.WithBus(env.bus)).Build(ctx, buildID)
	if err != nil {
		return err
	}
	fmt.Printf("Built %d pages into %s (%s)\n", report.Pages, env.cfg.Build.Output, report.Duration().Round(time.Millisecond))
	return nil
}

type testCmd struct{}

func (cmd *testCmd) Run(c *cli) error {
	env, err := newBuildEnv(c.Config)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signalContext()
	defer cancel()

	buildID := uuid.NewString()
	report, results, err := site.NewGenerator(env.cfg, site.WithBus(env.bus)).Test(ctx, buildID)
	for _, res := range results {
		marker := "ok"
		switch res.Outcome {
		case verify.OutcomeFailed:
			marker = "FAIL"
		case verify.OutcomeSkipped:
			marker = "skip"
		}
		fmt.Printf("%-4s %s (%s)\n", marker, res.Sample.ID(), res.Duration.Round(time.Millisecond))
		if res.Detail != "" && res.Outcome == verify.OutcomeFailed {
			fmt.Printf("     %s\n", res.Detail)
		}
	}
	fmt.Printf("%d passed, %d failed, %d skipped\n",
		report.SamplesPassed, report.SamplesFailed, report.SamplesSkipped)
	return err
}

type publishCmd struct {
	SkipBuild bool `help:"Push the existing output directory without rebuilding"`
}

func (cmd *publishCmd) Run(c *cli) error {
	env, err := newBuildEnv(c.Config)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := signalContext()
	defer cancel()

	buildID := uuid.NewString()
	if !cmd.SkipBuild {
		if _, err := site.NewGenerator(env.cfg, site.WithBus(env.bus)).Build(ctx, buildID); err != nil {
			return err
		}
	}

	res, err := publish.NewPublisher(env.cfg).Publish(ctx, buildID, env.cfg.Build.Output)
	if err != nil {
		return err
	}
	if res.Skipped {
		fmt.Println("Publish branch already up to date")
		return nil
	}
	_ = env.bus.Publish(pipeline.SitePublished{
		BuildID: buildID,
		Remote:  res.Remote,
		Branch:  res.Branch,
		Commit:  res.Commit,
	})
	fmt.Printf("Published %s to %s (%s)\n", res.Branch, res.Remote, res.Commit[:8])
	return nil
}

type serveCmd struct {
	Addr string `help:"Listen address, overrides preview.addr"`
}

func (cmd *serveCmd) Run(c *cli) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Preview.Addr = cmd.Addr
	}

	ctx, cancel := signalContext()
	defer cancel()
	return preview.NewServer(cfg).Run(ctx)
}

type daemonCmd struct{}

func (cmd *daemonCmd) Run(c *cli) error {
	env, err := newBuildEnv(c.Config)
	if err != nil {
		return err
	}
	defer env.close()

	d, err := daemon.New(env.cfg, site.NewGenerator(env.cfg, site.WithBus(env.bus)))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return d.Run(ctx)
}

type historyCmd struct {
	Limit   int    `help:"Number of builds to show" default:"20"`
	BuildID string `help:"Show the event log of one build"`
}

func (cmd *historyCmd) Run(c *cli) error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if cmd.BuildID != "" {
		events, err := store.Events(ctx, cmd.BuildID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events for build", cmd.BuildID)
			return nil
		}
		for _, ev := range events {
			fmt.Printf("%s  %-16s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, ev.Payload)
		}
		return nil
	}

	builds, err := store.RecentBuilds(ctx, cmd.Limit)
	if err != nil {
		return err
	}
	if len(builds) == 0 {
		fmt.Println("No builds recorded yet")
		return nil
	}
	for _, b := range builds {
		fmt.Printf("%s  %-8s %3d events  %s\n",
			b.StartedAt.Format("2006-01-02 15:04:05"), b.Status, b.Events, b.BuildID)
	}
	return nil
}
