// Package config loads and validates the book configuration (book.yaml).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mdpress/mdpress/internal/errors"
)

// Config is the root configuration for a book.
type Config struct {
	Book    BookConfig    `yaml:"book"`
	Build   BuildConfig   `yaml:"build,omitempty"`
	Verify  VerifyConfig  `yaml:"verify,omitempty"`
	Publish PublishConfig `yaml:"publish,omitempty"`
	Preview PreviewConfig `yaml:"preview,omitempty"`
	Daemon  DaemonConfig  `yaml:"daemon,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
}

// BookConfig describes the book itself.
type BookConfig struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	Authors     []string `yaml:"authors,omitempty"`
	Language    string   `yaml:"language,omitempty"` // defaults to "en"
	Src         string   `yaml:"src,omitempty"`      // source directory, defaults to "src"
}

// BuildConfig holds build tuning knobs. Zero values trigger sensible defaults.
type BuildConfig struct {
	Output string `yaml:"output,omitempty"` // output directory, defaults to "book"
	// Parallelism caps concurrent page renders. Defaults to GOMAXPROCS; values <1 are coerced.
	Parallelism int `yaml:"parallelism,omitempty"`
}

// VerifyConfig controls the runnable-sample verification pass.
type VerifyConfig struct {
	// Disabled skips sample execution entirely (samples still render).
	Disabled bool `yaml:"disabled,omitempty"`
	// Timeout is the per-sample execution budget (duration string, default 10s).
	Timeout string `yaml:"timeout,omitempty"`
	// Parallelism caps concurrently executing samples. Defaults to 4.
	Parallelism int `yaml:"parallelism,omitempty"`
}

// PublishConfig describes the publish target (a git branch consumed by a static host).
type PublishConfig struct {
	URL    string `yaml:"url"`              // remote repository URL
	Branch string `yaml:"branch,omitempty"` // defaults to "gh-pages"
	// TokenEnv names the environment variable holding the publish token.
	// Defaults to MDPRESS_PUBLISH_TOKEN. Only the publish stage reads it.
	TokenEnv    string `yaml:"token_env,omitempty"`
	AuthorName  string `yaml:"author_name,omitempty"`  // commit author, defaults to "mdpress"
	AuthorEmail string `yaml:"author_email,omitempty"` // defaults to "mdpress@localhost"
	// CNAME, when set, is written to the published tree root (custom-domain hosts).
	CNAME string `yaml:"cname,omitempty"`
}

// PreviewConfig controls the local preview server.
type PreviewConfig struct {
	Addr string `yaml:"addr,omitempty"` // defaults to ":4000"
}

// DaemonConfig controls scheduled build+publish runs.
type DaemonConfig struct {
	Interval string `yaml:"interval,omitempty"` // duration string, defaults to 10m
}

// NotifyConfig configures optional build event notifications.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"` // defaults to "mdpress.builds"
}

// HistoryConfig configures the build history store.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"` // defaults to ".mdpress/history.db"
}

// Load reads, parses, defaults, and validates a configuration file.
// Environment files (.env, .env.local) are loaded first so ${VAR} expansion
// and token lookup see them.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "read configuration file").WithContext("path", path)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "parse configuration file").WithContext("path", path)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads the first available env file; later files never override
// already-set variables (godotenv.Load semantics).
func loadEnvFiles() {
	for _, p := range []string{".env", ".env.local"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Book.Language == "" {
		c.Book.Language = "en"
	}
	if c.Book.Src == "" {
		c.Book.Src = "src"
	}
	if c.Build.Output == "" {
		c.Build.Output = "book"
	}
	if c.Verify.Timeout == "" {
		c.Verify.Timeout = "10s"
	}
	if c.Verify.Parallelism < 1 {
		c.Verify.Parallelism = 4
	}
	if c.Publish.Branch == "" {
		c.Publish.Branch = "gh-pages"
	}
	if c.Publish.TokenEnv == "" {
		c.Publish.TokenEnv = "MDPRESS_PUBLISH_TOKEN"
	}
	if c.Publish.AuthorName == "" {
		c.Publish.AuthorName = "mdpress"
	}
	if c.Publish.AuthorEmail == "" {
		c.Publish.AuthorEmail = "mdpress@localhost"
	}
	if c.Preview.Addr == "" {
		c.Preview.Addr = ":4000"
	}
	if c.Daemon.Interval == "" {
		c.Daemon.Interval = "10m"
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "mdpress.builds"
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(".mdpress", "history.db")
	}
}

// Validate checks configuration consistency. Defaults must be applied first.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Book.Title) == "" {
		return errors.New(errors.CategoryConfig, errors.SeverityFatal, "book.title is required")
	}
	if _, err := time.ParseDuration(c.Verify.Timeout); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "verify.timeout is not a valid duration").WithContext("value", c.Verify.Timeout)
	}
	if _, err := time.ParseDuration(c.Daemon.Interval); err != nil {
		return errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "daemon.interval is not a valid duration").WithContext("value", c.Daemon.Interval)
	}
	return nil
}

// VerifyTimeout returns the parsed per-sample timeout.
func (c *Config) VerifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Verify.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// DaemonInterval returns the parsed schedule interval.
func (c *Config) DaemonInterval() time.Duration {
	d, err := time.ParseDuration(c.Daemon.Interval)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// PublishToken resolves the publish credential from the environment.
func (c *Config) PublishToken() string {
	return os.Getenv(c.Publish.TokenEnv)
}

const starterConfig = `book:
  title: %q
  language: en
  src: src

build:
  output: book

publish:
  url: ""
  branch: gh-pages
`

const starterSummary = `# Summary

- [Introduction](intro.md)
`

const starterIntro = `# Introduction

Welcome to your new book.
`

// Init writes a starter configuration and book skeleton. Existing files are
// preserved unless force is set.
func Init(path string, title string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New(errors.CategoryConfig, errors.SeverityFatal, "configuration file already exists (use --force to overwrite)").WithContext("path", path)
	}
	if title == "" {
		title = "My Book"
	}
	if err := os.WriteFile(path, fmt.Appendf(nil, starterConfig, title), 0o644); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write configuration file")
	}
	if err := os.MkdirAll("src", 0o755); err != nil {
		return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "create source directory")
	}
	summaryPath := filepath.Join("src", "SUMMARY.md")
	if _, err := os.Stat(summaryPath); os.IsNotExist(err) || force {
		if err := os.WriteFile(summaryPath, []byte(starterSummary), 0o644); err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write starter summary")
		}
	}
	introPath := filepath.Join("src", "intro.md")
	if _, err := os.Stat(introPath); os.IsNotExist(err) || force {
		if err := os.WriteFile(introPath, []byte(starterIntro), 0o644); err != nil {
			return errors.Wrap(err, errors.CategoryFileSystem, errors.SeverityFatal, "write starter chapter")
		}
	}
	return nil
}
