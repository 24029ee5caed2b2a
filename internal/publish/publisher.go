// Package publish replaces the contents of a git branch with a rendered
// site. Each run produces one commit and force-pushes it, so the branch
// always reflects exactly one build: concurrent publishers race, the last
// push wins, and readers never observe a half-written tree.
package publish

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/mdpress/mdpress/internal/config"
	"github.com/mdpress/mdpress/internal/errors"
	"github.com/mdpress/mdpress/internal/logfields"
	"github.com/mdpress/mdpress/internal/workspace"
)

// Result describes a completed publish run.
type Result struct {
	Remote  string
	Branch  string
	Commit  string // hash of the commit created on the branch
	Skipped bool   // true when the branch already matched the output
}

// Publisher pushes a rendered output tree to the configured branch.
type Publisher struct {
	cfg *config.Config
}

// NewPublisher creates a publisher for the given configuration.
func NewPublisher(cfg *config.Config) *Publisher {
	return &Publisher{cfg: cfg}
}

// Publish clones the publish branch into a scratch workspace, replaces its
// contents with outDir, commits, and force-pushes. A run that changes
// nothing is reported as skipped without creating a commit.
func (p *Publisher) Publish(ctx context.Context, buildID, outDir string) (*Result, error) {
	pub := p.cfg.Publish
	if pub.URL == "" {
		return nil, errors.PublishError("publish.url is not configured")
	}
	if _, err := os.Stat(outDir); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "output directory missing; build before publishing").
			WithContext("path", outDir)
	}

	ws := workspace.NewManager("")
	if err := ws.Create(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "create workspace")
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			slog.Warn("Failed to clean publish workspace", "error", err)
		}
	}()

	checkout := filepath.Join(ws.GetPath(), "checkout")
	repo, err := p.prepareBranch(ctx, checkout)
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "open worktree")
	}

	if err := clearWorktree(checkout); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "clear worktree")
	}
	if err := copyTree(outDir, checkout); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "copy output into worktree")
	}
	if err := writeHostFiles(checkout, pub.CNAME); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "write host files")
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "stage output")
	}
	status, err := wt.Status()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "read worktree status")
	}
	if status.IsClean() {
		slog.Info("Publish target already up to date", logfields.Branch(pub.Branch))
		return &Result{Remote: pub.URL, Branch: pub.Branch, Skipped: true}, nil
	}

	commit, err := wt.Commit(fmt.Sprintf("publish %s", buildID), &git.CommitOptions{
		Author: &object.Signature{
			Name:  pub.AuthorName,
			Email: pub.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "commit output")
	}

	refspec := gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/heads/%s", pub.Branch, pub.Branch))
	pushOpts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refspec},
		Force:      true,
		Auth:       p.auth(),
	}
	if err := repo.PushContext(ctx, pushOpts); err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "push publish branch").
			WithContext("remote", pub.URL).
			WithContext("branch", pub.Branch)
	}

	slog.Info("Published site",
		logfields.Branch(pub.Branch),
		logfields.Commit(commit.String()[:8]),
		logfields.URL(pub.URL))
	return &Result{Remote: pub.URL, Branch: pub.Branch, Commit: commit.String()}, nil
}

// prepareBranch clones the publish branch into dir. When the remote is empty
// or the branch does not exist yet, a fresh repository pointing at the
// remote is initialized instead, so the first publish creates the branch.
func (p *Publisher) prepareBranch(ctx context.Context, dir string) (*git.Repository, error) {
	pub := p.cfg.Publish
	ref := plumbing.NewBranchReferenceName(pub.Branch)

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:           pub.URL,
		ReferenceName: ref,
		SingleBranch:  true,
		Depth:         1,
		Auth:          p.auth(),
	})
	if err == nil {
		return repo, nil
	}
	if !isMissingBranch(err) {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "clone publish branch").
			WithContext("remote", pub.URL).
			WithContext("branch", pub.Branch)
	}

	// A failed clone can leave a partial checkout behind; start clean.
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "reset checkout directory")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "create checkout directory")
	}

	repo, err = git.PlainInit(dir, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "init publish repository")
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{pub.URL},
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "configure publish remote")
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, ref)); err != nil {
		return nil, errors.Wrap(err, errors.CategoryPublish, errors.SeverityFatal, "select publish branch")
	}
	slog.Debug("Publish branch does not exist yet; starting fresh", logfields.Branch(pub.Branch))
	return repo, nil
}

func (p *Publisher) auth() transport.AuthMethod {
	token := p.cfg.PublishToken()
	if token == "" || !strings.HasPrefix(p.cfg.Publish.URL, "http") {
		return nil
	}
	// GitHub-style token auth: any non-empty username, token as password.
	return &githttp.BasicAuth{Username: "mdpress", Password: token}
}

func isMissingBranch(err error) bool {
	if goerrors.Is(err, transport.ErrEmptyRemoteRepository) ||
		goerrors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	var noMatch git.NoMatchingRefSpecError
	if goerrors.As(err, &noMatch) {
		return true
	}
	return strings.Contains(err.Error(), "couldn't find remote ref")
}

// clearWorktree removes everything under dir except the .git directory.
func clearWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == git.GitDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyTree copies src into dst recursively, preserving relative layout.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// writeHostFiles adds static-host control files to the published tree.
func writeHostFiles(dir, cname string) error {
	// .nojekyll disables GitHub Pages' Jekyll pass so underscore-prefixed
	// asset paths are served as-is.
	if err := os.WriteFile(filepath.Join(dir, ".nojekyll"), nil, 0o644); err != nil {
		return err
	}
	if cname != "" {
		if err := os.WriteFile(filepath.Join(dir, "CNAME"), []byte(cname+"\n"), 0o644); err != nil {
			return err
		}
	}
	return nil
}
