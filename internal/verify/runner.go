// Package verify executes runnable documentation samples in ephemeral
// interpreter sandboxes and asserts their declared outcomes. It is a gate:
// it never changes site content, only passes or fails the build.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/sync/errgroup"

	"github.com/mdpress/mdpress/internal/book"
	"github.com/mdpress/mdpress/internal/errors"
	"github.com/mdpress/mdpress/internal/logfields"
)

// Outcome is the observed result of one sample.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Result records the verification of one sample.
type Result struct {
	Sample   book.Sample
	Outcome  Outcome
	Detail   string // execution error text, when relevant
	Duration time.Duration
}

// Runner executes samples with a per-sample timeout and bounded parallelism.
type Runner struct {
	Timeout     time.Duration
	Parallelism int
}

// NewRunner creates a runner; zero values get defaults (10s, 4).
func NewRunner(timeout time.Duration, parallelism int) *Runner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if parallelism < 1 {
		parallelism = 4
	}
	return &Runner{Timeout: timeout, Parallelism: parallelism}
}

// VerifyAll runs every sample and returns per-sample results. Any mismatch
// between declared expectation and observed outcome yields a SampleFailure
// error naming the offending sample; the results are still returned so
// callers can report the full picture.
func (r *Runner) VerifyAll(ctx context.Context, samples []book.Sample) ([]Result, error) {
	results := make([]Result, len(samples))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Parallelism)

	for i, s := range samples {
		g.Go(func() error {
			results[i] = r.verifyOne(ctx, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	for _, res := range results {
		if res.Outcome == OutcomeFailed {
			err := errors.SampleFailure("sample outcome mismatches its declared expectation").
				WithContext("sample", res.Sample.ID()).
				WithContext("expected", string(res.Sample.Expect)).
				WithContext("detail", res.Detail)
			return results, err
		}
	}
	return results, nil
}

// verifyOne executes a single sample and classifies the outcome against its
// declared expectation.
func (r *Runner) verifyOne(ctx context.Context, s book.Sample) Result {
	if s.Expect == book.ExpectSkip {
		return Result{Sample: s, Outcome: OutcomeSkipped}
	}

	start := time.Now()
	execErr := r.execute(ctx, s)
	dur := time.Since(start)

	res := Result{Sample: s, Duration: dur}
	switch s.Expect {
	case book.ExpectSuccess:
		if execErr != nil {
			res.Outcome = OutcomeFailed
			res.Detail = execErr.Error()
		} else {
			res.Outcome = OutcomePassed
		}
	case book.ExpectFailure:
		if execErr == nil {
			res.Outcome = OutcomeFailed
			res.Detail = "sample declared must-fail but ran to completion"
		} else {
			res.Outcome = OutcomePassed
			res.Detail = execErr.Error()
		}
	}

	slog.Debug("Sample verified",
		logfields.Sample(s.ID()),
		slog.String("outcome", string(res.Outcome)),
		logfields.DurationMS(float64(dur.Milliseconds())))
	return res
}

// execute runs the sample in a fresh interpreter. Each sample gets its own
// interpreter, so parallel execution shares no state. A panic inside the
// sample is an execution failure, not a runner crash.
func (r *Runner) execute(ctx context.Context, s book.Sample) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runInterpreted(s.Code)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sample %s: %w", s.ID(), ctx.Err())
	}
}

// runInterpreted evaluates the sample source and invokes main.
func runInterpreted(code string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	i := interp.New(interp.Options{})
	if useErr := i.Use(stdlib.Symbols); useErr != nil {
		return fmt.Errorf("load stdlib symbols: %w", useErr)
	}

	if _, evalErr := i.Eval(wrapSnippet(code)); evalErr != nil {
		return evalErr
	}

	mainVal, lookErr := i.Eval("main.main")
	if lookErr != nil {
		return fmt.Errorf("sample has no main: %w", lookErr)
	}
	mainFn, ok := mainVal.Interface().(func())
	if !ok {
		return fmt.Errorf("main has unexpected signature")
	}
	mainFn()
	return nil
}

// wrapSnippet turns a bare snippet into a complete program. Samples that
// already carry a package clause are evaluated as-is.
func wrapSnippet(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "package ") {
			return code
		}
		break
	}
	var sb strings.Builder
	sb.WriteString("package main\n\nfunc main() {\n")
	sb.WriteString(code)
	sb.WriteString("\n}\n")
	return sb.String()
}
