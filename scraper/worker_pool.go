// Package scraper runs listing extraction across a bounded pool of browser
// sessions.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/models"
	"sold-listings-scraper/utils"
)

// ParseFunc extracts one listing from an open page.
type ParseFunc func(ctx context.Context, page browser.Page, url string) models.Outcome

type PoolOptions struct {
	Workers       int
	ReuseSessions bool
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

// WorkerPool pulls listing URLs off an unbuffered channel. newParse is called
// once per worker so no parser state is shared between goroutines.
type WorkerPool struct {
	browser  browser.Browser
	newParse func() ParseFunc
	opts     PoolOptions
}

func NewWorkerPool(b browser.Browser, newParse func() ParseFunc, opts PoolOptions) *WorkerPool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &WorkerPool{browser: b, newParse: newParse, opts: opts}
}

// Run starts the workers and returns their outcomes in completion order. The
// channel yields exactly one outcome per distinct URL and is closed once all
// workers have exited. URLs still queued when ctx is cancelled come back as
// failures without a session being opened.
func (p *WorkerPool) Run(ctx context.Context, urls []string) <-chan models.Outcome {
	jobs := make(chan string)
	results := make(chan models.Outcome)

	workerCount := min(p.opts.Workers, len(urls))
	utils.Info("starting workers", "workers", workerCount, "listings", len(urls))

	g := new(errgroup.Group)
	g.Go(func() error {
		defer close(jobs)
		seen := make(map[string]bool, len(urls))
		for _, u := range urls {
			if seen[u] {
				continue
			}
			seen[u] = true
			jobs <- u
		}
		return nil
	})

	for id := 1; id <= workerCount; id++ {
		g.Go(func() error {
			p.worker(ctx, id, jobs, results)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()
	return results
}

func (p *WorkerPool) worker(ctx context.Context, id int, jobs <-chan string, results chan<- models.Outcome) {
	log := utils.With("worker", id)
	parse := p.newParse()

	var kept browser.Page
	defer func() {
		if kept != nil {
			_ = kept.Close()
		}
	}()

	for url := range jobs {
		if err := ctx.Err(); err != nil {
			results <- models.Failure(url, fmt.Errorf("not attempted: %w", err))
			continue
		}
		if err := utils.RandomDelay(ctx, p.opts.MinDelay, p.opts.MaxDelay); err != nil {
			results <- models.Failure(url, fmt.Errorf("not attempted: %w", err))
			continue
		}

		var out models.Outcome
		if p.opts.ReuseSessions {
			out, kept = p.reuse(ctx, kept, parse, url)
		} else {
			out = p.fresh(ctx, parse, url)
		}

		if out.OK() {
			log.Debug("listing done", "url", url)
		} else {
			log.Warn("listing failed", "url", url, "error", out.Reason())
		}
		results <- out
	}
}

// fresh runs one attempt on a session that lives only for this URL.
func (p *WorkerPool) fresh(ctx context.Context, parse ParseFunc, url string) models.Outcome {
	page, err := p.browser.NewPage(ctx)
	if err != nil {
		return models.Failure(url, fmt.Errorf("open session: %w", err))
	}
	defer func() { _ = page.Close() }()
	return attempt(ctx, parse, page, url)
}

// reuse runs on the worker's kept session, opening one if needed, and drops
// it after a session-level failure.
func (p *WorkerPool) reuse(ctx context.Context, page browser.Page, parse ParseFunc, url string) (models.Outcome, browser.Page) {
	if page == nil {
		var err error
		if page, err = p.browser.NewPage(ctx); err != nil {
			return models.Failure(url, fmt.Errorf("open session: %w", err)), nil
		}
	}
	out := attempt(ctx, parse, page, url)
	if errors.Is(out.Err, browser.ErrSession) {
		_ = page.Close()
		return out, nil
	}
	return out, page
}

func attempt(ctx context.Context, parse ParseFunc, page browser.Page, url string) (out models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			utils.Error("worker panic", "url", url, "panic", r, "stack", string(debug.Stack()))
			out = models.Failure(url, fmt.Errorf("%w: panic: %v", browser.ErrSession, r))
		}
	}()
	return parse(ctx, page, url)
}
