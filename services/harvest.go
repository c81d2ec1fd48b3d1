package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/config"
	"sold-listings-scraper/models"
	"sold-listings-scraper/scraper"
	"sold-listings-scraper/scraper/domaincomau"
	"sold-listings-scraper/utils"
)

// ErrPersistence means no output, the raw dump included, could be written.
var ErrPersistence = errors.New("persistence failure")

// Status is how a harvest run ended.
type Status string

const (
	StatusCompleted   Status = "completed"
	StatusNothingToDo Status = "nothing-to-do"
	StatusCancelled   Status = "cancelled"
	// StatusDegraded: discovery stopped early, or at least one output failed
	// and the raw dump was used.
	StatusDegraded Status = "degraded"
)

// RecordWriter is a dataset sink.
type RecordWriter interface {
	Write(records []models.ListingRecord) error
	Target() string
}

// Checkpointer persists in-progress records between runs.
type Checkpointer interface {
	Save(ctx context.Context, records []models.ListingRecord) error
	Load(ctx context.Context) ([]models.ListingRecord, error)
	Clear(ctx context.Context) error
}

// SeenSet remembers URLs harvested by earlier runs.
type SeenSet interface {
	FilterUnseen(ctx context.Context, urls []string) ([]string, error)
	MarkSeen(ctx context.Context, urls []string) error
}

type FailureEntry struct {
	URL    string
	Reason string
}

// Summary reports one harvest run.
type Summary struct {
	RunID        string
	Status       Status
	Pages        []domaincomau.PageReport
	Discovered   int
	Resumed      int // records carried over from a checkpoint
	Skipped      int // discovered URLs already harvested
	Attempted    int
	Succeeded    int
	Complete     int
	Partial      int
	Failed       int
	Failures     []FailureEntry
	Records      []models.ListingRecord
	Outputs      []string
	Duration     time.Duration
	DiscoveryErr error // set when the search walk stopped before the last page
}

type Option func(*Harvester)

func WithCheckpoint(c Checkpointer) Option { return func(h *Harvester) { h.checkpoint = c } }

// WithWriters sets the dataset sinks. Every one of them is attempted.
func WithWriters(w ...RecordWriter) Option {
	return func(h *Harvester) { h.writers = append(h.writers, w...) }
}

// WithFallback sets the sink used when any dataset sink fails.
func WithFallback(w RecordWriter) Option { return func(h *Harvester) { h.fallback = w } }

func WithSeenSet(s SeenSet) Option { return func(h *Harvester) { h.seen = s } }

func WithRunID(id string) Option { return func(h *Harvester) { h.runID = id } }

// Harvester sequences a run: discovery, extraction, persistence.
type Harvester struct {
	cfg        config.Config
	browser    browser.Browser
	discoverer *domaincomau.Discoverer
	checkpoint Checkpointer
	writers    []RecordWriter
	fallback   RecordWriter
	seen       SeenSet
	runID      string
}

func NewHarvester(cfg config.Config, b browser.Browser, opts ...Option) (*Harvester, error) {
	d, err := domaincomau.NewDiscoverer(cfg)
	if err != nil {
		return nil, err
	}
	h := &Harvester{cfg: cfg, browser: b, discoverer: d}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run executes one harvest. The returned error is non-nil only when
// discovery cannot start or nothing at all could be persisted; everything
// else is reported in the Summary.
func (h *Harvester) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	log := utils.With("run_id", h.runID)
	sum := Summary{RunID: h.runID}
	acc := newAccumulator()

	if h.checkpoint != nil {
		prev, err := h.checkpoint.Load(ctx)
		if err != nil {
			log.Warn("could not load checkpoint, starting fresh", "error", err)
		}
		for _, rec := range prev {
			acc.add(rec)
		}
		sum.Resumed = acc.len()
		if sum.Resumed > 0 {
			log.Info("resuming from checkpoint", "records", sum.Resumed)
		}
	}

	utils.Section("Discovery")
	disc, err := h.discoverer.Discover(ctx, h.browser, h.cfg.SearchPages())
	sum.Pages = disc.Pages
	sum.Discovered = len(disc.URLs)
	if err != nil && ctx.Err() == nil {
		if len(disc.URLs) == 0 && acc.len() == 0 {
			return sum, fmt.Errorf("discovery: %w", err)
		}
		log.Error("discovery stopped early, continuing with what was found", "error", err, "links", len(disc.URLs))
		sum.DiscoveryErr = err
	}

	if len(disc.URLs) == 0 && ctx.Err() == nil && sum.DiscoveryErr == nil {
		if acc.len() == 0 {
			log.Warn("no listing links discovered, nothing to do")
			sum.Status = StatusNothingToDo
			sum.Duration = time.Since(start)
			return sum, nil
		}
		log.Warn("no listing links discovered, writing resumed records", "records", acc.len())
	}

	todo := h.pending(ctx, disc.URLs, acc)
	sum.Skipped = len(disc.URLs) - len(todo)

	if len(todo) > 0 && ctx.Err() == nil {
		utils.Section("Extraction")
		sum.Attempted = len(todo)
		h.consume(ctx, h.pool().Run(ctx, todo), len(todo), acc, &sum)
	}

	sum.Records = acc.ordered(disc.URLs)
	for _, rec := range sum.Records {
		if rec.Complete() {
			sum.Complete++
		} else {
			sum.Partial++
		}
	}

	utils.Section("Persistence")
	sum.Status = StatusCompleted
	switch {
	case ctx.Err() != nil:
		sum.Status = StatusCancelled
	case sum.DiscoveryErr != nil:
		sum.Status = StatusDegraded
	}
	err = h.persist(context.WithoutCancel(ctx), &sum)
	sum.Duration = time.Since(start)
	return sum, err
}

func (h *Harvester) pool() *scraper.WorkerPool {
	cfg := h.cfg
	newParse := func() scraper.ParseFunc {
		return domaincomau.NewParser(cfg.Clone()).Parse
	}
	return scraper.NewWorkerPool(h.browser, newParse, scraper.PoolOptions{
		Workers:       cfg.Workers,
		ReuseSessions: cfg.ReuseSessions,
		MinDelay:      cfg.MinDelay,
		MaxDelay:      cfg.MaxDelay,
	})
}

// pending drops URLs already harvested, by this run's checkpoint or by an
// earlier run.
func (h *Harvester) pending(ctx context.Context, urls []string, acc *accumulator) []string {
	todo := make([]string, 0, len(urls))
	for _, u := range urls {
		if !acc.has(u) {
			todo = append(todo, u)
		}
	}
	if h.seen == nil || len(todo) == 0 {
		return todo
	}

	unseen, err := h.seen.FilterUnseen(ctx, todo)
	if err != nil {
		utils.Warn("seen-set lookup failed, harvesting everything", "error", err)
		return todo
	}
	if skipped := len(todo) - len(unseen); skipped > 0 {
		utils.Info("skipping listings harvested by earlier runs", "count", skipped)
	}
	return unseen
}

// consume is the only reader of outcomes and the only writer of acc.
func (h *Harvester) consume(ctx context.Context, outcomes <-chan models.Outcome, total int, acc *accumulator, sum *Summary) {
	interval := h.cfg.CheckpointInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	processed, sinceCheckpoint := 0, 0
	for {
		select {
		case out, ok := <-outcomes:
			if !ok {
				return
			}
			processed++
			sinceCheckpoint++
			if out.OK() {
				sum.Succeeded++
				acc.add(*out.Record)
			} else {
				sum.Failed++
				sum.Failures = append(sum.Failures, FailureEntry{URL: out.URL, Reason: out.Reason()})
			}
			utils.Info("progress",
				"processed", fmt.Sprintf("%d/%d", processed, total),
				"succeeded", sum.Succeeded,
				"failed", sum.Failed,
			)

			if h.cfg.CheckpointEvery > 0 && sinceCheckpoint >= h.cfg.CheckpointEvery {
				h.saveCheckpoint(ctx, acc)
				sinceCheckpoint = 0
			}
		case <-ticker.C:
			if sinceCheckpoint > 0 {
				h.saveCheckpoint(ctx, acc)
				sinceCheckpoint = 0
			}
		}
	}
}

func (h *Harvester) saveCheckpoint(ctx context.Context, acc *accumulator) {
	if h.checkpoint == nil {
		return
	}
	if err := h.checkpoint.Save(context.WithoutCancel(ctx), acc.all()); err != nil {
		utils.Warn("checkpoint failed", "error", err)
		return
	}
	utils.Debug("checkpoint saved", "records", acc.len())
}

// persist writes the final dataset. A failing sink triggers the raw dump; the
// checkpoint is cleared only when every sink succeeded on a finished run.
func (h *Harvester) persist(ctx context.Context, sum *Summary) error {
	if len(sum.Records) == 0 {
		utils.Warn("no listings to write")
		return nil
	}

	failed := 0
	var errs []error
	for _, w := range h.writers {
		if err := w.Write(sum.Records); err != nil {
			utils.Error("output failed", "target", w.Target(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", w.Target(), err))
			failed++
			continue
		}
		sum.Outputs = append(sum.Outputs, w.Target())
	}

	if failed > 0 {
		if sum.Status == StatusCompleted {
			sum.Status = StatusDegraded
		}
		if h.fallback == nil {
			return fmt.Errorf("%w: %w", ErrPersistence, errors.Join(errs...))
		}
		if err := h.fallback.Write(sum.Records); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.fallback.Target(), err))
			return fmt.Errorf("%w: %w", ErrPersistence, errors.Join(errs...))
		}
		sum.Outputs = append(sum.Outputs, h.fallback.Target())
	}

	if h.checkpoint != nil {
		if failed == 0 && sum.Status == StatusCompleted {
			if err := h.checkpoint.Clear(ctx); err != nil {
				utils.Warn("could not clear checkpoint", "error", err)
			}
		} else if err := h.checkpoint.Save(ctx, sum.Records); err != nil {
			utils.Warn("final checkpoint failed", "error", err)
		}
	}

	if h.seen != nil && failed == 0 {
		urls := make([]string, len(sum.Records))
		for i, rec := range sum.Records {
			urls[i] = rec.URL
		}
		if err := h.seen.MarkSeen(ctx, urls); err != nil {
			utils.Warn("could not mark listings seen", "error", err)
		}
	}
	return nil
}

// accumulator holds at most one record per URL. A later record for the same
// URL replaces the earlier one in place.
type accumulator struct {
	index   map[string]int
	records []models.ListingRecord
}

func newAccumulator() *accumulator {
	return &accumulator{index: make(map[string]int)}
}

func (a *accumulator) add(rec models.ListingRecord) {
	if i, ok := a.index[rec.URL]; ok {
		a.records[i] = rec
		return
	}
	a.index[rec.URL] = len(a.records)
	a.records = append(a.records, rec)
}

func (a *accumulator) has(url string) bool {
	_, ok := a.index[url]
	return ok
}

func (a *accumulator) len() int { return len(a.records) }

func (a *accumulator) all() []models.ListingRecord {
	return append([]models.ListingRecord(nil), a.records...)
}

// ordered returns records in discovery order, followed by any resumed records
// that were not rediscovered.
func (a *accumulator) ordered(discovered []string) []models.ListingRecord {
	out := make([]models.ListingRecord, 0, len(a.records))
	used := make(map[string]bool, len(a.records))
	for _, u := range discovered {
		if i, ok := a.index[u]; ok && !used[u] {
			used[u] = true
			out = append(out, a.records[i])
		}
	}
	for _, rec := range a.records {
		if !used[rec.URL] {
			out = append(out, rec)
		}
	}
	return out
}
