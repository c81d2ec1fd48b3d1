package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/config"
	"sold-listings-scraper/models"
)

const (
	searchPage1 = "https://www.domain.com.au/sold-listings/?suburb=braddon-act-2612&page=1"
	searchPage2 = "https://www.domain.com.au/sold-listings/?suburb=braddon-act-2612&page=2"

	urlA = "https://www.domain.com.au/1-alpha-street-braddon-act-2612-2019000001"
	urlB = "https://www.domain.com.au/2-beta-street-braddon-act-2612-2019000002"
	urlC = "https://www.domain.com.au/3-gamma-street-braddon-act-2612-2019000003"
	urlD = "https://www.domain.com.au/4-delta-street-braddon-act-2612-2019000004"
)

func resultsPage(urls ...string) string {
	html := `<html><body><div data-testid="results">`
	for _, u := range urls {
		html += fmt.Sprintf(`<a href="%s">listing</a>`, u)
	}
	return html + `</div></body></html>`
}

func listingPage(address, price string) string {
	return fmt.Sprintf(`<html><body>
<div data-testid="listing-details__summary">
  <h1 class="css-164r41r">%s</h1>
  <div class="css-twgrok">%s</div>
  <span class="css-h9g9i3">Sold at auction 3 Feb 2024</span>
</div>
<div class="css-1dtnjt5">
  <span class="css-in3yi3">Townhouse</span>
  <span class="css-lvv8is">2 Beds</span>
  <span class="css-lvv8is">1 Bath</span>
  <span class="css-lvv8is">1 Parking</span>
</div>
<div class="css-bq4jj8"><p>Close to the city.</p></div>
</body></html>`, address, price)
}

// site has B on both search pages.
func site() map[string]browser.Fixture {
	return map[string]browser.Fixture{
		searchPage1: {HTML: resultsPage(urlA, urlB, urlC)},
		searchPage2: {HTML: resultsPage(urlB, urlD)},
		urlA:        {HTML: listingPage("1 Alpha Street, Braddon ACT 2612", "$700,000")},
		urlB:        {HTML: listingPage("2 Beta Street, Braddon ACT 2612", "$820,000")},
		urlC:        {HTML: listingPage("3 Gamma Street, Braddon ACT 2612", "Contact agent")},
		urlD:        {HTML: listingPage("4 Delta Street, Braddon ACT 2612", "$650,000")},
	}
}

func harvestConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Suburbs = []string{"braddon-act-2612"}
	cfg.Filters = nil
	cfg.Pages = 2
	cfg.Workers = 2
	cfg.SettleDelay = 0
	cfg.RevealDelay = 0
	cfg.PageDelay = 0
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	cfg.CheckpointEvery = 1
	return cfg
}

type memWriter struct {
	target string
	err    error
	got    []models.ListingRecord
	calls  int
}

func (w *memWriter) Write(records []models.ListingRecord) error {
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.got = append([]models.ListingRecord(nil), records...)
	return nil
}

func (w *memWriter) Target() string { return w.target }

type memCheckpoint struct {
	mu      sync.Mutex
	records []models.ListingRecord
	saves   int
	cleared bool
}

func (c *memCheckpoint) Save(_ context.Context, records []models.ListingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	c.records = append([]models.ListingRecord(nil), records...)
	return nil
}

func (c *memCheckpoint) Load(context.Context) ([]models.ListingRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ListingRecord(nil), c.records...), nil
}

func (c *memCheckpoint) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = nil
	c.cleared = true
	return nil
}

type memSeen struct {
	seen map[string]bool
}

func (s *memSeen) FilterUnseen(_ context.Context, urls []string) ([]string, error) {
	var out []string
	for _, u := range urls {
		if !s.seen[u] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *memSeen) MarkSeen(_ context.Context, urls []string) error {
	for _, u := range urls {
		s.seen[u] = true
	}
	return nil
}

func urlsOf(records []models.ListingRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.URL
	}
	return out
}

func TestHarvestWritesEachListingOnce(t *testing.T) {
	b := browser.NewStatic(site())
	out := &memWriter{target: "mem"}
	cp := &memCheckpoint{}
	seen := &memSeen{seen: map[string]bool{}}

	h, err := NewHarvester(harvestConfig(), b,
		WithWriters(out), WithCheckpoint(cp), WithSeenSet(seen), WithRunID("run-1"))
	if err != nil {
		t.Fatalf("new harvester: %v", err)
	}
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if sum.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", sum.Status)
	}
	if sum.Discovered != 4 || sum.Attempted != 4 || sum.Succeeded != 4 || sum.Failed != 0 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if sum.Complete != 3 || sum.Partial != 1 {
		t.Fatalf("expected 3 complete and 1 partial, got %d/%d", sum.Complete, sum.Partial)
	}
	if want := []string{urlA, urlB, urlC, urlD}; !slices.Equal(urlsOf(out.got), want) {
		t.Fatalf("dataset = %v, want %v", urlsOf(out.got), want)
	}
	if !slices.Equal(sum.Outputs, []string{"mem"}) {
		t.Fatalf("unexpected outputs %v", sum.Outputs)
	}
	if cp.saves == 0 || !cp.cleared {
		t.Fatalf("expected checkpoints during the run and a clear at the end (saves=%d cleared=%v)", cp.saves, cp.cleared)
	}
	if len(seen.seen) != 4 {
		t.Fatalf("expected 4 urls marked seen, got %d", len(seen.seen))
	}
	if opened, closed := b.Sessions(); opened != closed {
		t.Fatalf("sessions leaked: %d opened, %d closed", opened, closed)
	}
}

func TestHarvestNothingToDo(t *testing.T) {
	b := browser.NewStatic(map[string]browser.Fixture{
		searchPage1: {HTML: `<html><body><p>No results</p></body></html>`},
		searchPage2: {HTML: `<html><body><p>No results</p></body></html>`},
	})
	out := &memWriter{target: "mem"}

	h, _ := NewHarvester(harvestConfig(), b, WithWriters(out))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Status != StatusNothingToDo {
		t.Fatalf("expected nothing-to-do, got %s", sum.Status)
	}
	if sum.Attempted != 0 || out.calls != 0 {
		t.Fatalf("no listing should be attempted or written")
	}
	if opened, _ := b.Sessions(); opened != 1 {
		t.Fatalf("only the discovery session should open, got %d", opened)
	}
}

func TestHarvestFallsBackOnWriteFailure(t *testing.T) {
	out := &memWriter{target: "csv", err: errors.New("disk full")}
	dump := &memWriter{target: "raw.json"}
	cp := &memCheckpoint{}

	h, _ := NewHarvester(harvestConfig(), browser.NewStatic(site()),
		WithWriters(out), WithFallback(dump), WithCheckpoint(cp))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("fallback succeeded, run should not fail: %v", err)
	}
	if sum.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", sum.Status)
	}
	if len(dump.got) != 4 {
		t.Fatalf("expected all records in the raw dump, got %d", len(dump.got))
	}
	if !slices.Equal(sum.Outputs, []string{"raw.json"}) {
		t.Fatalf("unexpected outputs %v", sum.Outputs)
	}
	if cp.cleared || len(cp.records) != 4 {
		t.Fatalf("checkpoint should keep the records after a failed write")
	}
}

func TestHarvestFailsWhenNothingPersists(t *testing.T) {
	out := &memWriter{target: "csv", err: errors.New("disk full")}
	h, _ := NewHarvester(harvestConfig(), browser.NewStatic(site()), WithWriters(out))

	_, err := h.Run(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestHarvestResumesFromCheckpoint(t *testing.T) {
	v := 1.0
	resumed := models.ListingRecord{URL: urlA, Address: "from checkpoint", SalePrice: &v}
	cp := &memCheckpoint{records: []models.ListingRecord{resumed}}
	out := &memWriter{target: "mem"}

	h, _ := NewHarvester(harvestConfig(), browser.NewStatic(site()), WithWriters(out), WithCheckpoint(cp))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Resumed != 1 || sum.Skipped != 1 || sum.Attempted != 3 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if len(out.got) != 4 || out.got[0].Address != "from checkpoint" {
		t.Fatalf("resumed record should be kept in place: %+v", out.got)
	}
}

func TestHarvestSkipsSeenListings(t *testing.T) {
	seen := &memSeen{seen: map[string]bool{urlB: true, urlD: true}}
	out := &memWriter{target: "mem"}

	h, _ := NewHarvester(harvestConfig(), browser.NewStatic(site()), WithWriters(out), WithSeenSet(seen))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Skipped != 2 || sum.Attempted != 2 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if !slices.Equal(urlsOf(out.got), []string{urlA, urlC}) {
		t.Fatalf("unexpected dataset %v", urlsOf(out.got))
	}
}

func TestHarvestRecordsFailures(t *testing.T) {
	fixtures := site()
	delete(fixtures, urlD)
	out := &memWriter{target: "mem"}

	h, _ := NewHarvester(harvestConfig(), browser.NewStatic(fixtures), WithWriters(out))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 1 || sum.Succeeded != 3 {
		t.Fatalf("unexpected counts %+v", sum)
	}
	if len(sum.Failures) != 1 || sum.Failures[0].URL != urlD || sum.Failures[0].Reason == "" {
		t.Fatalf("unexpected failures %+v", sum.Failures)
	}
	if len(out.got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out.got))
	}
}

func TestHarvestCancelledStillPersists(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cp := &memCheckpoint{records: []models.ListingRecord{{URL: urlA, Address: "kept"}}}
	out := &memWriter{target: "mem"}
	h, _ := NewHarvester(harvestConfig(), browser.NewStatic(site()), WithWriters(out), WithCheckpoint(cp))

	sum, err := h.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", sum.Status)
	}
	if len(out.got) != 1 || cp.cleared {
		t.Fatalf("cancelled run should write what it has and keep the checkpoint")
	}
}

// dyingBrowser fails the nth session request, as when Chrome exits.
type dyingBrowser struct {
	*browser.Static
	mu     sync.Mutex
	failOn int
	calls  int
}

func (b *dyingBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	b.mu.Unlock()
	if n == b.failOn {
		return nil, errors.New("chrome gone")
	}
	return b.Static.NewPage(ctx)
}

func TestHarvestWritesResumedRecordsWhenNothingDiscovered(t *testing.T) {
	b := browser.NewStatic(map[string]browser.Fixture{
		searchPage1: {HTML: `<html><body><p>No results</p></body></html>`},
		searchPage2: {HTML: `<html><body><p>No results</p></body></html>`},
	})
	cp := &memCheckpoint{records: []models.ListingRecord{{URL: urlA, Address: "from checkpoint"}}}
	out := &memWriter{target: "mem"}

	h, _ := NewHarvester(harvestConfig(), b, WithWriters(out), WithCheckpoint(cp))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", sum.Status)
	}
	if len(out.got) != 1 || out.got[0].URL != urlA {
		t.Fatalf("resumed record should be written, got %+v", out.got)
	}
	if !cp.cleared {
		t.Fatalf("checkpoint should be cleared once its records are written")
	}
}

func TestHarvestContinuesAfterDiscoveryLosesSession(t *testing.T) {
	fixtures := site()
	fixtures[searchPage2] = browser.Fixture{Err: fmt.Errorf("%w: target crashed", browser.ErrSession)}
	// Call 1 is the discovery session, call 2 its replacement.
	b := &dyingBrowser{Static: browser.NewStatic(fixtures), failOn: 2}
	out := &memWriter{target: "mem"}
	cp := &memCheckpoint{}

	h, _ := NewHarvester(harvestConfig(), b, WithWriters(out), WithCheckpoint(cp))
	sum, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("a lost discovery session should not abort the run: %v", err)
	}
	if sum.DiscoveryErr == nil || sum.Status != StatusDegraded {
		t.Fatalf("expected a degraded run with the discovery error, got %s / %v", sum.Status, sum.DiscoveryErr)
	}
	if want := []string{urlA, urlB, urlC}; !slices.Equal(urlsOf(out.got), want) {
		t.Fatalf("dataset = %v, want %v", urlsOf(out.got), want)
	}
	if cp.cleared {
		t.Fatalf("checkpoint should be kept after an incomplete walk")
	}
}

func TestHarvestFailsWhenDiscoveryCannotStart(t *testing.T) {
	b := &dyingBrowser{Static: browser.NewStatic(site()), failOn: 1}
	out := &memWriter{target: "mem"}

	h, _ := NewHarvester(harvestConfig(), b, WithWriters(out))
	if _, err := h.Run(context.Background()); err == nil {
		t.Fatalf("expected an error when no discovery session can be opened")
	}
	if out.calls != 0 {
		t.Fatalf("nothing should be written")
	}
}
