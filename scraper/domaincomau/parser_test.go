package domaincomau

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/config"
	"sold-listings-scraper/models"
)

const soldURL = "https://www.domain.com.au/12-example-street-braddon-act-2612-2019123456"

const soldHTML = `<html><body>
<div data-testid="listing-details__summary">
  <h1 class="css-164r41r">12 Example Street, Braddon ACT 2612</h1>
  <div class="css-twgrok">$600,000</div>
  <span class="css-h9g9i3">Sold by John Smith 12 Mar 2024</span>
</div>
<div class="css-1dtnjt5">
  <span class="css-in3yi3">House</span>
  <span class="css-lvv8is">3 Beds</span>
  <span class="css-lvv8is">2 Baths</span>
  <span class="css-lvv8is">1 Parking</span>
</div>
<div class="css-bq4jj8"><p>Sunny family home.</p><button class="css-1pn4141">Read more</button></div>
</body></html>`

const soldExpandedHTML = `<html><body>
<div data-testid="listing-details__summary">
  <h1 class="css-164r41r">12 Example Street, Braddon ACT 2612</h1>
  <div class="css-twgrok">$600,000</div>
  <span class="css-h9g9i3">Sold by John Smith 12 Mar 2024</span>
</div>
<div class="css-1dtnjt5">
  <span class="css-in3yi3">House</span>
  <span class="css-lvv8is">3 Beds</span>
  <span class="css-lvv8is">2 Baths</span>
  <span class="css-lvv8is">1 Parking</span>
</div>
<div class="css-bq4jj8"><p>Sunny family home.</p><p>Walk to the shops &amp; light rail.</p></div>
</body></html>`

const noPriceHTML = `<html><body>
<div data-testid="listing-details__summary">
  <h1 class="css-164r41r">7 Quiet Lane, Reid ACT 2612</h1>
  <div class="css-twgrok">Price Withheld</div>
</div>
<div class="css-1dtnjt5"><span class="css-in3yi3">Unit</span></div>
</body></html>`

// testConfig is the default config with every delay removed.
func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.SettleDelay = 0
	cfg.RevealDelay = 0
	cfg.PageDelay = 0
	cfg.MinDelay = 0
	cfg.MaxDelay = 0
	return cfg
}

func parse(t *testing.T, fixtures map[string]browser.Fixture, url string) models.Outcome {
	t.Helper()
	b := browser.NewStatic(fixtures)
	page, err := b.NewPage(context.Background())
	if err != nil {
		t.Fatalf("new page: %v", err)
	}
	defer page.Close()

	p := NewParser(testConfig())
	p.now = func() time.Time { return time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC) }
	return p.Parse(context.Background(), page, url)
}

func TestParseCompleteListing(t *testing.T) {
	out := parse(t, map[string]browser.Fixture{
		soldURL: {HTML: soldHTML, Reveal: map[string]string{".css-1pn4141": soldExpandedHTML}},
	}, soldURL)

	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	rec := out.Record
	if rec.URL != soldURL {
		t.Fatalf("unexpected url %s", rec.URL)
	}
	if rec.Address != "12 Example Street, Braddon ACT 2612" {
		t.Fatalf("unexpected address %q", rec.Address)
	}
	if rec.SalePrice == nil || *rec.SalePrice != 600000 {
		t.Fatalf("expected price 600000, got %v", rec.SalePrice)
	}
	if rec.SaleMethod != "by John Smith" {
		t.Fatalf("unexpected sale method %q", rec.SaleMethod)
	}
	if got := rec.SaleDate.Format("2006-01-02"); got != "2024-03-12" {
		t.Fatalf("unexpected sale date %s", got)
	}
	if rec.SaleKind != models.SaleKindOther {
		t.Fatalf("unexpected sale kind %q", rec.SaleKind)
	}
	if rec.DwellingType != "House" {
		t.Fatalf("unexpected dwelling type %q", rec.DwellingType)
	}
	if rec.Beds != 3 || rec.Baths != 2 || rec.Parking != 1 {
		t.Fatalf("expected 3/2/1, got %d/%d/%d", rec.Beds, rec.Baths, rec.Parking)
	}
	if rec.Description != "Sunny family home. Walk to the shops & light rail." {
		t.Fatalf("description not expanded: %q", rec.Description)
	}
	if len(rec.Missing) != 0 {
		t.Fatalf("expected nothing missing, got %v", rec.Missing)
	}
	if !rec.Complete() {
		t.Fatalf("expected a complete record")
	}
}

func TestParseMissingPriceIsPartial(t *testing.T) {
	url := "https://www.domain.com.au/7-quiet-lane-reid-act-2612-2019000007"
	out := parse(t, map[string]browser.Fixture{url: {HTML: noPriceHTML}}, url)

	if !out.OK() {
		t.Fatalf("a partial record is still a success, got %v", out.Err)
	}
	rec := out.Record
	if rec.SalePrice != nil {
		t.Fatalf("price must stay unset, got %v", *rec.SalePrice)
	}
	if rec.Complete() {
		t.Fatalf("expected a partial record")
	}
	if !slices.Contains(rec.Missing, models.FieldSalePrice) {
		t.Fatalf("sale_price should be listed as missing: %v", rec.Missing)
	}
	if rec.Beds.Known() || rec.Baths.Known() || rec.Parking.Known() {
		t.Fatalf("counts should be unknown, got %d/%d/%d", rec.Beds, rec.Baths, rec.Parking)
	}
	if rec.Address != "7 Quiet Lane, Reid ACT 2612" || rec.DwellingType != "Unit" {
		t.Fatalf("unexpected fields %q / %q", rec.Address, rec.DwellingType)
	}
}

func TestParseNavigationTimeoutIsBestEffort(t *testing.T) {
	out := parse(t, map[string]browser.Fixture{
		soldURL: {HTML: soldHTML, NavigationTimeout: true},
	}, soldURL)

	if !out.OK() {
		t.Fatalf("expected best-effort success, got %v", out.Err)
	}
	if out.Record.Address == "" {
		t.Fatalf("expected fields read from the partially loaded page")
	}
}

func TestParseUnreachableIsFailure(t *testing.T) {
	out := parse(t, map[string]browser.Fixture{
		soldURL: {Err: fmt.Errorf("%w: connection reset", browser.ErrUnreachable)},
	}, soldURL)

	if out.OK() {
		t.Fatalf("expected failure")
	}
	if !errors.Is(out.Err, browser.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", out.Err)
	}
	if out.URL != soldURL {
		t.Fatalf("failure must carry the url, got %q", out.URL)
	}
}

func TestParseCancelled(t *testing.T) {
	b := browser.NewStatic(map[string]browser.Fixture{soldURL: {HTML: soldHTML}})
	page, _ := b.NewPage(context.Background())
	defer page.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewParser(testConfig()).Parse(ctx, page, soldURL)
	if out.OK() || !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("expected a cancelled failure, got %+v", out)
	}
}

// crashedPage navigates, then every later call finds the browser gone.
type crashedPage struct {
	url       string
	waitAlive bool
	closed    bool
}

func (p *crashedPage) Navigate(_ context.Context, url string, _ time.Duration) error {
	p.url = url
	return nil
}

func (p *crashedPage) WaitFor(context.Context, browser.Selector, time.Duration) error {
	if p.waitAlive {
		return nil
	}
	return fmt.Errorf("%w: target crashed", browser.ErrSession)
}

func (p *crashedPage) FindAll(context.Context, browser.Selector) ([]browser.Element, error) {
	return nil, fmt.Errorf("%w: target crashed", browser.ErrSession)
}

func (p *crashedPage) URL() string { return p.url }

func (p *crashedPage) Close() error {
	p.closed = true
	return nil
}

func TestParseLostSessionIsFailure(t *testing.T) {
	tests := []struct {
		name string
		page *crashedPage
	}{
		{"during ready wait", &crashedPage{}},
		{"during field reads", &crashedPage{waitAlive: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewParser(testConfig()).Parse(context.Background(), tt.page, soldURL)
			if out.OK() {
				t.Fatalf("a lost session must not produce a record, got %+v", out.Record)
			}
			if !errors.Is(out.Err, browser.ErrSession) {
				t.Fatalf("expected ErrSession, got %v", out.Err)
			}
			if out.URL != soldURL {
				t.Fatalf("failure must carry the url, got %q", out.URL)
			}
		})
	}
}
