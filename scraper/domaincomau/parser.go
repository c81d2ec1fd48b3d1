// Package domaincomau knows the domain.com.au sold-listings site: how to walk
// its paginated search results and how to read a sold-listing page.
package domaincomau

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/config"
	"sold-listings-scraper/extractor"
	"sold-listings-scraper/models"
	"sold-listings-scraper/utils"
)

// Parser reads one listing page into an Outcome. A Parser holds only its own
// copy of the config and is safe to use from one goroutine at a time.
type Parser struct {
	cfg config.Config
	now func() time.Time
}

func NewParser(cfg config.Config) *Parser {
	return &Parser{cfg: cfg, now: time.Now}
}

// Parse navigates page to url and extracts a record. Every step after a
// successful (or merely slow) navigation degrades instead of failing: a
// partial record is still a Success. A page that cannot be loaded at all or
// a session lost mid-page yields a Failure, as does a cancelled run.
func (p *Parser) Parse(ctx context.Context, page browser.Page, url string) models.Outcome {
	log := utils.With("url", url)

	err := page.Navigate(ctx, url, p.cfg.NavigationTimeout)
	switch {
	case err == nil:
	case errors.Is(err, browser.ErrNavigationTimeout):
		log.Warn("navigation timed out, extracting from what rendered")
	default:
		return models.Failure(url, fmt.Errorf("navigate: %w", err))
	}

	if p.cfg.ReadySelector != "" {
		if err := page.WaitFor(ctx, browser.Query(p.cfg.ReadySelector), p.cfg.ReadyTimeout); err != nil {
			if ctx.Err() != nil {
				return models.Failure(url, ctx.Err())
			}
			if errors.Is(err, browser.ErrSession) {
				return models.Failure(url, fmt.Errorf("wait for ready: %w", err))
			}
			log.Warn("ready signal not seen, extracting best-effort", "error", err)
		}
	}

	if err := utils.Sleep(ctx, p.cfg.SettleDelay); err != nil {
		return models.Failure(url, err)
	}

	if extractor.Reveal(ctx, page, p.cfg.RevealSelector, p.cfg.RevealedSelector) {
		if err := utils.Sleep(ctx, p.cfg.RevealDelay); err != nil {
			return models.Failure(url, err)
		}
	}

	raw, err := p.readFields(ctx, page)
	if err != nil {
		return models.Failure(url, fmt.Errorf("read fields: %w", err))
	}

	rec := BuildRecord(url, raw, p.now().UTC())
	if rec.Complete() {
		log.Debug("listing parsed", "address", rec.Address, "price", *rec.SalePrice)
	} else {
		log.Warn("partial listing", "missing", rec.Missing)
	}
	return models.Success(rec)
}

func (p *Parser) readFields(ctx context.Context, page browser.Page) (RawFields, error) {
	f := p.cfg.Fields
	var raw RawFields
	for _, field := range []struct {
		spec extractor.FieldSpec
		dst  *string
	}{
		{f.Address, &raw.Address},
		{f.Price, &raw.Price},
		{f.SaleLine, &raw.SaleLine},
		{f.DwellingType, &raw.DwellingType},
		{f.Beds, &raw.Beds},
		{f.Baths, &raw.Baths},
		{f.Parking, &raw.Parking},
		{f.Description, &raw.Description},
	} {
		v, err := extractor.Extract(ctx, page, field.spec)
		if err != nil {
			return RawFields{}, err
		}
		*field.dst = v
	}
	return raw, nil
}
