package domaincomau

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/config"
	"sold-listings-scraper/utils"
)

// PageState is where discovery left one search page.
type PageState string

const (
	StateLoading           PageState = "loading"
	StateWaitingForResults PageState = "waiting-for-results"
	StateCollecting        PageState = "collecting"
	StateCollected         PageState = "collected"
	// StateNoResults: the results container never appeared; no links taken.
	StateNoResults PageState = "skipped-no-results"
	// StateUnusable: navigation failed outright.
	StateUnusable PageState = "skipped-unusable"
)

// PageReport records what happened to one search page.
type PageReport struct {
	URL   string
	State PageState
	Links int // listing links on the page
	New   int // links not seen on an earlier page
	Err   error
}

// Discovery is the result of walking all search pages.
type Discovery struct {
	URLs  []string // unique, in first-seen order
	Pages []PageReport
}

// Discoverer walks search-result pages one at a time on a single session.
type Discoverer struct {
	cfg     config.Config
	pattern *regexp.Regexp
}

func NewDiscoverer(cfg config.Config) (*Discoverer, error) {
	re, err := regexp.Compile(cfg.ListingPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: listing pattern: %v", config.ErrInvalid, err)
	}
	return &Discoverer{cfg: cfg, pattern: re}, nil
}

// Discover visits pages in order and returns every listing URL found,
// deduplicated. A page that cannot be used is skipped and reported; it never
// stops the walk. The returned error is non-nil only when ctx ends the walk
// early or no session can be opened; Discovery still holds what was found.
func (d *Discoverer) Discover(ctx context.Context, b browser.Browser, pages []string) (Discovery, error) {
	var res Discovery
	seen := make(map[string]bool)

	page, err := b.NewPage(ctx)
	if err != nil {
		return res, fmt.Errorf("open discovery session: %w", err)
	}
	defer func() {
		if page != nil {
			_ = page.Close()
		}
	}()

	for i, pageURL := range pages {
		if i > 0 {
			if err := utils.Sleep(ctx, d.cfg.PageDelay); err != nil {
				return res, err
			}
		}

		rep := d.visit(ctx, page, pageURL, seen, &res.URLs)
		res.Pages = append(res.Pages, rep)
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if errors.Is(rep.Err, browser.ErrSession) {
			utils.Warn("discovery session lost, reopening", "page", pageURL)
			_ = page.Close()
			page = nil
			fresh, err := b.NewPage(ctx)
			if err != nil {
				return res, fmt.Errorf("reopen discovery session: %w", err)
			}
			page = fresh
		}
	}

	utils.Success("discovery finished", "pages", len(pages), "links", len(res.URLs))
	return res, nil
}

func (d *Discoverer) visit(ctx context.Context, page browser.Page, pageURL string, seen map[string]bool, urls *[]string) PageReport {
	rep := PageReport{URL: pageURL, State: StateLoading}
	log := utils.With("page", pageURL)
	log.Info("loading search page")

	waitForResults := true
	err := page.Navigate(ctx, pageURL, d.cfg.NavigationTimeout)
	switch {
	case err == nil:
	case errors.Is(err, browser.ErrNavigationTimeout):
		// Slow pages usually carry their links anyway.
		log.Warn("navigation timed out, collecting what rendered")
		waitForResults = false
	default:
		log.Warn("search page unusable, skipping", "error", err)
		rep.State, rep.Err = StateUnusable, err
		return rep
	}

	if waitForResults {
		rep.State = StateWaitingForResults
		if err := page.WaitFor(ctx, browser.Query(d.cfg.ResultsSelector), d.cfg.ResultsTimeout); err != nil {
			log.Warn("results never appeared, skipping page", "error", err)
			rep.State, rep.Err = StateNoResults, err
			return rep
		}
	}

	rep.State = StateCollecting
	links, err := d.collect(ctx, page)
	if err != nil {
		log.Warn("collecting links failed, skipping page", "error", err)
		rep.State, rep.Err = StateUnusable, err
		return rep
	}

	for _, l := range links {
		rep.Links++
		if !seen[l] {
			seen[l] = true
			*urls = append(*urls, l)
			rep.New++
		}
	}
	rep.State = StateCollected
	log.Info("search page collected", "links", rep.Links, "new", rep.New)
	return rep
}

// collect returns the page's listing links in document order, deduplicated.
func (d *Discoverer) collect(ctx context.Context, page browser.Page) ([]string, error) {
	anchors, err := page.FindAll(ctx, browser.Query("a[href]"))
	if err != nil {
		return nil, err
	}

	base := page.URL()
	var out []string
	local := make(map[string]bool)
	for _, a := range anchors {
		href, ok := a.Attr("href")
		if !ok {
			continue
		}
		link, ok := d.ListingURL(base, href)
		if !ok || local[link] {
			continue
		}
		local[link] = true
		out = append(out, link)
	}
	return out, nil
}

// ListingURL resolves href against base, drops query and fragment, and
// reports whether the result is a listing page.
func (d *Discoverer) ListingURL(base, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if b, err := url.Parse(base); err == nil {
		ref = b.ResolveReference(ref)
	}
	ref.RawQuery = ""
	ref.ForceQuery = false
	ref.Fragment = ""
	ref.RawFragment = ""

	link := ref.String()
	return link, d.pattern.MatchString(link)
}
