package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

// Fixture is a saved page served by Static.
type Fixture struct {
	HTML string
	// NavigationTimeout makes Navigate report ErrNavigationTimeout while the
	// HTML stays readable, like a page that never fired its load event.
	NavigationTimeout bool
	// Err is returned from Navigate instead of loading the page.
	Err error
	// Reveal maps a control selector to the HTML the page shows after that
	// control is clicked.
	Reveal map[string]string
}

// Static replays saved HTML through the Page interface. It never waits:
// WaitFor succeeds or times out immediately.
type Static struct {
	mu       sync.Mutex
	fixtures map[string]Fixture
	opened   int
	closed   int
}

func NewStatic(fixtures map[string]Fixture) *Static {
	return &Static{fixtures: fixtures}
}

type fixtureIndex struct {
	Pages []struct {
		URL               string            `yaml:"url"`
		File              string            `yaml:"file"`
		NavigationTimeout bool              `yaml:"navigation_timeout"`
		Reveal            map[string]string `yaml:"reveal"`
	} `yaml:"pages"`
}

// LoadStatic reads dir/index.yaml, which maps URLs to HTML files in dir.
func LoadStatic(dir string) (*Static, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "index.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read fixture index: %w", err)
	}

	var idx fixtureIndex
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("parse fixture index: %w", err)
	}

	fixtures := make(map[string]Fixture, len(idx.Pages))
	for _, p := range idx.Pages {
		html, err := os.ReadFile(filepath.Join(dir, p.File))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", p.File, err)
		}
		fx := Fixture{HTML: string(html), NavigationTimeout: p.NavigationTimeout}
		if len(p.Reveal) > 0 {
			fx.Reveal = make(map[string]string, len(p.Reveal))
			for sel, file := range p.Reveal {
				revealed, err := os.ReadFile(filepath.Join(dir, file))
				if err != nil {
					return nil, fmt.Errorf("read fixture %s: %w", file, err)
				}
				fx.Reveal[sel] = string(revealed)
			}
		}
		fixtures[p.URL] = fx
	}

	return NewStatic(fixtures), nil
}

func (s *Static) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return &staticPage{browser: s}, nil
}

func (s *Static) Close() error { return nil }

// Sessions reports how many pages were opened and closed.
func (s *Static) Sessions() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

func (s *Static) fixture(url string) (Fixture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fx, ok := s.fixtures[url]
	return fx, ok
}

type staticPage struct {
	browser *Static
	mu      sync.Mutex
	url     string
	fx      Fixture
	doc     *goquery.Document
	closed  bool
}

func (p *staticPage) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: page closed", ErrSession)
	}

	p.url = url
	p.doc = nil
	fx, ok := p.browser.fixture(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnreachable, url)
	}
	if fx.Err != nil {
		return fx.Err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fx.HTML))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	p.fx = fx
	p.doc = doc

	if fx.NavigationTimeout {
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
	}
	return nil
}

func (p *staticPage) WaitFor(ctx context.Context, sel Selector, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil || p.doc.Find(sel.CSS()).Length() == 0 {
		return fmt.Errorf("%w: %s", ErrWaitTimeout, sel)
	}
	return nil
}

func (p *staticPage) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return nil, nil
	}

	var out []Element
	p.doc.Find(sel.CSS()).Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{page: p, sel: s})
	})
	return out, nil
}

func (p *staticPage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *staticPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.browser.mu.Lock()
	p.browser.closed++
	p.browser.mu.Unlock()
	return nil
}

type staticElement struct {
	page *staticPage
	sel  *goquery.Selection
}

func (e *staticElement) InnerHTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.sel.Html()
}

func (e *staticElement) Attr(name string) (string, bool) {
	return e.sel.Attr(name)
}

// Click swaps in the revealed HTML when this element matches a Reveal
// control; any other click is a no-op.
func (e *staticElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := e.page
	p.mu.Lock()
	defer p.mu.Unlock()

	for control, html := range p.fx.Reveal {
		if !e.sel.Is(control) {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return err
		}
		p.doc = doc
		return nil
	}
	return nil
}
