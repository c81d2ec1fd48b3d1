// Package browser defines the automation capability the scraper consumes and
// its two implementations: a chromedp-driven Chrome and a static fixture
// browser backed by goquery.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNavigationTimeout means the page did not finish loading in time.
	// Whatever rendered is still readable.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrWaitTimeout means a waited-for element never appeared.
	ErrWaitTimeout = errors.New("element not found before timeout")
	// ErrUnreachable is a hard navigation failure.
	ErrUnreachable = errors.New("page unreachable")
	// ErrSession means the browser session itself is unusable.
	ErrSession = errors.New("browser session failure")
)

// By names a lookup strategy for a Selector.
type By int

const (
	ByQuery By = iota // CSS selector
	ByID              // element id attribute
)

// Selector locates elements on a page.
type Selector struct {
	By    By
	Value string
}

func Query(css string) Selector { return Selector{By: ByQuery, Value: css} }

func ID(id string) Selector { return Selector{By: ByID, Value: id} }

// CSS returns the selector as a CSS query.
func (s Selector) CSS() string {
	if s.By == ByID {
		return fmt.Sprintf(`[id=%q]`, s.Value)
	}
	return s.Value
}

func (s Selector) String() string {
	if s.By == ByID {
		return "#" + s.Value
	}
	return s.Value
}

// Element is a handle to a node on a rendered page.
type Element interface {
	InnerHTML(ctx context.Context) (string, error)
	Attr(name string) (string, bool)
	Click(ctx context.Context) error
}

// Page is one browser session with a single tab.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	WaitFor(ctx context.Context, sel Selector, timeout time.Duration) error
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
	URL() string
	Close() error
}

// Browser hands out isolated sessions. Pages from the same Browser share no
// cookies, storage or process state.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
