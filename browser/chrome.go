package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"sold-listings-scraper/utils"
)

// ChromeOptions configures the exec allocator.
type ChromeOptions struct {
	Headless     bool
	ExecPath     string
	UserAgent    string
	StartTimeout time.Duration // browser launch probe
	QueryTimeout time.Duration // FindAll, InnerHTML, Click
}

// Chrome launches one Chrome process per Page so sessions never share state.
type Chrome struct {
	opts        ChromeOptions
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChrome prepares the allocator and launches a throwaway browser to prove
// the backend works. A failure here is a configuration problem.
func NewChrome(opts ChromeOptions) (*Chrome, error) {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 10 * time.Second
	}

	utils.Info("launching chrome", "headless", opts.Headless)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts(opts)...)

	c := &Chrome{opts: opts, allocCtx: allocCtx, allocCancel: allocCancel}

	probe, err := c.NewPage(context.Background())
	if err != nil {
		allocCancel()
		return nil, fmt.Errorf("chrome backend unavailable: %w", err)
	}
	_ = probe.Close()

	utils.Success("browser ready")
	return c, nil
}

func (c *Chrome) NewPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tab, cancel := chromedp.NewContext(c.allocCtx)

	// The first Run allocates the browser. It must get the tab context itself:
	// a derived context with a deadline would tear the browser down with it.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tab) }()

	timer := time.NewTimer(c.opts.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", ErrSession, err)
		}
	case <-timer.C:
		cancel()
		return nil, fmt.Errorf("%w: browser did not start within %v", ErrSession, c.opts.StartTimeout)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	return &chromePage{tab: tab, cancel: cancel, queryTimeout: c.opts.QueryTimeout}, nil
}

func (c *Chrome) Close() error {
	utils.Info("closing browser allocator")
	c.allocCancel()
	return nil
}

type chromePage struct {
	tab          context.Context
	cancel       context.CancelFunc
	queryTimeout time.Duration
	url          string
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	rctx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(rctx, actions...)
}

// classify maps a chromedp error onto the package sentinels.
func (p *chromePage) classify(ctx context.Context, err error, onDeadline error) error {
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case p.tab.Err() != nil:
		return fmt.Errorf("%w: %v", ErrSession, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return onDeadline
	default:
		return err
	}
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.url = url
	err := p.run(ctx, timeout, chromedp.Navigate(url), hideWebDriver())
	err = p.classify(ctx, err, fmt.Errorf("%w: %s", ErrNavigationTimeout, url))
	if err != nil && !errors.Is(err, ErrNavigationTimeout) && !errors.Is(err, ErrSession) && ctx.Err() == nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	return err
}

func (p *chromePage) WaitFor(ctx context.Context, sel Selector, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitReady(sel.CSS(), chromedp.ByQuery))
	return p.classify(ctx, err, fmt.Errorf("%w: %s", ErrWaitTimeout, sel))
}

func (p *chromePage) FindAll(ctx context.Context, sel Selector) ([]Element, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, p.queryTimeout, chromedp.Nodes(sel.CSS(), &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err = p.classify(ctx, err, fmt.Errorf("%w: %s", ErrWaitTimeout, sel)); err != nil {
		return nil, err
	}

	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromeElement{page: p, node: n})
	}
	return out, nil
}

func (p *chromePage) URL() string { return p.url }

func (p *chromePage) Close() error {
	err := chromedp.Cancel(p.tab)
	p.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type chromeElement struct {
	page *chromePage
	node *cdp.Node
}

func (e *chromeElement) InnerHTML(ctx context.Context) (string, error) {
	var html string
	err := e.page.run(ctx, e.page.queryTimeout,
		chromedp.InnerHTML([]cdp.NodeID{e.node.NodeID}, &html, chromedp.ByNodeID))
	if err = e.page.classify(ctx, err, ErrWaitTimeout); err != nil {
		return "", err
	}
	return html, nil
}

func (e *chromeElement) Attr(name string) (string, bool) {
	v := e.node.AttributeValue(name)
	return v, v != ""
}

func (e *chromeElement) Click(ctx context.Context) error {
	err := e.page.run(ctx, e.page.queryTimeout, chromedp.MouseClickNode(e.node))
	return e.page.classify(ctx, err, ErrWaitTimeout)
}
