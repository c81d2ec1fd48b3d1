package browser

import (
	"context"
	"math/rand"

	"github.com/chromedp/chromedp"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
}

// userAgent is the configured agent, or a random desktop Chrome one.
func userAgent(opts ChromeOptions) string {
	if opts.UserAgent != "" {
		return opts.UserAgent
	}
	return userAgents[rand.Intn(len(userAgents))]
}

// allocatorOpts returns exec-allocator flags that keep the automation
// fingerprint small:
//   - disable-blink-features=AutomationControlled drops navigator.webdriver
//   - headless=new is harder to tell apart from a headed browser
//   - a desktop-sized window
func allocatorOpts(opts ChromeOptions) []chromedp.ExecAllocatorOption {
	out := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent(opts)),
	}

	if opts.Headless {
		out = append(out, chromedp.Flag("headless", "new"))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}

	return out
}

// hideWebDriver patches the navigator properties that page scripts probe
// for automation.
func hideWebDriver() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.Evaluate(`
			Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
			Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
			Object.defineProperty(navigator, 'languages', { get: () => ['en-AU', 'en'] });
		`, nil).Do(ctx)
	})
}
