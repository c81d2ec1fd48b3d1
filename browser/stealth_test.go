package browser

import (
	"slices"
	"testing"
)

func TestUserAgent(t *testing.T) {
	custom := "Mozilla/5.0 (X11; Linux x86_64) SoldListings/1.0"
	if got := userAgent(ChromeOptions{UserAgent: custom}); got != custom {
		t.Fatalf("configured agent ignored, got %q", got)
	}
	for range 20 {
		if got := userAgent(ChromeOptions{}); !slices.Contains(userAgents, got) {
			t.Fatalf("unexpected default agent %q", got)
		}
	}
}

func TestAllocatorOpts(t *testing.T) {
	base := len(allocatorOpts(ChromeOptions{}))
	if got := len(allocatorOpts(ChromeOptions{Headless: true, ExecPath: "/usr/bin/chromium"})); got != base+2 {
		t.Fatalf("expected headless and exec path options added, got %d (base %d)", got, base)
	}
}
