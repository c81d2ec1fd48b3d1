package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvest.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeYAML(t, `
suburbs: [reid-act-2612]
filters:
  bedrooms: "3"
pages: 4
workers: 2
page_delay: 500ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pages != 4 || cfg.Workers != 2 || cfg.PageDelay != 500*time.Millisecond {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.Filters) != 1 || cfg.Filters["bedrooms"] != "3" {
		t.Fatalf("file filters should replace the defaults, got %v", cfg.Filters)
	}
	if cfg.BaseURL != DefaultConfig().BaseURL {
		t.Fatalf("unset keys should keep their defaults")
	}
}

func TestLoadKeepsDefaultFiltersWhenFileHasNone(t *testing.T) {
	cfg, err := Load(writeYAML(t, "pages: 1\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Filters["excludepricewithheld"] != "1" {
		t.Fatalf("default filters lost: %v", cfg.Filters)
	}
}

func TestLoadEnvironmentWins(t *testing.T) {
	t.Setenv("HARVEST_WORKERS", "7")
	t.Setenv("HARVEST_NAVIGATION_TIMEOUT", "45s")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("HARVEST_USER_AGENT", "SoldListings/1.0")

	cfg, err := Load(writeYAML(t, "workers: 2\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workers != 7 || cfg.NavigationTimeout != 45*time.Second {
		t.Fatalf("environment not applied: workers=%d nav=%s", cfg.Workers, cfg.NavigationTimeout)
	}
	if cfg.UserAgent != "SoldListings/1.0" {
		t.Fatalf("user agent should come from the environment, got %q", cfg.UserAgent)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("api key should come from the environment")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"bad pattern":   "listing_pattern: \"([\"\n",
		"no suburbs":    "suburbs: []\n",
		"zero workers":  "workers: 0\n",
		"delay order":   "min_delay: 5s\nmax_delay: 1s\n",
		"bad yaml":      "pages: [\n",
		"bad base url":  "base_url: not a url\n",
		"blank suburb":  "suburbs: [\"\"]\n",
		"zero page cap": "pages: 0\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, content))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestSearchPages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Suburbs = []string{"braddon-act-2612", " reid-act-2612 ", ""}
	cfg.Pages = 2

	pages := cfg.SearchPages()
	want := []string{
		"https://www.domain.com.au/sold-listings/?suburb=braddon-act-2612,reid-act-2612&bedrooms=2&excludepricewithheld=1&page=1",
		"https://www.domain.com.au/sold-listings/?suburb=braddon-act-2612,reid-act-2612&bedrooms=2&excludepricewithheld=1&page=2",
	}
	if len(pages) != len(want) {
		t.Fatalf("expected %d pages, got %d", len(want), len(pages))
	}
	for i := range want {
		if pages[i] != want[i] {
			t.Fatalf("page %d = %s, want %s", i+1, pages[i], want[i])
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Suburbs[0] = "changed"
	clone.Filters["bedrooms"] = "9"
	clone.Fields.Address.Strategies[0].CSS = ".changed"

	if cfg.Suburbs[0] == "changed" || cfg.Filters["bedrooms"] == "9" {
		t.Fatalf("clone shares slices or maps with the original")
	}
	if cfg.Fields.Address.Strategies[0].CSS == ".changed" {
		t.Fatalf("clone shares the field table with the original")
	}
}
