package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every configuration problem. It is the only error kind
// that aborts a run.
var ErrInvalid = errors.New("invalid configuration")

// Config is the immutable snapshot of one harvest run. Pass it by value and
// Clone it before handing it to another goroutine.
type Config struct {
	// Search
	BaseURL         string            `yaml:"base_url" validate:"required,url"`
	Suburbs         []string          `yaml:"suburbs" validate:"required,min=1,dive,required"`
	Filters         map[string]string `yaml:"filters"`
	Pages           int               `yaml:"pages" validate:"min=1"`
	ListingPattern  string            `yaml:"listing_pattern" validate:"required"`
	ResultsSelector string            `yaml:"results_selector" validate:"required"`

	// Listing pages
	ReadySelector    string     `yaml:"ready_selector"`
	RevealSelector   string     `yaml:"reveal_selector"`
	RevealedSelector string     `yaml:"revealed_selector"`
	Fields           FieldTable `yaml:"fields"`

	// Browser and timing
	Workers           int           `yaml:"workers" validate:"min=1"`
	ReuseSessions     bool          `yaml:"reuse_sessions"`
	Headless          bool          `yaml:"headless"`
	ChromePath        string        `yaml:"chrome_path"`
	UserAgent         string        `yaml:"user_agent"`
	FixtureDir        string        `yaml:"fixture_dir"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" validate:"gt=0"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout" validate:"gte=0"`
	ResultsTimeout    time.Duration `yaml:"results_timeout" validate:"gt=0"`
	SettleDelay       time.Duration `yaml:"settle_delay" validate:"gte=0"`
	RevealDelay       time.Duration `yaml:"reveal_delay" validate:"gte=0"`
	PageDelay         time.Duration `yaml:"page_delay" validate:"gte=0"`
	MinDelay          time.Duration `yaml:"min_delay" validate:"gte=0"`
	MaxDelay          time.Duration `yaml:"max_delay" validate:"gtefield=MinDelay"`

	// Output
	OutputDir          string        `yaml:"output_dir" validate:"required"`
	CheckpointPath     string        `yaml:"checkpoint_path" validate:"required"`
	CheckpointEvery    int           `yaml:"checkpoint_every" validate:"min=1"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval" validate:"gt=0"`

	// Optional sinks, disabled when empty
	DatabaseURL   string        `yaml:"database_url"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redis_db"`
	SeenTTL       time.Duration `yaml:"seen_ttl"`

	// Enrichment
	OpenAIAPIKey  string `yaml:"-"`
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	EnrichRetries int    `yaml:"enrich_retries" validate:"min=1"`
}

// DefaultWorkers leaves one CPU for the coordinator.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()-1)
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://www.domain.com.au/sold-listings/",
		Suburbs: []string{
			"campbell-act-2612", "reid-act-2612", "braddon-act-2612", "ainslie-act-2602",
			"dickson-act-2602", "lyneham-act-2602", "o-connor-act-2602",
			"turner-act-2612", "downer-act-2602", "watson-act-2602",
		},
		Filters: map[string]string{
			"bedrooms":             "2",
			"excludepricewithheld": "1",
		},
		Pages:              20,
		ListingPattern:     `^https://www\.domain\.com\.au/\d+-[a-z0-9-]+-(?:act|nsw|vic|qld|sa|wa|tas|nt)-\d{4}-\d{10}$`,
		ResultsSelector:    `[data-testid="results"]`,
		ReadySelector:      `.css-164r41r, [data-testid="listing-details__summary"]`,
		RevealSelector:     `.css-1pn4141`,
		Fields:             DefaultFields(),
		Workers:            DefaultWorkers(),
		Headless:           true,
		NavigationTimeout:  15 * time.Second,
		ReadyTimeout:       10 * time.Second,
		ResultsTimeout:     10 * time.Second,
		SettleDelay:        2 * time.Second,
		RevealDelay:        time.Second,
		PageDelay:          5 * time.Second,
		MinDelay:           time.Second,
		MaxDelay:           3 * time.Second,
		OutputDir:          "outdata",
		CheckpointPath:     "outdata/checkpoint.db",
		CheckpointEvery:    10,
		CheckpointInterval: 30 * time.Second,
		SeenTTL:            90 * 24 * time.Hour,
		OpenAIModel:        "gpt-4o-mini",
		EnrichRetries:      3,
	}
}

// Load builds the run configuration: defaults, then the YAML file at path
// (when given), then environment variables (a .env file is honoured).
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
		}
		// yaml.v3 merges into non-nil maps; a file's filters replace the defaults.
		defaults := cfg.Filters
		cfg.Filters = nil
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
		}
		if cfg.Filters == nil {
			cfg.Filters = defaults
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Workers = getEnvInt("HARVEST_WORKERS", c.Workers)
	c.Pages = getEnvInt("HARVEST_PAGES", c.Pages)
	c.Headless = getEnvBool("HARVEST_HEADLESS", c.Headless)
	c.OutputDir = getEnv("HARVEST_OUTPUT_DIR", c.OutputDir)
	c.CheckpointPath = getEnv("HARVEST_CHECKPOINT", c.CheckpointPath)
	c.FixtureDir = getEnv("HARVEST_FIXTURE_DIR", c.FixtureDir)
	c.NavigationTimeout = getEnvDuration("HARVEST_NAVIGATION_TIMEOUT", c.NavigationTimeout)
	c.ChromePath = getEnv("CHROME_PATH", c.ChromePath)
	c.UserAgent = getEnv("HARVEST_USER_AGENT", c.UserAgent)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnv("OPENAI_MODEL", c.OpenAIModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints, the listing pattern and the field table.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := regexp.Compile(c.ListingPattern); err != nil {
		return fmt.Errorf("%w: listing_pattern: %v", ErrInvalid, err)
	}
	if err := c.Fields.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Clone returns a deep copy that shares no slices or maps with c.
func (c Config) Clone() Config {
	out := c
	out.Suburbs = slices.Clone(c.Suburbs)
	out.Filters = maps.Clone(c.Filters)
	out.Fields = c.Fields.Clone()
	return out
}

// SearchPages returns one search-results URL per page, 1-based.
func (c Config) SearchPages() []string {
	suburbs := make([]string, 0, len(c.Suburbs))
	for _, s := range c.Suburbs {
		if s = strings.TrimSpace(s); s != "" {
			suburbs = append(suburbs, s)
		}
	}

	query := "suburb=" + strings.Join(suburbs, ",")
	keys := slices.Sorted(maps.Keys(c.Filters))
	for _, k := range keys {
		query += "&" + url.QueryEscape(k) + "=" + url.QueryEscape(c.Filters[k])
	}

	sep := "?"
	if strings.Contains(c.BaseURL, "?") {
		sep = "&"
	}

	pages := make([]string, 0, c.Pages)
	for i := 1; i <= c.Pages; i++ {
		pages = append(pages, c.BaseURL+sep+query+"&page="+strconv.Itoa(i))
	}
	return pages
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
