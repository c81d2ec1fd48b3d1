// Package extractor resolves named fields on a rendered page through an
// ordered list of lookup strategies. A missing field is an empty string,
// never an error; only a lost session or a done context is reported.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"sold-listings-scraper/browser"
	"sold-listings-scraper/utils"
)

// Strategy is one way of locating a field. Exactly one of ID, CSS and
// Pattern is set. Index picks the nth match (0-based) when a lookup
// matches several elements.
type Strategy struct {
	ID      string `yaml:"id,omitempty" json:"id,omitempty"`
	CSS     string `yaml:"css,omitempty" json:"css,omitempty"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	// Within scopes a Pattern lookup to the text of these elements.
	// Defaults to body.
	Within string `yaml:"within,omitempty" json:"within,omitempty"`
	Index  int    `yaml:"index,omitempty" json:"index,omitempty"`
}

func (s Strategy) Validate() error {
	set := 0
	for _, v := range []string{s.ID, s.CSS, s.Pattern} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("strategy must set exactly one of id, css, pattern")
	}
	if s.Index < 0 {
		return fmt.Errorf("strategy index must not be negative")
	}
	if s.Pattern != "" {
		if _, err := compile(s.Pattern); err != nil {
			return err
		}
	}
	return nil
}

func (s Strategy) String() string {
	switch {
	case s.ID != "":
		return "id:" + s.ID
	case s.CSS != "":
		return "css:" + s.CSS
	default:
		return "pattern:" + s.Pattern
	}
}

// FieldSpec names a field and the strategies tried, in order, to read it.
type FieldSpec struct {
	Name       string     `yaml:"name" json:"name"`
	Strategies []Strategy `yaml:"strategies" json:"strategies"`
}

func (f FieldSpec) Validate() error {
	if len(f.Strategies) == 0 {
		return fmt.Errorf("field %q has no strategies", f.Name)
	}
	for i, s := range f.Strategies {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("field %q strategy %d: %w", f.Name, i, err)
		}
	}
	return nil
}

// Extract returns the first non-empty value produced by spec's strategies,
// or "" when none match. The error is non-nil only when the session is gone
// (browser.ErrSession) or ctx is done.
func Extract(ctx context.Context, page browser.Page, spec FieldSpec) (string, error) {
	for _, s := range spec.Strategies {
		vals, err := resolve(ctx, page, s)
		if err != nil {
			return "", err
		}
		if s.Index < len(vals) && vals[s.Index] != "" {
			return vals[s.Index], nil
		}
	}
	utils.Debug("field not found", "field", spec.Name, "url", page.URL())
	return "", nil
}

func resolve(ctx context.Context, page browser.Page, s Strategy) ([]string, error) {
	switch {
	case s.ID != "":
		return texts(ctx, page, browser.ID(s.ID))
	case s.CSS != "":
		return texts(ctx, page, browser.Query(s.CSS))
	case s.Pattern != "":
		re, err := compile(s.Pattern)
		if err != nil {
			return nil, nil
		}
		within := s.Within
		if within == "" {
			within = "body"
		}
		scopes, err := texts(ctx, page, browser.Query(within))
		if err != nil {
			return nil, err
		}
		var out []string
		for _, t := range scopes {
			for _, m := range re.FindAllStringSubmatch(t, -1) {
				out = append(out, strings.TrimSpace(group(m)))
			}
		}
		return out, nil
	}
	return nil, nil
}

// fatal reports whether a lookup error must stop extraction.
func fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, browser.ErrSession) {
		return err
	}
	return nil
}

func texts(ctx context.Context, page browser.Page, sel browser.Selector) ([]string, error) {
	els, err := page.FindAll(ctx, sel)
	if err != nil {
		if ferr := fatal(ctx, err); ferr != nil {
			return nil, ferr
		}
		utils.Debug("lookup failed", "selector", sel.String(), "error", err)
		return nil, nil
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		markup, err := el.InnerHTML(ctx)
		if err != nil {
			if ferr := fatal(ctx, err); ferr != nil {
				return nil, ferr
			}
			out = append(out, "")
			continue
		}
		out = append(out, Text(markup))
	}
	return out, nil
}

// FirstMatchingGroup applies re to text and returns the first capture group,
// the whole match when re has no groups, or "" when nothing matches.
func FirstMatchingGroup(text string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(group(m))
}

func group(m []string) string {
	if len(m) > 1 {
		return m[1]
	}
	return m[0]
}

// Reveal clicks the first element matching control, unless expanded is set
// and already present. It reports whether a click happened. A missing
// control or a failed click is not an error.
func Reveal(ctx context.Context, page browser.Page, control, expanded string) bool {
	if control == "" {
		return false
	}
	if expanded != "" {
		if els, err := page.FindAll(ctx, browser.Query(expanded)); err == nil && len(els) > 0 {
			return false
		}
	}

	els, err := page.FindAll(ctx, browser.Query(control))
	if err != nil || len(els) == 0 {
		return false
	}
	if err := els[0].Click(ctx); err != nil {
		utils.Debug("reveal click failed", "selector", control, "error", err)
		return false
	}
	return true
}

var (
	stripPolicy   = bluemonday.StrictPolicy()
	blockBoundary = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/h[1-6]|/tr|/span)\b[^>]*>`)
)

// Text converts inner markup to plain text: tags stripped, entities
// decoded, whitespace (non-breaking spaces included) collapsed.
func Text(markup string) string {
	if markup == "" {
		return ""
	}
	markup = blockBoundary.ReplaceAllString(markup, " $0")
	plain := html.UnescapeString(stripPolicy.Sanitize(markup))
	return strings.Join(strings.Fields(plain), " ")
}

var patterns sync.Map

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}
