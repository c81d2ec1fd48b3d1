package domaincomau

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"sold-listings-scraper/extractor"
	"sold-listings-scraper/models"
)

// RawFields is what the field table read off the page, before cleaning.
type RawFields struct {
	Address      string
	Price        string
	SaleLine     string
	DwellingType string
	Beds         string
	Baths        string
	Parking      string
	Description  string
}

var (
	moneyPattern    = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)(?:\s?([kKmM])\b)?`)
	saleLinePattern = regexp.MustCompile(`^Sold\s+(\D+?)\s*(\d{1,2}\s+[A-Za-z]+\.?\s+\d{4})$`)
	datePattern     = regexp.MustCompile(`(\d{1,2}\s+[A-Za-z]+\.?\s+(?:19|20)\d{2})`)
	countPattern    = regexp.MustCompile(`^\s*(\d{1,3})`)

	periodPatterns = []struct {
		re   *regexp.Regexp
		unit string
	}{
		{regexp.MustCompile(`(?i)(?:\b(?:per|a)\s+|/\s*)(?:week|wk)\b|(?:\d|\s)p\.?w\.?(?:\W|$)|\bweekly\b`), "week"},
		{regexp.MustCompile(`(?i)(?:\b(?:per|a)\s+|/\s*)(?:month|mth)\b|(?:\d|\s)p\.?c\.?m\.?(?:\W|$)|\bmonthly\b`), "month"},
		{regexp.MustCompile(`(?i)(?:\b(?:per|a)\s+|/\s*)(?:quarter|qtr)\b|(?:\d|\s)p\.?q\.?(?:\W|$)|\bquarterly\b`), "quarter"},
		{regexp.MustCompile(`(?i)(?:\b(?:per|a)\s+|/\s*)(?:year|yr|annum)\b|(?:\d|\s)p\.?a\.?(?:\W|$)|\bannually\b`), "year"},
	}

	dateLayouts = []string{"2 Jan 2006", "2 January 2006", "2 Jan. 2006"}
)

// ParseCurrency reads the first dollar amount in raw. period is set when the
// figure is recurring ("$450 per week" -> 450, "week").
func ParseCurrency(raw string) (amount float64, period string, ok bool) {
	m := moneyPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, "", false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}

	rest := raw[strings.Index(raw, m[0]):]
	for _, p := range periodPatterns {
		if p.re.MatchString(rest) {
			period = p.unit
			break
		}
	}
	return v, period, true
}

// ParseSaleLine splits "Sold by John Smith 12 Mar 2024" into the method
// ("by John Smith") and the date. Either may come back empty.
func ParseSaleLine(line string) (method string, date time.Time) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", time.Time{}
	}

	var dateText string
	if m := saleLinePattern.FindStringSubmatch(line); m != nil {
		method = strings.TrimSpace(m[1])
		dateText = m[2]
	} else {
		dateText = extractor.FirstMatchingGroup(line, datePattern)
		if rest, found := strings.CutPrefix(line, "Sold "); found {
			method = strings.TrimSpace(strings.Replace(rest, dateText, "", 1))
		}
	}

	return method, parseDate(dateText)
}

func parseDate(s string) time.Time {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseCount reads a short numeric prefix such as the "3" in "3 Beds".
func ParseCount(s string) models.Count {
	m := countPattern.FindStringSubmatch(s)
	if m == nil {
		return models.CountUnknown
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return models.CountUnknown
	}
	return models.Count(n)
}

// BuildRecord cleans raw field text into a ListingRecord, recording every
// field it could not resolve in Missing. Nothing is invented: an unparsable
// price stays nil.
func BuildRecord(url string, raw RawFields, scrapedAt time.Time) models.ListingRecord {
	rec := models.ListingRecord{
		URL:          url,
		Address:      strings.TrimSpace(raw.Address),
		RawPrice:     strings.TrimSpace(raw.Price),
		DwellingType: strings.TrimSpace(raw.DwellingType),
		Description:  strings.TrimSpace(raw.Description),
		Beds:         ParseCount(raw.Beds),
		Baths:        ParseCount(raw.Baths),
		Parking:      ParseCount(raw.Parking),
		ScrapedAt:    scrapedAt,
	}

	if amount, period, ok := ParseCurrency(raw.Price); ok {
		rec.SalePrice = &amount
		rec.PricePeriod = period
	}

	rec.SaleMethod, rec.SaleDate = ParseSaleLine(raw.SaleLine)
	rec.SaleKind = models.ClassifySaleMethod(rec.SaleMethod)

	if rec.Address == "" {
		rec.MarkMissing(models.FieldAddress)
	}
	if rec.SalePrice == nil {
		rec.MarkMissing(models.FieldSalePrice)
	}
	if rec.SaleDate.IsZero() {
		rec.MarkMissing(models.FieldSaleDate)
	}
	if rec.SaleMethod == "" {
		rec.MarkMissing(models.FieldSaleMethod)
	}
	if rec.DwellingType == "" {
		rec.MarkMissing(models.FieldDwellingType)
	}
	if !rec.Beds.Known() {
		rec.MarkMissing(models.FieldBeds)
	}
	if !rec.Baths.Known() {
		rec.MarkMissing(models.FieldBaths)
	}
	if !rec.Parking.Known() {
		rec.MarkMissing(models.FieldParking)
	}
	if rec.Description == "" {
		rec.MarkMissing(models.FieldDescription)
	}

	return rec
}
