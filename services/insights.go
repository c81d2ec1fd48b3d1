package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"sold-listings-scraper/models"
)

type GroupStats struct {
	Name         string
	Count        int
	MedianPrice  float64
	AveragePrice float64
}

type Report struct {
	TotalListings  int
	PricedListings int
	AveragePrice   float64
	MedianPrice    float64
	MinPrice       float64
	MaxPrice       float64
	MostExpensive  models.ListingRecord
	ByDwelling     []GroupStats
	BySaleKind     []GroupStats
	MissingByField map[string]int
}

// GenerateReport cleans the dataset and computes the sold-market summary.
// Recurring figures (rents quoted per week) are left out of the price stats.
func GenerateReport(records []models.ListingRecord) Report {
	cleaned := CleanRecords(records)

	report := Report{
		TotalListings:  len(cleaned),
		MissingByField: make(map[string]int),
	}
	if len(cleaned) == 0 {
		return report
	}

	var (
		prices     []float64
		byDwelling = make(map[string][]float64)
		byKind     = make(map[string][]float64)
		dwellCount = make(map[string]int)
		kindCount  = make(map[string]int)
		maxPrice   = -1.0
		minPrice   = math.MaxFloat64
	)

	for _, r := range cleaned {
		dwelling := normalizeGroup(r.DwellingType)
		kind := normalizeGroup(string(r.SaleKind))
		dwellCount[dwelling]++
		kindCount[kind]++

		for _, f := range r.Missing {
			report.MissingByField[f]++
		}

		if r.SalePrice == nil || r.PricePeriod != "" || *r.SalePrice <= 0 {
			continue
		}
		p := *r.SalePrice
		prices = append(prices, p)
		byDwelling[dwelling] = append(byDwelling[dwelling], p)
		byKind[kind] = append(byKind[kind], p)

		if p > maxPrice {
			maxPrice = p
			report.MostExpensive = r
		}
		if p < minPrice {
			minPrice = p
		}
	}

	report.PricedListings = len(prices)
	if len(prices) > 0 {
		report.AveragePrice = mean(prices)
		report.MedianPrice = median(prices)
		report.MinPrice = minPrice
		report.MaxPrice = maxPrice
	}
	report.ByDwelling = groupStats(dwellCount, byDwelling)
	report.BySaleKind = groupStats(kindCount, byKind)
	return report
}

func PrintReport(w io.Writer, report Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────────────────────────────────────┐")
	fmt.Fprintln(w, "│                     Sold Market Insights                     │")
	fmt.Fprintln(w, "├───────────────────────────────┬──────────────────────────────┤")
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Listings", humanize.Comma(int64(report.TotalListings)))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Listings With Sale Price", humanize.Comma(int64(report.PricedListings)))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Average Price", dollars(report.AveragePrice))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Median Price", dollars(report.MedianPrice))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Minimum Price", dollars(report.MinPrice))
	fmt.Fprintf(w, "│ %-29s │ %-28s │\n", "Maximum Price", dollars(report.MaxPrice))
	fmt.Fprintln(w, "└───────────────────────────────┴──────────────────────────────┘")

	if report.MostExpensive.URL != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Most expensive: %s, %s\n", report.MostExpensive.Address, dollars(*report.MostExpensive.SalePrice))
		fmt.Fprintf(w, "  %s\n", report.MostExpensive.URL)
	}

	printGroups(w, "Dwelling Type", report.ByDwelling)
	printGroups(w, "Sale Method", report.BySaleKind)

	if len(report.MissingByField) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fields not found:")
		for _, f := range sortedKeys(report.MissingByField) {
			fmt.Fprintf(w, "  %-20s %d\n", f, report.MissingByField[f])
		}
	}
}

func printGroups(w io.Writer, title string, groups []GroupStats) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "┌──────────────────────────────┬───────┬───────────────┬───────────────┐")
	fmt.Fprintf(w, "│ %-28s │ Count │ Median        │ Average       │\n", truncateText(title, 28))
	fmt.Fprintln(w, "├──────────────────────────────┼───────┼───────────────┼───────────────┤")
	for _, g := range groups {
		fmt.Fprintf(w, "│ %-28s │ %-5d │ %-13s │ %-13s │\n",
			truncateText(g.Name, 28), g.Count, dollars(g.MedianPrice), dollars(g.AveragePrice))
	}
	fmt.Fprintln(w, "└──────────────────────────────┴───────┴───────────────┴───────────────┘")
}

// CleanRecords trims text fields and drops records without a URL and repeat
// URLs, keeping the first occurrence.
func CleanRecords(records []models.ListingRecord) []models.ListingRecord {
	seen := make(map[string]bool)
	cleaned := make([]models.ListingRecord, 0, len(records))

	for _, r := range records {
		r.URL = strings.TrimSpace(r.URL)
		r.Address = strings.TrimSpace(r.Address)
		r.DwellingType = strings.TrimSpace(r.DwellingType)

		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		cleaned = append(cleaned, r)
	}
	return cleaned
}

func groupStats(counts map[string]int, prices map[string][]float64) []GroupStats {
	out := make([]GroupStats, 0, len(counts))
	for _, name := range sortedKeys(counts) {
		g := GroupStats{Name: name, Count: counts[name]}
		if p := prices[name]; len(p) > 0 {
			g.MedianPrice = median(p)
			g.AveragePrice = mean(p)
		}
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func dollars(v float64) string {
	if v == 0 {
		return "-"
	}
	return "$" + humanize.Commaf(math.Round(v))
}

func normalizeGroup(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Unknown"
	}
	return s
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
