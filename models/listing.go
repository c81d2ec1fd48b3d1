package models

import (
	"strconv"
	"strings"
	"time"
)

// SaleKind classifies the free-text sale method.
type SaleKind string

const (
	SaleKindAuction       SaleKind = "auction"
	SaleKindPrivateTreaty SaleKind = "private-treaty"
	SaleKindOther         SaleKind = "other"
	SaleKindUnknown       SaleKind = ""
)

// ClassifySaleMethod maps sale-method text such as "at auction" or
// "by private treaty" onto a SaleKind.
func ClassifySaleMethod(method string) SaleKind {
	m := strings.ToLower(strings.TrimSpace(method))
	switch {
	case m == "":
		return SaleKindUnknown
	case strings.Contains(m, "auction"):
		return SaleKindAuction
	case strings.Contains(m, "private treaty"), strings.Contains(m, "private sale"):
		return SaleKindPrivateTreaty
	default:
		return SaleKindOther
	}
}

// Count is a bedroom/bathroom/parking count. CountUnknown marks a value that
// could not be parsed and is distinct from a genuine zero.
type Count int

const CountUnknown Count = -1

func (c Count) Known() bool { return c >= 0 }

// String renders unknown counts as the empty string.
func (c Count) String() string {
	if !c.Known() {
		return ""
	}
	return strconv.Itoa(int(c))
}

// ParseCountString reverses Count.String.
func ParseCountString(s string) (Count, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CountUnknown, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return CountUnknown, err
	}
	if n < 0 {
		return CountUnknown, nil
	}
	return Count(n), nil
}

// Field names used in ListingRecord.Missing and as dataset column names.
const (
	FieldAddress      = "address"
	FieldSalePrice    = "sale_price"
	FieldSaleDate     = "sale_date"
	FieldSaleMethod   = "sale_method"
	FieldDwellingType = "dwelling_type"
	FieldBeds         = "n_beds"
	FieldBaths        = "n_bath"
	FieldParking      = "n_park"
	FieldDescription  = "property_desc_text"
)

// ListingRecord is the structured result of parsing one sold-listing page.
type ListingRecord struct {
	URL          string
	Address      string
	SalePrice    *float64
	PricePeriod  string
	RawPrice     string
	SaleDate     time.Time
	SaleMethod   string
	SaleKind     SaleKind
	DwellingType string
	Beds         Count
	Baths        Count
	Parking      Count
	Description  string
	Missing      []string
	ScrapedAt    time.Time
}

// Complete reports whether the two fields a sold record is useless without
// were both resolved.
func (r ListingRecord) Complete() bool {
	return strings.TrimSpace(r.Address) != "" && r.SalePrice != nil
}

// MarkMissing records field as unresolved, once.
func (r *ListingRecord) MarkMissing(field string) {
	for _, f := range r.Missing {
		if f == field {
			return
		}
	}
	r.Missing = append(r.Missing, field)
}

// Enrichment holds attributes inferred from a listing description by the
// text-understanding service. Nil means "not determinable from the text".
type Enrichment struct {
	URL                string   `json:"-"`
	StrataCosts        *float64 `json:"strata_costs"`
	StrataCostUnit     *string  `json:"strata_cost_unit"`
	Rates              *float64 `json:"rates"`
	RatesUnit          *string  `json:"rates_unit"`
	RentalEstimate     *float64 `json:"rental_estimate"`
	RentalEstimateUnit *string  `json:"rental_estimate_unit"`
	InternalSize       *float64 `json:"internal_size"`
	ExternalSize       *float64 `json:"external_size"`
	OutdoorType        *string  `json:"outdoor_type"`
	EnergyRating       *float64 `json:"energy_rating"`
	YearBuilt          *float64 `json:"year_built"`
}
