package storage

import (
	"strings"
	"time"

	"sold-listings-scraper/models"
)

const dateLayout = "2006-01-02"

// Row is the flat on-disk shape of a listing, shared by the CSV, Parquet and
// JSON outputs. Unset values are nil so both formats agree on what is missing.
// The enrichment columns stay nil until the enrich stage fills them.
type Row struct {
	URL          string   `parquet:"url" json:"url" csv:"url"`
	Address      string   `parquet:"address" json:"address" csv:"address"`
	SalePrice    *float64 `parquet:"sale_price,optional" json:"sale_price" csv:"sale_price"`
	PricePeriod  string   `parquet:"price_period" json:"price_period,omitempty" csv:"price_period"`
	RawPrice     string   `parquet:"raw_price" json:"raw_price" csv:"raw_price"`
	SaleDate     string   `parquet:"sale_date" json:"sale_date" csv:"sale_date"`
	SaleMethod   string   `parquet:"sale_method" json:"sale_method" csv:"sale_method"`
	SaleKind     string   `parquet:"sale_kind" json:"sale_kind" csv:"sale_kind"`
	DwellingType string   `parquet:"dwelling_type" json:"dwelling_type" csv:"dwelling_type"`
	Beds         *int32   `parquet:"n_beds,optional" json:"n_beds" csv:"n_beds"`
	Baths        *int32   `parquet:"n_bath,optional" json:"n_bath" csv:"n_bath"`
	Parking      *int32   `parquet:"n_park,optional" json:"n_park" csv:"n_park"`
	Description  string   `parquet:"property_desc_text" json:"property_desc_text" csv:"property_desc_text"`
	Missing      string   `parquet:"missing_fields" json:"missing_fields,omitempty" csv:"missing_fields"`
	ScrapedAt    string   `parquet:"scraped_at" json:"scraped_at" csv:"scraped_at"`

	StrataCosts        *float64 `parquet:"strata_costs,optional" json:"strata_costs,omitempty" csv:"strata_costs"`
	StrataCostUnit     *string  `parquet:"strata_cost_unit,optional" json:"strata_cost_unit,omitempty" csv:"strata_cost_unit"`
	Rates              *float64 `parquet:"rates,optional" json:"rates,omitempty" csv:"rates"`
	RatesUnit          *string  `parquet:"rates_unit,optional" json:"rates_unit,omitempty" csv:"rates_unit"`
	RentalEstimate     *float64 `parquet:"rental_estimate,optional" json:"rental_estimate,omitempty" csv:"rental_estimate"`
	RentalEstimateUnit *string  `parquet:"rental_estimate_unit,optional" json:"rental_estimate_unit,omitempty" csv:"rental_estimate_unit"`
	InternalSize       *float64 `parquet:"internal_size,optional" json:"internal_size,omitempty" csv:"internal_size"`
	ExternalSize       *float64 `parquet:"external_size,optional" json:"external_size,omitempty" csv:"external_size"`
	OutdoorType        *string  `parquet:"outdoor_type,optional" json:"outdoor_type,omitempty" csv:"outdoor_type"`
	EnergyRating       *float64 `parquet:"energy_rating,optional" json:"energy_rating,omitempty" csv:"energy_rating"`
	YearBuilt          *float64 `parquet:"year_built,optional" json:"year_built,omitempty" csv:"year_built"`
}

// FromRecord flattens rec into a Row.
func FromRecord(rec models.ListingRecord) Row {
	r := Row{
		URL:          rec.URL,
		Address:      rec.Address,
		SalePrice:    rec.SalePrice,
		PricePeriod:  rec.PricePeriod,
		RawPrice:     rec.RawPrice,
		SaleMethod:   rec.SaleMethod,
		SaleKind:     string(rec.SaleKind),
		DwellingType: rec.DwellingType,
		Beds:         countPtr(rec.Beds),
		Baths:        countPtr(rec.Baths),
		Parking:      countPtr(rec.Parking),
		Description:  rec.Description,
		Missing:      strings.Join(rec.Missing, ";"),
	}
	if !rec.SaleDate.IsZero() {
		r.SaleDate = rec.SaleDate.Format(dateLayout)
	}
	if !rec.ScrapedAt.IsZero() {
		r.ScrapedAt = rec.ScrapedAt.UTC().Format(time.RFC3339Nano)
	}
	return r
}

// ToRecord reverses FromRecord. Malformed dates come back unset.
func (r Row) ToRecord() models.ListingRecord {
	rec := models.ListingRecord{
		URL:          r.URL,
		Address:      r.Address,
		SalePrice:    r.SalePrice,
		PricePeriod:  r.PricePeriod,
		RawPrice:     r.RawPrice,
		SaleMethod:   r.SaleMethod,
		SaleKind:     models.SaleKind(r.SaleKind),
		DwellingType: r.DwellingType,
		Beds:         countFrom(r.Beds),
		Baths:        countFrom(r.Baths),
		Parking:      countFrom(r.Parking),
		Description:  r.Description,
	}
	if r.Missing != "" {
		rec.Missing = strings.Split(r.Missing, ";")
	}
	if t, err := time.Parse(dateLayout, r.SaleDate); err == nil {
		rec.SaleDate = t
	}
	if t, err := time.Parse(time.RFC3339Nano, r.ScrapedAt); err == nil {
		rec.ScrapedAt = t
	}
	return rec
}

// WithEnrichment returns a copy of r carrying e's columns.
func (r Row) WithEnrichment(e models.Enrichment) Row {
	r.StrataCosts = e.StrataCosts
	r.StrataCostUnit = e.StrataCostUnit
	r.Rates = e.Rates
	r.RatesUnit = e.RatesUnit
	r.RentalEstimate = e.RentalEstimate
	r.RentalEstimateUnit = e.RentalEstimateUnit
	r.InternalSize = e.InternalSize
	r.ExternalSize = e.ExternalSize
	r.OutdoorType = e.OutdoorType
	r.EnergyRating = e.EnergyRating
	r.YearBuilt = e.YearBuilt
	return r
}

// Rows flattens records, keeping their order.
func Rows(records []models.ListingRecord) []Row {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = FromRecord(rec)
	}
	return rows
}

func countPtr(c models.Count) *int32 {
	if !c.Known() {
		return nil
	}
	n := int32(c)
	return &n
}

func countFrom(n *int32) models.Count {
	if n == nil || *n < 0 {
		return models.CountUnknown
	}
	return models.Count(*n)
}
