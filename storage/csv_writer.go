package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"sold-listings-scraper/models"
	"sold-listings-scraper/utils"
)

// CSVWriter saves listings to a CSV file. Unset values are written as empty
// cells.
type CSVWriter struct {
	path string
}

func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

func (w *CSVWriter) Target() string { return w.path }

// Write saves records to the CSV file, creating the output directory if
// needed.
func (w *CSVWriter) Write(records []models.ListingRecord) error {
	return w.WriteRows(Rows(records))
}

// WriteRows saves already-flattened rows, enrichment columns included.
func (w *CSVWriter) WriteRows(rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := make([]string, len(csvColumns))
	for i, c := range csvColumns {
		header[i] = c.name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}

	line := make([]string, len(csvColumns))
	for _, r := range rows {
		for i, c := range csvColumns {
			line[i] = c.get(r)
		}
		if err := writer.Write(line); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.path, err)
	}

	utils.Success("saved listings", "rows", len(rows), "path", w.path)
	return nil
}

// ReadCSV loads rows written by CSVWriter. Columns are matched by header name,
// so files written before the enrichment columns existed still load.
func ReadCSV(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	byName := make(map[string]column, len(csvColumns))
	for _, c := range csvColumns {
		byName[c.name] = c
	}

	var rows []Row
	for {
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var r Row
		for i, name := range header {
			c, ok := byName[name]
			if !ok || i >= len(line) {
				continue
			}
			if err := c.set(&r, line[i]); err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", len(rows)+1, name, err)
			}
		}
		rows = append(rows, r)
	}
	return rows, nil
}

type column struct {
	name string
	get  func(Row) string
	set  func(*Row, string) error
}

func text(name string, field func(*Row) *string) column {
	return column{
		name: name,
		get:  func(r Row) string { return *field(&r) },
		set:  func(r *Row, v string) error { *field(r) = v; return nil },
	}
}

func optText(name string, field func(*Row) **string) column {
	return column{
		name: name,
		get: func(r Row) string {
			if p := *field(&r); p != nil {
				return *p
			}
			return ""
		},
		set: func(r *Row, v string) error {
			if v != "" {
				*field(r) = &v
			}
			return nil
		},
	}
}

func optFloat(name string, field func(*Row) **float64) column {
	return column{
		name: name,
		get: func(r Row) string {
			if p := *field(&r); p != nil {
				return strconv.FormatFloat(*p, 'f', -1, 64)
			}
			return ""
		},
		set: func(r *Row, v string) error {
			if v == "" {
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(r) = &f
			return nil
		},
	}
}

func optInt(name string, field func(*Row) **int32) column {
	return column{
		name: name,
		get: func(r Row) string {
			if p := *field(&r); p != nil {
				return strconv.Itoa(int(*p))
			}
			return ""
		},
		set: func(r *Row, v string) error {
			if v == "" {
				return nil
			}
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return err
			}
			n32 := int32(n)
			*field(r) = &n32
			return nil
		},
	}
}

var csvColumns = []column{
	text("url", func(r *Row) *string { return &r.URL }),
	text(models.FieldAddress, func(r *Row) *string { return &r.Address }),
	optFloat(models.FieldSalePrice, func(r *Row) **float64 { return &r.SalePrice }),
	text("price_period", func(r *Row) *string { return &r.PricePeriod }),
	text("raw_price", func(r *Row) *string { return &r.RawPrice }),
	text(models.FieldSaleDate, func(r *Row) *string { return &r.SaleDate }),
	text(models.FieldSaleMethod, func(r *Row) *string { return &r.SaleMethod }),
	text("sale_kind", func(r *Row) *string { return &r.SaleKind }),
	text(models.FieldDwellingType, func(r *Row) *string { return &r.DwellingType }),
	optInt(models.FieldBeds, func(r *Row) **int32 { return &r.Beds }),
	optInt(models.FieldBaths, func(r *Row) **int32 { return &r.Baths }),
	optInt(models.FieldParking, func(r *Row) **int32 { return &r.Parking }),
	text(models.FieldDescription, func(r *Row) *string { return &r.Description }),
	text("missing_fields", func(r *Row) *string { return &r.Missing }),
	text("scraped_at", func(r *Row) *string { return &r.ScrapedAt }),

	optFloat("strata_costs", func(r *Row) **float64 { return &r.StrataCosts }),
	optText("strata_cost_unit", func(r *Row) **string { return &r.StrataCostUnit }),
	optFloat("rates", func(r *Row) **float64 { return &r.Rates }),
	optText("rates_unit", func(r *Row) **string { return &r.RatesUnit }),
	optFloat("rental_estimate", func(r *Row) **float64 { return &r.RentalEstimate }),
	optText("rental_estimate_unit", func(r *Row) **string { return &r.RentalEstimateUnit }),
	optFloat("internal_size", func(r *Row) **float64 { return &r.InternalSize }),
	optFloat("external_size", func(r *Row) **float64 { return &r.ExternalSize }),
	optText("outdoor_type", func(r *Row) **string { return &r.OutdoorType }),
	optFloat("energy_rating", func(r *Row) **float64 { return &r.EnergyRating }),
	optFloat("year_built", func(r *Row) **float64 { return &r.YearBuilt }),
}
