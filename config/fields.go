package config

import (
	"slices"

	"sold-listings-scraper/extractor"
)

// FieldTable maps each listing field to its lookup strategies. Selector
// churn on the source site is absorbed here and nowhere else.
type FieldTable struct {
	Address      extractor.FieldSpec `yaml:"address"`
	Price        extractor.FieldSpec `yaml:"price"`
	SaleLine     extractor.FieldSpec `yaml:"sale_line"`
	DwellingType extractor.FieldSpec `yaml:"dwelling_type"`
	Beds         extractor.FieldSpec `yaml:"beds"`
	Baths        extractor.FieldSpec `yaml:"baths"`
	Parking      extractor.FieldSpec `yaml:"parking"`
	Description  extractor.FieldSpec `yaml:"description"`
}

const keyDetails = ".css-1dtnjt5"

// DefaultFields is the domain.com.au sold-listing layout.
func DefaultFields() FieldTable {
	count := func(name string, index int, pattern string) extractor.FieldSpec {
		return extractor.FieldSpec{Name: name, Strategies: []extractor.Strategy{
			{CSS: keyDetails + " .css-lvv8is", Index: index},
			{CSS: `[data-testid="property-features-feature"]`, Index: index},
			{Pattern: pattern, Within: keyDetails},
		}}
	}

	return FieldTable{
		Address: extractor.FieldSpec{Name: "address", Strategies: []extractor.Strategy{
			{CSS: ".css-164r41r"},
			{CSS: `[data-testid="listing-details__button-copy-wrapper"] h1`},
			{CSS: "h1"},
		}},
		Price: extractor.FieldSpec{Name: "sale_price", Strategies: []extractor.Strategy{
			{CSS: ".css-twgrok"},
			{CSS: `[data-testid="listing-details__summary-title"]`},
			{Pattern: `(\$[\d,]+(?:\.\d+)?)`, Within: `[data-testid="listing-details__summary"]`},
		}},
		SaleLine: extractor.FieldSpec{Name: "sale_line", Strategies: []extractor.Strategy{
			{CSS: ".css-h9g9i3"},
			{CSS: `[data-testid="listing-details__listing-tag"]`},
			{Pattern: `(Sold (?:by|at|prior)\D+\d{1,2} \w+ \d{4})`},
		}},
		DwellingType: extractor.FieldSpec{Name: "dwelling_type", Strategies: []extractor.Strategy{
			{CSS: keyDetails + " .css-in3yi3"},
			{CSS: `[data-testid="listing-summary-property-type"]`},
		}},
		Beds:    count("n_beds", 0, `(\d+)\s*Beds?`),
		Baths:   count("n_bath", 1, `(\d+)\s*Baths?`),
		Parking: count("n_park", 2, `(\d+)\s*Parking`),
		Description: extractor.FieldSpec{Name: "property_desc_text", Strategies: []extractor.Strategy{
			{CSS: ".css-bq4jj8"},
			{CSS: `[data-testid="listing-details__description"]`},
		}},
	}
}

func (t *FieldTable) all() []*extractor.FieldSpec {
	return []*extractor.FieldSpec{
		&t.Address, &t.Price, &t.SaleLine, &t.DwellingType,
		&t.Beds, &t.Baths, &t.Parking, &t.Description,
	}
}

func (t FieldTable) Validate() error {
	for _, f := range t.all() {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (t FieldTable) Clone() FieldTable {
	out := t
	for _, f := range out.all() {
		f.Strategies = slices.Clone(f.Strategies)
	}
	return out
}
