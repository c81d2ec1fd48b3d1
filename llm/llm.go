// Package llm asks a text-understanding service for the attributes a sold
// listing's description mentions but the page does not tabulate.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sold-listings-scraper/models"
)

// Client summarises one listing description.
type Client interface {
	Summarise(ctx context.Context, description string) (models.Enrichment, error)
}

const prompt = `I will pass you a real estate listing.
From the listing, determine the following measures: strata costs, rates, rental estimate, internal size, external size, type of outdoor space, energy efficiency rating (EER) and year built.
For each field, value should be a number. If the listing refers to a range of numbers, use the smallest. Don't include the unit in that field.
For the strata costs, include the total of strata, body corporate, admin and sinking fund costs, if they are stated.
For the strata costs, rates and rental estimates, include a field with the time period referred to in the listing (e.g. week, quarter or year).
If you are unsure or there is no mention of the item set the value to null.
The type of outdoor space should be one of: garden, courtyard, balcony, none, unsure. If multiple, pick the first option in the list.
Return the data as a json object with the following properties: [strata_costs, strata_cost_unit, rates, rates_unit, rental_estimate, rental_estimate_unit, internal_size, external_size, outdoor_type, energy_rating, year_built].
The listing is:
`

// Prompt builds the request text for description.
func Prompt(description string) string {
	return prompt + description
}

var outdoorTypes = map[string]bool{
	"garden": true, "courtyard": true, "balcony": true, "none": true, "unsure": true,
}

// DecodeEnrichment reads the service's JSON object. Numbers may arrive as
// strings ("$1,200") and the energy rating may use the key "EER". Values that
// cannot be read are left nil rather than failing the whole object.
func DecodeEnrichment(content string) (models.Enrichment, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(content))))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return models.Enrichment{}, fmt.Errorf("decode enrichment: %w", err)
	}

	lookup := func(keys ...string) json.RawMessage {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				return v
			}
		}
		return nil
	}

	e := models.Enrichment{
		StrataCosts:        number(lookup("strata_costs")),
		StrataCostUnit:     unit(lookup("strata_cost_unit")),
		Rates:              number(lookup("rates")),
		RatesUnit:          unit(lookup("rates_unit")),
		RentalEstimate:     number(lookup("rental_estimate")),
		RentalEstimateUnit: unit(lookup("rental_estimate_unit")),
		InternalSize:       number(lookup("internal_size")),
		ExternalSize:       number(lookup("external_size")),
		EnergyRating:       number(lookup("energy_rating", "EER", "eer")),
		YearBuilt:          number(lookup("year_built")),
	}
	if s := str(lookup("outdoor_type")); s != nil {
		v := strings.ToLower(*s)
		if !outdoorTypes[v] {
			v = "unsure"
		}
		e.OutdoorType = &v
	}
	return e, nil
}

func number(msg json.RawMessage) *float64 {
	if len(msg) == 0 || string(msg) == "null" {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(msg, &n); err == nil {
		if f, err := n.Float64(); err == nil {
			return &f
		}
	}

	s := str(msg)
	if s == nil {
		return nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(*s)
	if i := strings.IndexAny(cleaned, "-–"); i > 0 {
		cleaned = cleaned[:i]
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &f
}

func str(msg json.RawMessage) *string {
	if len(msg) == 0 || string(msg) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func unit(msg json.RawMessage) *string {
	s := str(msg)
	if s == nil {
		return nil
	}
	v := strings.ToLower(*s)
	return &v
}
