package services

import (
	"context"
	"strings"
	"time"

	"sold-listings-scraper/llm"
	"sold-listings-scraper/models"
	"sold-listings-scraper/storage"
	"sold-listings-scraper/utils"
)

// Enricher asks the text-understanding service about each listing
// description, one call at a time.
type Enricher struct {
	client  llm.Client
	retries int
	backoff time.Duration
}

func NewEnricher(client llm.Client, retries int) *Enricher {
	return &Enricher{client: client, retries: retries, backoff: 2 * time.Second}
}

// Enrich builds the side table keyed by listing URL. A listing whose call
// fails, or that has no description, gets an all-null entry.
func (e *Enricher) Enrich(ctx context.Context, rows []storage.Row) (map[string]models.Enrichment, error) {
	out := make(map[string]models.Enrichment, len(rows))
	total := len(rows)

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if (i+1)%10 == 0 {
			utils.Info("enriching listings", "done", i+1, "total", total, "percent", (i+1)*100/total)
		}

		entry := models.Enrichment{URL: row.URL}
		if strings.TrimSpace(row.Description) == "" {
			out[row.URL] = entry
			continue
		}

		var got models.Enrichment
		err := utils.Retry(ctx, e.retries, e.backoff, func() error {
			var err error
			got, err = e.client.Summarise(ctx, row.Description)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			utils.Warn("enrichment failed, leaving fields empty", "url", row.URL, "error", err)
			out[row.URL] = entry
			continue
		}
		got.URL = row.URL
		out[row.URL] = got
	}

	utils.Success("enrichment finished", "listings", total)
	return out, nil
}

// Join attaches each row's enrichment by URL, leaving unmatched rows as they
// are.
func Join(rows []storage.Row, table map[string]models.Enrichment) []storage.Row {
	out := make([]storage.Row, len(rows))
	for i, r := range rows {
		if e, ok := table[r.URL]; ok {
			r = r.WithEnrichment(e)
		}
		out[i] = r
	}
	return out
}
