package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sold-listings-scraper/models"
)

// PostgresWriter upserts sold listings into the sold_listings table.
type PostgresWriter struct {
	pool *pgxpool.Pool
	dsn  string
}

func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{pool: pool, dsn: redactDSN(dsn)}, nil
}

func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

func (w *PostgresWriter) Target() string { return w.dsn }

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	sql := `
	CREATE TABLE IF NOT EXISTS sold_listings (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		address TEXT,
		sale_price NUMERIC(14,2),
		price_period TEXT,
		raw_price TEXT,
		sale_date DATE,
		sale_method TEXT,
		sale_kind TEXT,
		dwelling_type TEXT,
		n_beds INTEGER,
		n_bath INTEGER,
		n_park INTEGER,
		property_desc_text TEXT,
		missing_fields TEXT[],
		scraped_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sold_listings_sale_date ON sold_listings(sale_date);
	CREATE INDEX IF NOT EXISTS idx_sold_listings_dwelling ON sold_listings(dwelling_type);
	`

	if _, err := w.pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Write upserts records by URL. A later harvest of the same listing replaces
// the earlier row.
func (w *PostgresWriter) Write(records []models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	upsertSQL := `
	INSERT INTO sold_listings (url, address, sale_price, price_period, raw_price, sale_date, sale_method,
		sale_kind, dwelling_type, n_beds, n_bath, n_park, property_desc_text, missing_fields, scraped_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (url) DO UPDATE SET
		address = EXCLUDED.address,
		sale_price = EXCLUDED.sale_price,
		price_period = EXCLUDED.price_period,
		raw_price = EXCLUDED.raw_price,
		sale_date = EXCLUDED.sale_date,
		sale_method = EXCLUDED.sale_method,
		sale_kind = EXCLUDED.sale_kind,
		dwelling_type = EXCLUDED.dwelling_type,
		n_beds = EXCLUDED.n_beds,
		n_bath = EXCLUDED.n_bath,
		n_park = EXCLUDED.n_park,
		property_desc_text = EXCLUDED.property_desc_text,
		missing_fields = EXCLUDED.missing_fields,
		scraped_at = EXCLUDED.scraped_at,
		updated_at = NOW();
	`

	enqueued := 0
	for _, rec := range records {
		url := strings.TrimSpace(rec.URL)
		if url == "" {
			continue
		}

		var saleDate *time.Time
		if !rec.SaleDate.IsZero() {
			saleDate = &rec.SaleDate
		}

		batch.Queue(
			upsertSQL,
			url,
			rec.Address,
			rec.SalePrice,
			rec.PricePeriod,
			rec.RawPrice,
			saleDate,
			rec.SaleMethod,
			string(rec.SaleKind),
			rec.DwellingType,
			countPtr(rec.Beds),
			countPtr(rec.Baths),
			countPtr(rec.Parking),
			rec.Description,
			rec.Missing,
			rec.ScrapedAt,
		)
		enqueued++
	}

	if enqueued == 0 {
		return nil
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < enqueued; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert failed at row %d: %w", i, err)
		}
	}
	return nil
}

// redactDSN hides the password in a connection string for logging.
func redactDSN(dsn string) string {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return "postgres"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}
