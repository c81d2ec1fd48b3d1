package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"sold-listings-scraper/models"
	"sold-listings-scraper/utils"
)

// ParquetWriter saves listings as a Parquet file with the same columns as the
// CSV output. Unset values are nulls.
type ParquetWriter struct {
	path string
}

func NewParquetWriter(path string) *ParquetWriter {
	return &ParquetWriter{path: path}
}

func (w *ParquetWriter) Target() string { return w.path }

func (w *ParquetWriter) Write(records []models.ListingRecord) error {
	return w.WriteRows(Rows(records))
}

func (w *ParquetWriter) WriteRows(rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}
	if err := parquet.WriteFile(w.path, rows); err != nil {
		return fmt.Errorf("parquet write %s: %w", w.path, err)
	}
	utils.Success("saved listings", "rows", len(rows), "path", w.path)
	return nil
}

// ReadParquet loads rows written by ParquetWriter.
func ReadParquet(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("parquet read %s: %w", path, err)
	}
	return rows, nil
}
