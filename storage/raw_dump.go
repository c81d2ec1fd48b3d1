package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"sold-listings-scraper/models"
	"sold-listings-scraper/utils"
)

// JSONDump writes records as an indented JSON array. It is the last-resort
// sink when the dataset files cannot be written.
type JSONDump struct {
	path string
}

func NewJSONDump(path string) *JSONDump {
	return &JSONDump{path: path}
}

func (d *JSONDump) Target() string { return d.path }

func (d *JSONDump) Write(records []models.ListingRecord) error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}
	data, err := json.MarshalIndent(Rows(records), "", "  ")
	if err != nil {
		return fmt.Errorf("encode raw dump: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0644); err != nil {
		return fmt.Errorf("write raw dump: %w", err)
	}
	utils.Warn("raw records dumped", "rows", len(records), "path", d.path)
	return nil
}

// ReadJSONDump loads a file written by JSONDump.
func ReadJSONDump(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}
