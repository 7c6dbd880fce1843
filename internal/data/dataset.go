package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Load reads a dataset from a CSV file. Each row is an identifier followed
// by the feature columns and the label in the last column. A header row is
// skipped when its label column does not parse as a number.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	start := 0
	if _, err := strconv.ParseFloat(records[0][len(records[0])-1], 64); err != nil {
		start = 1
	}

	set := &Set{}
	width := 0
	for i, rec := range records[start:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("row %d: need identifier, features, and label, got %d columns", i+start+1, len(rec))
		}
		if width == 0 {
			width = len(rec)
		} else if len(rec) != width {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+start+1, width, len(rec))
		}

		features := make([]float64, 0, len(rec)-2)
		for c := 1; c < len(rec)-1; c++ {
			v, err := strconv.ParseFloat(rec[c], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i+start+1, c+1, err)
			}
			features = append(features, v)
		}
		label, err := strconv.ParseFloat(rec[len(rec)-1], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d label: %w", i+start+1, err)
		}

		set.Names = append(set.Names, rec[0])
		set.X = append(set.X, features)
		set.Y = append(set.Y, label)
	}
	if len(set.X) == 0 {
		return nil, fmt.Errorf("dataset %s has no data rows", path)
	}

	log.Info().
		Str("path", path).
		Int("rows", len(set.X)).
		Int("features", width-2).
		Msg("dataset loaded")
	return set, nil
}
