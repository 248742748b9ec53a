package referral

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed catalog.json
var defaultCatalog []byte

// DefaultCatalog returns the embedded Ottawa/Gatineau facility catalog.
func DefaultCatalog() ([]Facility, error) {
	return parseCatalog(defaultCatalog)
}

// LoadCatalog reads a facility catalog from a JSON file. Unknown fields
// in each record are tolerated; structural defects (bad JSON, empty
// names, non-positive trauma levels) are errors the caller should treat
// as fatal at startup.
func LoadCatalog(path string) ([]Facility, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied config, not user input
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]Facility, error) {
	var facilities []Facility
	if err := json.Unmarshal(data, &facilities); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	normalizeCatalog(facilities)
	if err := validateCatalog(facilities); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return facilities, nil
}
