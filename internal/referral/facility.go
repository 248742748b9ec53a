// Package referral ranks candidate facilities for a validated triage
// record. The catalog is loaded once at startup and treated as immutable;
// ranking is deterministic for identical inputs.
package referral

import (
	"errors"
	"fmt"
	"strings"

	"github.com/linnemanlabs/medtriage/internal/triage"
)

// Coordinates locate a facility for display purposes only. No distance
// math is ever performed on them.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Facility is a static reference record for a hospital or clinic.
// TraumaLevel is an ordered capability scale where 1 is the highest
// capability. Instances are shared read-only across requests.
type Facility struct {
	Name         string             `json:"name"`
	Specialties  []triage.Specialty `json:"specialties"`
	TraumaLevel  int                `json:"trauma_level"`
	ICUAvailable bool               `json:"icu_available"`
	Coordinates  Coordinates        `json:"coordinates"`
}

// covers reports whether the facility lists the given specialty.
// Catalog entries are normalized at load time, so plain comparison is
// enough here.
func (f *Facility) covers(s triage.Specialty) bool {
	for _, fs := range f.Specialties {
		if fs == s {
			return true
		}
	}
	return false
}

// validateCatalog enforces the structural contract on a loaded catalog.
// A malformed catalog is a startup-fatal programming or packaging error,
// unlike model output, which is never fatal.
func validateCatalog(facilities []Facility) error {
	var errs []error
	for i := range facilities {
		f := &facilities[i]
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Errorf("facility %d: empty name", i))
		}
		if f.TraumaLevel < 1 {
			errs = append(errs, fmt.Errorf("facility %d (%s): trauma_level %d (must be >= 1)", i, f.Name, f.TraumaLevel))
		}
		if len(f.Specialties) == 0 {
			errs = append(errs, fmt.Errorf("facility %d (%s): no specialties", i, f.Name))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// normalizeCatalog lowercases and trims specialty names in place.
// Unrecognized specialties are kept as-is: they never match a case
// specialty, but tolerating them keeps the catalog forward compatible.
func normalizeCatalog(facilities []Facility) {
	for i := range facilities {
		for j, s := range facilities[i].Specialties {
			facilities[i].Specialties[j] = triage.Specialty(strings.ToLower(strings.TrimSpace(string(s))))
		}
	}
}
