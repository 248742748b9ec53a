package referral

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/medtriage/internal/triage"
)

// Scoring constants. Specialty match dominates, trauma capability is
// scaled by case urgency, and ICU availability is a small bonus that
// only applies when the case is time-sensitive. The exact values are
// not load-bearing beyond their ordering.
const (
	specialtyExactPoints   = 30.0
	specialtyPartialPoints = 12.0
	traumaCriticalWeight   = 20.0
	traumaUrgentWeight     = 8.0
	icuBonusPoints         = 5.0

	// trauma levels at or beyond this provide no capability signal
	traumaFloor = 4
)

// EmergencyNote is attached to the top result for critical cases.
const EmergencyNote = "Seek immediate emergency care at this facility."

// Breakdown itemizes the score a facility received per signal.
type Breakdown struct {
	Specialty float64 `json:"specialty"`
	Trauma    float64 `json:"trauma"`
	ICU       float64 `json:"icu"`
}

// Ranking is one entry of a ranked referral list. It is ephemeral,
// recomputed per request, and carries the scored facility together with
// a human-readable justification.
type Ranking struct {
	Facility      Facility  `json:"facility"`
	Score         float64   `json:"score"`
	Breakdown     Breakdown `json:"breakdown"`
	Reasons       string    `json:"reasons"`
	EmergencyNote string    `json:"emergency_note,omitempty"`
}

// Rank scores every eligible facility against the triage record and
// returns the list ordered by descending score. Ties resolve by higher
// trauma capability (lower level number), then ICU availability, then
// stable catalog order, so identical inputs always produce identical
// rankings. Facilities with no specialty overlap and no general coverage
// are excluded outright: an incapable facility is a category error, not
// a low score. An empty catalog yields an empty list.
func Rank(rec *triage.Record, facilities []Facility) []Ranking {
	// unknown case specialty matches as general without mutating the record
	caseSpec := rec.Specialty
	if caseSpec == triage.SpecialtyUnknown {
		caseSpec = triage.SpecialtyGeneral
	}

	ranked := make([]Ranking, 0, len(facilities))
	for i := range facilities {
		f := facilities[i]

		var (
			b       Breakdown
			reasons []string
		)

		switch {
		case caseSpec != triage.SpecialtyGeneral && f.covers(caseSpec):
			b.Specialty = specialtyExactPoints
			reasons = append(reasons, fmt.Sprintf("specializes in %s", caseSpec))
		case caseSpec == triage.SpecialtyGeneral || f.covers(triage.SpecialtyGeneral):
			b.Specialty = specialtyPartialPoints
			reasons = append(reasons, "general coverage")
		default:
			// no overlap and no general coverage on either side: ineligible
			continue
		}

		b.Trauma = traumaScore(rec.Level, f.TraumaLevel)
		if b.Trauma > 0 {
			reasons = append(reasons, fmt.Sprintf("trauma level %d suits %s urgency", f.TraumaLevel, rec.Level))
		}

		if f.ICUAvailable && (rec.Level == triage.LevelCritical || rec.Level == triage.LevelUrgent) {
			b.ICU = icuBonusPoints
			reasons = append(reasons, "has ICU")
		}

		ranked = append(ranked, Ranking{
			Facility:  f,
			Score:     b.Specialty + b.Trauma + b.ICU,
			Breakdown: b,
			Reasons:   strings.Join(reasons, "; "),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Facility.TraumaLevel != b.Facility.TraumaLevel {
			return a.Facility.TraumaLevel < b.Facility.TraumaLevel
		}
		if a.Facility.ICUAvailable != b.Facility.ICUAvailable {
			return a.Facility.ICUAvailable
		}
		// stable sort preserves catalog order for full ties
		return false
	})

	if rec.Level == triage.LevelCritical && len(ranked) > 0 {
		ranked[0].EmergencyNote = EmergencyNote
	}

	return ranked
}

// traumaScore rewards low (capable) trauma levels in proportion to case
// urgency. Routine and unknown cases are indifferent to trauma capability.
func traumaScore(level triage.Level, traumaLevel int) float64 {
	var weight float64
	switch level {
	case triage.LevelCritical:
		weight = traumaCriticalWeight
	case triage.LevelUrgent:
		weight = traumaUrgentWeight
	default:
		return 0
	}

	if traumaLevel >= traumaFloor {
		return 0
	}
	if traumaLevel < 1 {
		traumaLevel = 1
	}
	return weight * float64(traumaFloor-traumaLevel) / float64(traumaFloor-1)
}
