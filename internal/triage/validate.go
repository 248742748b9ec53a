package triage

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxListEntries bounds the ordered list fields so downstream
	// rendering stays predictable regardless of how chatty the model is.
	MaxListEntries = 10

	// FallbackNextStep is the mandatory instruction ensured on every
	// record whose triage level could not be resolved, so a degraded
	// record is never actionable-empty.
	FallbackNextStep = "Consult a qualified clinician."

	// DefaultDisclaimer is substituted when the model omits its own.
	DefaultDisclaimer = "This output is AI-generated and not a medical diagnosis."

	fallbackSummary = "No patient summary was provided by the model."

	// maxRawEmbed caps how much raw model output a degraded record
	// carries in its summary for transparency.
	maxRawEmbed = 800
)

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Validate coerces a raw mapping into a canonical Record. It is total:
// every input, including nil, produces a structurally complete record.
// Unrecognized or missing values resolve to documented defaults and are
// noted in the record's diagnostics trail rather than raised as errors.
// Identical input always yields an identical record, and a mapping that
// is already a valid record shape passes through unchanged with no
// diagnostics.
func Validate(raw map[string]any) *Record {
	var diags []Diagnostic
	note := func(field, format string, args ...any) {
		diags = append(diags, Diagnostic{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	rec := &Record{
		SuspectedFindings: stringList(raw, "suspected_findings", note),
		RedFlags:          stringList(raw, "red_flags", note),
		NextSteps:         stringList(raw, "recommended_next_steps", note),
	}

	levelResolved := false
	if s, ok := stringField(raw, "triage_level"); !ok {
		note("triage_level", "missing")
	} else if lv, recognized := ParseLevel(s); !recognized {
		note("triage_level", "unrecognized value %q", s)
	} else {
		rec.Level = lv
		levelResolved = true
	}
	if !levelResolved {
		rec.Level = LevelUnknown
		rec.Degraded = true
	}

	if s, ok := stringField(raw, "specialty_category"); !ok {
		rec.Specialty = SpecialtyGeneral
		note("specialty_category", "missing")
	} else if sp, recognized := ParseSpecialty(s); !recognized {
		rec.Specialty = SpecialtyGeneral
		note("specialty_category", "unrecognized value %q", s)
	} else {
		rec.Specialty = sp
	}

	if s, ok := stringField(raw, "patient_summary"); ok && strings.TrimSpace(s) != "" {
		rec.PatientSummary = strings.TrimSpace(s)
	} else {
		rec.PatientSummary = fallbackSummary
		note("patient_summary", "missing")
	}

	if s, ok := stringField(raw, "confidence_level"); !ok {
		rec.Confidence = ConfidenceUnknown
	} else if cf, recognized := ParseConfidence(s); !recognized {
		rec.Confidence = ConfidenceUnknown
		note("confidence_level", "unrecognized value %q", s)
	} else {
		rec.Confidence = cf
	}

	if s, ok := stringField(raw, "disclaimer"); ok && strings.TrimSpace(s) != "" {
		rec.Disclaimer = strings.TrimSpace(s)
	} else {
		rec.Disclaimer = DefaultDisclaimer
	}

	// A record with an unresolved level, or no next steps at all, always
	// carries the mandatory fallback instruction.
	if !levelResolved || len(rec.NextSteps) == 0 {
		rec.NextSteps = ensureFallback(rec.NextSteps)
	}

	rec.Diagnostics = diags
	return rec
}

// ParseOutput composes Extract and Validate into the total parsing path:
// raw model text in, structurally complete record out. Extraction
// failure produces an explicitly degraded record that embeds a clipped
// copy of the raw output so a reviewer can see what the model actually
// said.
func ParseOutput(raw string) *Record {
	m, err := Extract(raw)
	if err != nil {
		reason := MalformedPayload
		var xerr *ExtractionError
		if errors.As(err, &xerr) {
			reason = xerr.Reason
		}

		rec := Validate(nil)
		rec.Degraded = true
		rec.RedFlags = []string{"Model did not return structured output."}
		rec.PatientSummary = degradedSummary(raw, reason)
		rec.Diagnostics = []Diagnostic{{Field: "raw_output", Reason: string(reason)}}
		return rec
	}
	return Validate(m)
}

func degradedSummary(raw string, reason ExtractReason) string {
	clipped := strings.TrimSpace(raw)
	if len(clipped) > maxRawEmbed {
		cut := maxRawEmbed
		for cut > 0 && !utf8.RuneStart(clipped[cut]) {
			cut--
		}
		clipped = clipped[:cut] + "..."
	}
	if clipped == "" {
		return fmt.Sprintf("Parsing fallback used (%s): the model returned no usable output.", reason)
	}
	return fmt.Sprintf("Parsing fallback used (%s). Raw model output:\n%s", reason, clipped)
}

// ensureFallback appends the mandatory instruction, dropping the last
// model-supplied entry if needed so the list stays within MaxListEntries.
func ensureFallback(steps []string) []string {
	for _, s := range steps {
		if s == FallbackNextStep {
			return steps
		}
	}
	if len(steps) >= MaxListEntries {
		steps = steps[:MaxListEntries-1]
	}
	return append(steps, FallbackNextStep)
}

func stringField(raw map[string]any, key string) (string, bool) {
	v, ok := raw[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// stringList coerces an ordered list field. Non-string entries are
// dropped, order is preserved, and length is capped at MaxListEntries.
// The result is never nil.
func stringList(raw map[string]any, key string, note func(field, format string, args ...any)) []string {
	out := []string{}
	v, ok := raw[key]
	if !ok {
		return out
	}
	items, ok := v.([]any)
	if !ok {
		note(key, "not a list")
		return out
	}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == MaxListEntries {
			break
		}
	}
	return out
}
