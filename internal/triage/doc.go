// Package triage turns raw vision-model output into a validated triage
// record. It defines the domain vocabulary (triage level, specialty,
// confidence), the payload extractor, and the schema validator that
// guarantees every record reaching downstream consumers is structurally
// complete, falling back to an explicitly degraded record when the model
// output cannot be parsed.
package triage
