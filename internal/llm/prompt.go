package llm

import (
	"fmt"
	"strings"
)

// SystemInstructions keeps the model cautious and pins it to the strict
// JSON contract. Long rule lists tend to trigger refusal loops, so this
// stays short.
const SystemInstructions = `You are a medical imaging triage assistant.
You do NOT provide a diagnosis. Use cautious language.
Return ONLY a valid JSON object that matches the schema exactly. No markdown, no extra text.`

// JSONSchema is the output contract shown to the model. The triage
// validator enforces the same shape on the way back.
const JSONSchema = `{
  "triage_level": "critical|urgent|routine",
  "suspected_findings": [],
  "red_flags": [],
  "recommended_next_steps": [],
  "specialty_category": "respiratory|cardiac|neurological|trauma|oncology|dermatology|general",
  "patient_summary": "",
  "confidence_level": "low|medium|high",
  "disclaimer": "This output is AI-generated and not a substitute for professional medical advice."
}`

// BuildPrompt assembles the user-turn text accompanying the image. The
// clinical context is caller-supplied free text; it is passed through
// verbatim, never parsed.
func BuildPrompt(clinicalContext string) string {
	ctx := strings.TrimSpace(clinicalContext)
	if ctx == "" {
		ctx = "No additional context provided."
	}
	return fmt.Sprintf("Clinical context: %s\n\nSchema:\n%s\n", ctx, JSONSchema)
}
