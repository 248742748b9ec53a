// Package llm defines the provider boundary for vision-model inference.
// Providers are black boxes: image and clinical context in, raw model
// text out. Everything downstream of the raw text is the triage
// pipeline's responsibility.
package llm

import "context"

// Image is an inference-ready image as produced by imageprep.
type Image struct {
	Data      []byte
	MediaType string
}

// Result is the raw outcome of one inference call. Text is unparsed
// model output; token counts are zero when the backend does not report
// them.
type Result struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is the interface for any vision-model backend.
type Provider interface {
	Analyze(ctx context.Context, img Image, clinicalContext string) (*Result, error)
}
