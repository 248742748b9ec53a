package cases

import (
	"time"

	"github.com/linnemanlabs/medtriage/internal/referral"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

// Status tracks where a case is in its lifecycle.
type Status string

const (
	// StatusPending means created, not yet started
	StatusPending Status = "pending"

	// StatusInProgress means currently being analyzed
	StatusInProgress Status = "in_progress"

	// StatusComplete means finished with a usable record
	StatusComplete Status = "complete"

	// StatusFailed means the model call failed; the record is degraded
	StatusFailed Status = "failed"
)

// Case is one analysis request and its outcome. Fingerprint is the
// sha256 of the uploaded image bytes and drives dedup. Record and
// Referrals are nil until the run completes; after completion the case
// is read-only.
type Case struct {
	ID              string             `json:"id"`
	Fingerprint     string             `json:"fingerprint"`
	Status          Status             `json:"status"`
	ClinicalContext string             `json:"clinical_context,omitempty"`
	Model           string             `json:"model,omitempty"`
	RawOutput       string             `json:"raw_output,omitempty"`
	Record          *triage.Record     `json:"record,omitempty"`
	Referrals       []referral.Ranking `json:"referrals,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	CompletedAt     time.Time          `json:"completed_at,omitempty"`
	Duration        float64            `json:"duration_seconds,omitempty"`
	LLMTime         float64            `json:"llm_time_seconds,omitempty"`
	InputTokens     int                `json:"input_tokens,omitempty"`
	OutputTokens    int                `json:"output_tokens,omitempty"`
}
