package cases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/medtriage/internal/imageprep"
	"github.com/linnemanlabs/medtriage/internal/llm"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

// ErrBadImage marks submissions whose image could not be decoded.
// Callers should map it to a client error rather than a server fault.
var ErrBadImage = errors.New("image cannot be decoded")

// SubmitResult is the outcome of submitting an image for analysis.
type SubmitResult struct {
	ID      string
	Skipped bool
	Reason  string
}

// Notifier delivers completed cases to an external channel (e.g. Slack).
type Notifier interface {
	Notify(ctx context.Context, c *Case) error
}

// Service is the business boundary for analysis cases.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
}

// NewService creates a new case service. metrics and notifier may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
	}
}

// Submit accepts an uploaded image for analysis, handling validation,
// dedup, and lifecycle. The image is prepared synchronously so undecodable
// uploads are rejected up front; the model call runs asynchronously.
func (s *Service) Submit(ctx context.Context, imageData []byte, clinicalContext string) (*SubmitResult, error) {
	img, err := imageprep.Prepare(imageData)
	if err != nil {
		s.countSubmit("bad_image")
		return nil, fmt.Errorf("%w: %w", ErrBadImage, err)
	}

	sum := sha256.Sum256(imageData)
	fingerprint := hex.EncodeToString(sum[:])

	// dedup: skip if the same image is already pending or in progress
	if existing, ok, err := s.store.GetByFingerprint(ctx, fingerprint); err != nil {
		return nil, err
	} else if ok && (existing.Status == StatusPending || existing.Status == StatusInProgress) {
		s.countSubmit("duplicate")
		return &SubmitResult{ID: existing.ID, Skipped: true, Reason: "duplicate"}, nil
	}

	id := ulid.Make().String()
	c := &Case{
		ID:              id,
		Fingerprint:     fingerprint,
		Status:          StatusPending,
		ClinicalContext: clinicalContext,
		CreatedAt:       time.Now(),
	}

	if err := s.store.Put(ctx, c); err != nil {
		return nil, err
	}
	s.countSubmit("accepted")

	// kick off async analysis - pass only the ID to avoid sharing the Case pointer.
	go s.runCase(context.WithoutCancel(ctx), id, img, clinicalContext)

	return &SubmitResult{ID: id}, nil
}

// Get retrieves a case by ID.
func (s *Service) Get(ctx context.Context, id string) (*Case, bool, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) runCase(ctx context.Context, id string, img llm.Image, clinicalContext string) {
	L := s.logger.With("case_id", id)

	c, ok, err := s.store.Get(ctx, id)
	if err != nil || !ok {
		L.Error(ctx, err, "failed to fetch case for analysis")
		return
	}

	c.Status = StatusInProgress
	if err := s.store.Put(ctx, c); err != nil {
		L.Error(ctx, err, "failed to update status to in_progress")
		return
	}

	rr := s.engine.Run(ctx, id, img, clinicalContext)

	c.Status = rr.Status
	c.Record = rr.Record
	c.Referrals = rr.Referrals
	c.RawOutput = rr.RawOutput
	c.Model = rr.Model
	c.CompletedAt = rr.CompletedAt
	c.Duration = rr.Duration
	c.LLMTime = rr.LLMTime
	c.InputTokens = rr.InputTokens
	c.OutputTokens = rr.OutputTokens

	if err := s.store.Put(ctx, c); err != nil {
		L.Error(ctx, err, "failed to persist case result")
	}

	L.Info(ctx, "case finished",
		"status", rr.Status,
		"triage_level", rr.Record.Level,
		"duration", rr.Duration,
		"referrals", len(rr.Referrals),
	)

	s.maybeNotify(ctx, c)
}

// maybeNotify sends time-sensitive outcomes to the notifier: completed
// critical or urgent cases, and failures.
func (s *Service) maybeNotify(ctx context.Context, c *Case) {
	if s.notifier == nil {
		return
	}
	timeSensitive := c.Status == StatusFailed ||
		(c.Status == StatusComplete && c.Record != nil &&
			(c.Record.Level == triage.LevelCritical || c.Record.Level == triage.LevelUrgent))
	if !timeSensitive {
		return
	}
	if err := s.notifier.Notify(ctx, c); err != nil {
		s.logger.Error(ctx, err, "notification failed", "case_id", c.ID)
	}
}

func (s *Service) countSubmit(result string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(result).Inc()
	}
}
