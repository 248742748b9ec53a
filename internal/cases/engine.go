package cases

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/medtriage/internal/llm"
	"github.com/linnemanlabs/medtriage/internal/referral"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/medtriage/internal/cases")

// EngineHooks lets the caller observe engine activity (wired to
// Prometheus by main). All hooks are optional.
type EngineHooks struct {
	OnLLMCall  func(inputTokens, outputTokens int, duration float64)
	OnComplete func(e *CompleteEvent)
}

// CompleteEvent summarizes one finished run for metrics.
type CompleteEvent struct {
	Status      Status
	Level       triage.Level
	Degraded    bool
	Diagnostics []triage.Diagnostic
	Referrals   int
	Duration    float64
	LLMTime     float64
	Model       string
}

// RunResult is the outcome of a single engine run.
type RunResult struct {
	Status       Status
	Record       *triage.Record
	Referrals    []referral.Ranking
	RawOutput    string
	Model        string
	Duration     float64
	LLMTime      float64
	InputTokens  int
	OutputTokens int
	CompletedAt  time.Time
}

// Engine runs one analysis pass: model inference, payload extraction,
// schema validation, referral ranking. It holds no mutable state; the
// catalog it ranks against is the shared read-only one loaded at startup.
type Engine struct {
	provider llm.Provider
	catalog  []referral.Facility
	logger   log.Logger
	hooks    EngineHooks
}

// NewEngine creates a new analysis engine with the given dependencies.
func NewEngine(provider llm.Provider, catalog []referral.Facility, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		provider: provider,
		catalog:  catalog,
		logger:   logger,
		hooks:    hooks,
	}
}

// Run executes the analysis for a prepared image. It always returns a
// structurally complete result: an inference failure yields a failed
// status with a degraded record and an empty referral list, never a nil
// record, so the user-visible path cannot dead-end.
func (e *Engine) Run(ctx context.Context, caseID string, img llm.Image, clinicalContext string) *RunResult {
	start := time.Now()
	L := e.logger.With("case_id", caseID)

	llmCtx, span := tracer.Start(ctx, "llm.analyze")
	span.SetAttributes(
		attribute.String("gen_ai.operation.name", "llm.analyze"),
		attribute.String("medtriage.case.id", caseID),
	)

	llmStart := time.Now()
	res, err := e.provider.Analyze(llmCtx, img, clinicalContext)
	llmTime := time.Since(llmStart).Seconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analyze failed")
		span.End()

		L.Error(ctx, err, "llm call failed")

		rec := triage.Validate(nil)
		rec.PatientSummary = "Model inference was unavailable for this case. " + triage.FallbackNextStep
		rec.Diagnostics = []triage.Diagnostic{{Field: "raw_output", Reason: "inference failed"}}

		rr := &RunResult{
			Status:      StatusFailed,
			Record:      rec,
			Referrals:   []referral.Ranking{},
			Duration:    time.Since(start).Seconds(),
			LLMTime:     llmTime,
			CompletedAt: time.Now(),
		}
		e.complete(rr)
		return rr
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", res.Model),
		attribute.Int("gen_ai.usage.input_tokens", res.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", res.OutputTokens),
	)
	span.End()

	if e.hooks.OnLLMCall != nil {
		e.hooks.OnLLMCall(res.InputTokens, res.OutputTokens, llmTime)
	}

	rec := triage.ParseOutput(res.Text)
	rankings := referral.Rank(rec, e.catalog)

	L.Info(ctx, "analysis complete",
		"triage_level", rec.Level,
		"specialty", rec.Specialty,
		"degraded", rec.Degraded,
		"coercions", len(rec.Diagnostics),
		"referrals", len(rankings),
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
	)

	rr := &RunResult{
		Status:       StatusComplete,
		Record:       rec,
		Referrals:    rankings,
		RawOutput:    res.Text,
		Model:        res.Model,
		Duration:     time.Since(start).Seconds(),
		LLMTime:      llmTime,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		CompletedAt:  time.Now(),
	}
	e.complete(rr)
	return rr
}

func (e *Engine) complete(rr *RunResult) {
	if e.hooks.OnComplete == nil {
		return
	}
	e.hooks.OnComplete(&CompleteEvent{
		Status:      rr.Status,
		Level:       rr.Record.Level,
		Degraded:    rr.Record.Degraded,
		Diagnostics: rr.Record.Diagnostics,
		Referrals:   len(rr.Referrals),
		Duration:    rr.Duration,
		LLMTime:     rr.LLMTime,
		Model:       rr.Model,
	})
}
