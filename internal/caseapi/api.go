// Package caseapi exposes the public HTTP surface: case submission,
// case retrieval, referral listings, and the facility catalog.
package caseapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/medtriage/internal/cases"
	"github.com/linnemanlabs/medtriage/internal/referral"
)

// CaseService defines the business operations caseapi needs.
type CaseService interface {
	Submit(ctx context.Context, imageData []byte, clinicalContext string) (*cases.SubmitResult, error)
	Get(ctx context.Context, id string) (*cases.Case, bool, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger  log.Logger
	svc     CaseService
	catalog []referral.Facility
}

// New creates a new API handler. The catalog is served verbatim on the
// facilities endpoint; it may be empty but not nil-checked per request.
func New(logger log.Logger, svc CaseService, catalog []referral.Facility) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("case service is required"))
	}
	return &API{
		logger:  logger,
		svc:     svc,
		catalog: catalog,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cases", a.handleSubmitCase)
		r.Get("/cases/{id}", a.handleGetCase)
		r.Get("/cases/{id}/referrals", a.handleGetReferrals)
		r.Get("/facilities", a.handleListFacilities)
	})
}

func (a *API) handleGetCase(w http.ResponseWriter, r *http.Request) {
	c, ok := a.lookupCase(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c)
}

func (a *API) handleGetReferrals(w http.ResponseWriter, r *http.Request) {
	c, ok := a.lookupCase(w, r)
	if !ok {
		return
	}

	if c.Status != cases.StatusComplete && c.Status != cases.StatusFailed {
		http.Error(w, `{"error":"case not finished"}`, http.StatusConflict)
		return
	}

	referrals := c.Referrals
	if referrals == nil {
		referrals = []referral.Ranking{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"case_id":   c.ID,
		"referrals": referrals,
	})
}

func (a *API) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	facilities := a.catalog
	if facilities == nil {
		facilities = []referral.Facility{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"facilities": facilities,
	})
}

// lookupCase resolves {id} to a case, writing the error response itself
// when the case cannot be served.
func (a *API) lookupCase(w http.ResponseWriter, r *http.Request) (*cases.Case, bool) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("medtriage.case.id", id))

	c, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get case", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return nil, false
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return nil, false
	}

	span.SetAttributes(attribute.String("medtriage.case.status", string(c.Status)))
	return c, true
}
