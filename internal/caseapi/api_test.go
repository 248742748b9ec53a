package caseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/medtriage/internal/cases"
	"github.com/linnemanlabs/medtriage/internal/referral"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

// mockService implements CaseService without running the pipeline.
type mockService struct {
	mu        sync.Mutex
	byID      map[string]*cases.Case
	submitErr error
	getErr    error
	submits   int
}

func newMockService() *mockService {
	return &mockService{byID: make(map[string]*cases.Case)}
}

func (m *mockService) Submit(_ context.Context, imageData []byte, clinicalContext string) (*cases.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	m.submits++
	id := fmt.Sprintf("case-%d", m.submits)
	m.byID[id] = &cases.Case{ID: id, Status: cases.StatusPending, ClinicalContext: clinicalContext}
	return &cases.SubmitResult{ID: id}, nil
}

func (m *mockService) Get(_ context.Context, id string) (*cases.Case, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, false, nil
	}
	cp := *c
	return &cp, true, nil
}

func testFacilities() []referral.Facility {
	return []referral.Facility{
		{Name: "Alpha Trauma Center", Specialties: []triage.Specialty{triage.SpecialtyTrauma}, TraumaLevel: 1, ICUAvailable: true},
		{Name: "Beta Clinic", Specialties: []triage.Specialty{triage.SpecialtyGeneral}, TraumaLevel: 4},
	}
}

func newTestRouter(t *testing.T) (chi.Router, *mockService) {
	t.Helper()
	svc := newMockService()
	api := New(nil, svc, testFacilities())
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r, svc
}

func multipartBody(t *testing.T, image []byte, clinicalContext string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(image); err != nil {
		t.Fatal(err)
	}
	if clinicalContext != "" {
		if err := mw.WriteField("clinical_context", clinicalContext); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, newMockService(), nil)
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(log.Nop(), nil, nil)
}

// Submission

func TestHandleSubmitCase_Multipart(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)

	body, ct := multipartBody(t, []byte("fake-image-bytes"), "rash on forearm")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	id, _ := resp["id"].(string)
	if id == "" {
		t.Fatal("expected non-empty case id")
	}

	c, ok, _ := svc.Get(context.Background(), id)
	if !ok {
		t.Fatal("submitted case not stored")
	}
	if c.ClinicalContext != "rash on forearm" {
		t.Errorf("clinical context = %q", c.ClinicalContext)
	}
}

func TestHandleSubmitCase_RawBody(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", strings.NewReader("raw-image-bytes"))
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("X-Clinical-Context", "swollen ankle")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var resp map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	c, ok, _ := svc.Get(context.Background(), resp["id"].(string))
	if !ok || c.ClinicalContext != "swollen ankle" {
		t.Errorf("case = %+v, ok=%v", c, ok)
	}
}

func TestHandleSubmitCase_EmptyBody(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", strings.NewReader(""))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSubmitCase_MissingImagePart(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("clinical_context", "no image attached")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSubmitCase_BadImage(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.submitErr = fmt.Errorf("%w: decode failed", cases.ErrBadImage)
	api := New(nil, svc, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", strings.NewReader("not-an-image"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d for bad image", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSubmitCase_ServiceError(t *testing.T) {
	t.Parallel()

	svc := newMockService()
	svc.submitErr = errors.New("store down")
	api := New(nil, svc, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cases", strings.NewReader("bytes"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestHandleSubmitCase_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	for _, method := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
		req := httptest.NewRequest(method, "/api/v1/cases", strings.NewReader("x"))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /api/v1/cases = %d, want %d", method, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

// Retrieval

func TestHandleGetCase_Found(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)
	svc.byID["c-1"] = &cases.Case{
		ID:     "c-1",
		Status: cases.StatusComplete,
		Record: &triage.Record{Level: triage.LevelUrgent, Specialty: triage.SpecialtyCardiac},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got cases.Case
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "c-1" || got.Record == nil || got.Record.Level != triage.LevelUrgent {
		t.Errorf("got %+v", got)
	}
}

func TestHandleGetCase_NotFound(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleGetCase_StoreError(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)
	svc.getErr = errors.New("connection refused")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// Referrals

func TestHandleGetReferrals_Complete(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)
	svc.byID["c-2"] = &cases.Case{
		ID:     "c-2",
		Status: cases.StatusComplete,
		Referrals: []referral.Ranking{
			{Facility: referral.Facility{Name: "Alpha Trauma Center"}, Score: 55},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-2/referrals", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		CaseID    string             `json:"case_id"`
		Referrals []referral.Ranking `json:"referrals"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CaseID != "c-2" || len(resp.Referrals) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleGetReferrals_PendingConflicts(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)
	svc.byID["c-3"] = &cases.Case{ID: "c-3", Status: cases.StatusPending}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-3/referrals", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHandleGetReferrals_FailedCaseEmptyList(t *testing.T) {
	t.Parallel()

	r, svc := newTestRouter(t)
	svc.byID["c-4"] = &cases.Case{ID: "c-4", Status: cases.StatusFailed}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/c-4/referrals", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	referrals, ok := resp["referrals"].([]any)
	if !ok {
		t.Fatalf("referrals = %T, want array", resp["referrals"])
	}
	if len(referrals) != 0 {
		t.Errorf("referrals = %v, want empty", referrals)
	}
}

// Facilities

func TestHandleListFacilities(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/facilities", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Facilities []referral.Facility `json:"facilities"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Facilities) != 2 {
		t.Fatalf("facilities = %d, want 2", len(resp.Facilities))
	}
	if resp.Facilities[0].Name != "Alpha Trauma Center" {
		t.Errorf("first facility = %q, want catalog order preserved", resp.Facilities[0].Name)
	}
}

func TestHandleListFacilities_EmptyCatalog(t *testing.T) {
	t.Parallel()

	api := New(nil, newMockService(), nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/facilities", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), `"facilities":[]`) {
		t.Errorf("body = %s, want empty facilities array", rec.Body.String())
	}
}
