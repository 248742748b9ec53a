package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/medtriage/internal/cases"
	"github.com/linnemanlabs/medtriage/internal/referral"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

func TestNotify_PostsToWebhook(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	c := &cases.Case{
		ID:     "01JN123",
		Status: cases.StatusComplete,
		Record: &triage.Record{
			Level:      triage.LevelCritical,
			Specialty:  triage.SpecialtyTrauma,
			RedFlags:   []string{"active bleeding"},
			NextSteps:  []string{"Call emergency services."},
			Confidence: triage.ConfidenceHigh,
		},
		Referrals: []referral.Ranking{
			{
				Facility:      referral.Facility{Name: "Alpha Trauma Center", TraumaLevel: 1},
				Score:         55,
				EmergencyNote: referral.EmergencyNote,
			},
		},
		Model:        "claude-sonnet-4-20250514",
		Duration:     23.4,
		InputTokens:  800,
		OutputTokens: 450,
		CompletedAt:  time.Date(2026, 2, 26, 14, 23, 0, 0, time.UTC),
	}

	if err := n.Notify(context.Background(), c); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	blocks, ok := got["blocks"].([]any)
	if !ok {
		t.Fatal("expected blocks array in payload")
	}

	header := blocks[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "CRITICAL") {
		t.Errorf("header text = %q, want to contain CRITICAL", headerText)
	}
	if !strings.Contains(headerText, "\U0001f534") {
		t.Errorf("header should contain red circle for critical level")
	}

	raw, _ := json.Marshal(got)
	payload := string(raw)
	for _, want := range []string{"active bleeding", "Call emergency services.", "Alpha Trauma Center", referral.EmergencyNote, "case 01JN123"} {
		if !strings.Contains(payload, want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestNotify_NoOpWithoutURL(t *testing.T) {
	t.Parallel()

	n := New("")
	if err := n.Notify(context.Background(), &cases.Case{}); err != nil {
		t.Fatalf("Notify with empty URL should be no-op, got: %v", err)
	}
}

func TestNotify_WebhookError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := New(srv.URL)
	err := n.Notify(context.Background(), &cases.Case{ID: "01JN999", Status: cases.StatusComplete})
	if err == nil {
		t.Fatal("expected error for non-2xx webhook response")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error = %v, want to mention status 503", err)
	}
}

func TestNotify_FailedCaseWithoutRecord(t *testing.T) {
	t.Parallel()

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	c := &cases.Case{
		ID:        "01JN456",
		Status:    cases.StatusFailed,
		CreatedAt: time.Date(2026, 2, 26, 9, 0, 0, 0, time.UTC),
	}
	if err := n.Notify(context.Background(), c); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	header := got["blocks"].([]any)[0].(map[string]any)
	headerText := header["text"].(map[string]any)["text"].(string)
	if !strings.Contains(headerText, "Case Failed") {
		t.Errorf("header text = %q, want Case Failed", headerText)
	}
}

func TestLevelEmoji(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status cases.Status
		level  triage.Level
		want   string
	}{
		{"failed", cases.StatusFailed, triage.LevelRoutine, "\U0001f534"},
		{"critical", cases.StatusComplete, triage.LevelCritical, "\U0001f534"},
		{"urgent", cases.StatusComplete, triage.LevelUrgent, "\U0001f7e1"},
		{"routine", cases.StatusComplete, triage.LevelRoutine, "\U0001f7e2"},
		{"unknown", cases.StatusComplete, triage.LevelUnknown, "\U0001f7e2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := levelEmoji(tt.status, tt.level)
			if got != tt.want {
				t.Errorf("levelEmoji(%q, %q) = %q, want %q", tt.status, tt.level, got, tt.want)
			}
		})
	}
}

func TestShortModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"claude-sonnet-4-20250514", "claude-sonnet-4"},
		{"medgemma-4b-it", "medgemma-4b-it"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := shortModel(tt.input); got != tt.want {
			t.Errorf("shortModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestListBlock_CapsItems(t *testing.T) {
	t.Parallel()

	items := []string{"a", "b", "c", "d", "e", "f", "g"}
	b := listBlock("Red flags", items)
	if b == nil {
		t.Fatal("expected block")
	}
	text := b["text"].(map[string]any)["text"].(string)
	if strings.Count(text, "• ") != maxListItems {
		t.Errorf("bullet count = %d, want %d", strings.Count(text, "• "), maxListItems)
	}
}

func TestListBlock_EmptyNil(t *testing.T) {
	t.Parallel()

	if b := listBlock("Red flags", nil); b != nil {
		t.Errorf("expected nil block for empty list, got %v", b)
	}
}
