package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/medtriage/internal/llm"
)

type stubProvider struct {
	text string
	err  error
}

func (p *stubProvider) Analyze(context.Context, llm.Image, string) (*llm.Result, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Result{Text: p.text, Model: "stub"}, nil
}

func writeCases(t *testing.T, cases []evalCase) string {
	t.Helper()
	data, err := json.Marshal(cases)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "cases.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeImage(t *testing.T, dir, name string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadCases_CapsAtTen(t *testing.T) {
	t.Parallel()

	var many []evalCase
	for range 15 {
		many = append(many, evalCase{ImageFilename: "x.png", GroundTruth: "routine"})
	}
	path := writeCases(t, many)

	got, err := loadCases(path)
	if err != nil {
		t.Fatalf("loadCases: %v", err)
	}
	if len(got) != maxEvalCases {
		t.Errorf("cases = %d, want %d", len(got), maxEvalCases)
	}
}

func TestLoadCases_MissingFile(t *testing.T) {
	t.Parallel()

	got, err := loadCases(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err != nil {
		t.Fatalf("loadCases: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil cases for missing file, got %v", got)
	}
}

func TestLoadCases_BadJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cases.json")
	if err := os.WriteFile(path, []byte("{bad"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := loadCases(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestRunCase_Match(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, dir, "wound.png")

	provider := &stubProvider{
		text: `{"triage_level":"urgent","specialty_category":"trauma","patient_summary":"s","recommended_next_steps":["x"]}`,
	}
	r := runCase(context.Background(), log.Nop(), provider, dir, evalCase{
		ImageFilename: "wound.png",
		GroundTruth:   "urgent",
	})

	if !r.Match {
		t.Errorf("result = %+v, want match", r)
	}
	if r.Predicted != "urgent" {
		t.Errorf("predicted = %q, want urgent", r.Predicted)
	}
}

func TestRunCase_MissingImage(t *testing.T) {
	t.Parallel()

	r := runCase(context.Background(), log.Nop(), &stubProvider{}, t.TempDir(), evalCase{
		ImageFilename: "nope.png",
		GroundTruth:   "routine",
	})

	if r.Predicted != "ERROR" {
		t.Errorf("predicted = %q, want ERROR", r.Predicted)
	}
	if r.Match {
		t.Error("missing image should not match")
	}
}

func TestRunCase_UnparseableOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, dir, "scan.png")

	r := runCase(context.Background(), log.Nop(), &stubProvider{text: "I cannot determine anything."}, dir, evalCase{
		ImageFilename: "scan.png",
		GroundTruth:   "routine",
	})

	if r.Predicted != "PARSE_ERROR" {
		t.Errorf("predicted = %q, want PARSE_ERROR", r.Predicted)
	}
}

func TestRunCase_ProviderError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeImage(t, dir, "scan.png")

	r := runCase(context.Background(), log.Nop(), &stubProvider{err: errors.New("model offline")}, dir, evalCase{
		ImageFilename: "scan.png",
		GroundTruth:   "critical",
	})

	if r.Predicted != "ERROR" {
		t.Errorf("predicted = %q, want ERROR", r.Predicted)
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	if got := percent(1, 4); got != "25.0%" {
		t.Errorf("percent(1,4) = %q, want 25.0%%", got)
	}
	if got := percent(0, 3); got != "0.0%" {
		t.Errorf("percent(0,3) = %q, want 0.0%%", got)
	}
	if got := percent(3, 0); got != "n/a" {
		t.Errorf("percent(3,0) = %q, want n/a", got)
	}
}
