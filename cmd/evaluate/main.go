// Evaluate runs the triage pipeline over a labeled case set and reports
// accuracy, critical recall, and escalation rate.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/medtriage/internal/imageprep"
	"github.com/linnemanlabs/medtriage/internal/llm"
	"github.com/linnemanlabs/medtriage/internal/llm/claude"
	"github.com/linnemanlabs/medtriage/internal/llm/medgemma"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

// maxEvalCases caps how many labeled cases a single run evaluates.
const maxEvalCases = 10

// maxAttempts is how many times a case is retried when the model output
// cannot be parsed into a payload.
const maxAttempts = 2

type evalCase struct {
	ImageFilename string `json:"image_filename"`
	Context       string `json:"context"`
	GroundTruth   string `json:"ground_truth_triage_level"`
}

type evalResult struct {
	Image       string
	GroundTruth string
	Predicted   string
	Match       bool
	Err         string
}

const casesSchemaExample = `[
  {
    "image_filename": "chest_xray_01.png",
    "context": "65-year-old with acute chest pain.",
    "ground_truth_triage_level": "critical"
  }
]`

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		casesPath        string
		imagesDir        string
		providerName     string
		claudeAPIKey     string
		claudeModel      string
		medgemmaEndpoint string
		medgemmaModel    string
		logCfg           log.Config
	)

	flag.StringVar(&casesPath, "cases", "eval/cases.json", "path to labeled cases JSON")
	flag.StringVar(&imagesDir, "images", "eval/images", "directory containing case images")
	flag.StringVar(&providerName, "llm-provider", "claude", "vision model provider: claude or medgemma")
	flag.StringVar(&claudeAPIKey, "claude-api-key", "", "API key for accessing the Claude LLM provider")
	flag.StringVar(&claudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	flag.StringVar(&medgemmaEndpoint, "medgemma-endpoint", "", "base URL of an OpenAI-compatible MedGemma server")
	flag.StringVar(&medgemmaModel, "medgemma-model", "medgemma-4b-it", "MedGemma model to use")
	logCfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "MEDTRIAGE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	lg, err := log.New(logCfg.ToOptions("medtriage"))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()
	L := lg.With("component", "evaluate")
	ctx := log.WithContext(context.Background(), L)

	var provider llm.Provider
	switch providerName {
	case "claude":
		if claudeAPIKey == "" {
			return fmt.Errorf("CLAUDE_API_KEY is required when LLM_PROVIDER is claude")
		}
		provider = claude.New(claudeAPIKey, claudeModel)
	case "medgemma":
		if medgemmaEndpoint == "" {
			return fmt.Errorf("MEDGEMMA_ENDPOINT is required when LLM_PROVIDER is medgemma")
		}
		provider = medgemma.New(medgemmaEndpoint, medgemmaModel)
	default:
		return fmt.Errorf("unknown llm provider %q", providerName)
	}

	evalCases, err := loadCases(casesPath)
	if err != nil {
		return err
	}
	if evalCases == nil {
		return nil // missing file already explained to the user
	}

	var results []evalResult
	for i, ec := range evalCases {
		fmt.Printf("  [%d/%d] Evaluating: %s ...\n", i+1, len(evalCases), ec.ImageFilename)
		results = append(results, runCase(ctx, L, provider, imagesDir, ec))
	}

	printReport(results)
	return nil
}

// loadCases reads and caps the labeled case set. A missing file prints
// setup instructions and returns (nil, nil).
func loadCases(path string) ([]evalCase, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is operator-supplied config
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("\n%s not found.\nTo run evaluation, create it with the following schema:\n%s\nPlace corresponding images in the images directory, then re-run.\n", path, casesSchemaExample)
			return nil, nil
		}
		return nil, fmt.Errorf("read cases: %w", err)
	}

	var evalCases []evalCase
	if err := json.Unmarshal(data, &evalCases); err != nil {
		return nil, fmt.Errorf("parse cases: %w", err)
	}

	fmt.Printf("Loaded %d cases from %s.\n", len(evalCases), path)
	if len(evalCases) > maxEvalCases {
		evalCases = evalCases[:maxEvalCases]
	}
	return evalCases, nil
}

func runCase(ctx context.Context, L log.Logger, provider llm.Provider, imagesDir string, ec evalCase) evalResult {
	fail := func(predicted, errMsg string) evalResult {
		return evalResult{
			Image:       ec.ImageFilename,
			GroundTruth: ec.GroundTruth,
			Predicted:   predicted,
			Err:         errMsg,
		}
	}

	data, err := os.ReadFile(filepath.Join(imagesDir, ec.ImageFilename)) //nolint:gosec // G304: path is operator-supplied config
	if err != nil {
		return fail("ERROR", fmt.Sprintf("image not found: %v", err))
	}

	img, err := imageprep.Prepare(data)
	if err != nil {
		return fail("ERROR", fmt.Sprintf("prepare image: %v", err))
	}

	var payload map[string]any
	var lastErr error
	failMode := "ERROR"
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := provider.Analyze(ctx, img, ec.Context)
		if err != nil {
			lastErr = err
			failMode = "ERROR"
			L.Warn(ctx, "inference failed", "image", ec.ImageFilename, "attempt", attempt, "error", err)
			continue
		}
		payload, err = triage.Extract(result.Text)
		if err == nil {
			break
		}
		lastErr = err
		failMode = "PARSE_ERROR"
		L.Warn(ctx, "parse failed", "image", ec.ImageFilename, "attempt", attempt, "error", err)
	}
	if payload == nil {
		return fail(failMode, lastErr.Error())
	}

	rec := triage.Validate(payload)
	return evalResult{
		Image:       ec.ImageFilename,
		GroundTruth: ec.GroundTruth,
		Predicted:   string(rec.Level),
		Match:       string(rec.Level) == ec.GroundTruth,
	}
}

func printReport(results []evalResult) {
	total := len(results)
	var criticalTotal, criticalCorrect, escalated, matched int
	for _, r := range results {
		if r.GroundTruth == "critical" {
			criticalTotal++
			if r.Predicted == "critical" {
				criticalCorrect++
			}
		}
		if r.Predicted == "critical" || r.Predicted == "urgent" {
			escalated++
		}
		if r.Match {
			matched++
		}
	}

	line := func() { fmt.Println(strings.Repeat("=", 90)) }
	line()
	fmt.Println("MEDTRIAGE EVALUATION RESULTS")
	line()
	fmt.Printf("%-35s %-15s %-15s %-8s %s\n", "Image", "Ground Truth", "Predicted", "Match", "Error")
	for _, r := range results {
		mark := "no"
		if r.Match {
			mark = "yes"
		}
		errStr := r.Err
		if len(errStr) > 40 {
			errStr = errStr[:40]
		}
		fmt.Printf("%-35s %-15s %-15s %-8s %s\n", r.Image, r.GroundTruth, r.Predicted, mark, errStr)
	}
	line()
	fmt.Printf("Total cases:       %d\n", total)
	fmt.Printf("Overall accuracy:  %s\n", percent(matched, total))
	fmt.Printf("Critical recall:   %s  (%d/%d critical cases correct)\n", percent(criticalCorrect, criticalTotal), criticalCorrect, criticalTotal)
	fmt.Printf("Escalation rate:   %s  (%d/%d cases flagged critical or urgent)\n", percent(escalated, total), escalated, total)
	line()
}

// percent formats n/d for the report, with "n/a" standing in when the
// denominator is zero (empty case set, or no critical ground truth).
func percent(n, d int) string {
	if d == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(d))
}
