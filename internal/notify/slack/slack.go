// Package slack sends case notifications to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/linnemanlabs/medtriage/internal/cases"
	"github.com/linnemanlabs/medtriage/internal/triage"
)

const (
	maxListItems = 5
	httpTimeout  = 10 * time.Second
)

// Notifier sends completed cases to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Notify is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Notify posts a case to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Notify(ctx context.Context, c *cases.Case) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(c)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(c *cases.Case) map[string]any {
	blocks := []map[string]any{
		headerBlock(c),
		{"type": "divider"},
		fieldsBlock(c),
	}

	if c.Record != nil {
		if b := listBlock("Red flags", c.Record.RedFlags); b != nil {
			blocks = append(blocks, map[string]any{"type": "divider"}, b)
		}
		if b := listBlock("Next steps", c.Record.NextSteps); b != nil {
			blocks = append(blocks, map[string]any{"type": "divider"}, b)
		}
	}

	if b := referralBlock(c); b != nil {
		blocks = append(blocks, map[string]any{"type": "divider"}, b)
	}

	blocks = append(blocks, map[string]any{"type": "divider"}, contextBlock(c))

	return map[string]any{"blocks": blocks}
}

func headerBlock(c *cases.Case) map[string]any {
	emoji := levelEmoji(c.Status, recordLevel(c))
	title := "Case Complete"
	if c.Status == cases.StatusFailed {
		title = "Case Failed"
	}
	text := fmt.Sprintf("%s %s: %s", emoji, title, strings.ToUpper(string(recordLevel(c))))

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(c *cases.Case) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Level:* %s", recordLevel(c)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Specialty:* %s", recordSpecialty(c)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duration:* %.1fs", c.Duration),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Model:* %s", shortModel(c.Model)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Tokens:* %d in / %d out", c.InputTokens, c.OutputTokens),
		},
	}

	if c.Record != nil {
		fields = append(fields, map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %s", c.Record.Confidence),
		})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

// listBlock renders a titled bullet list, nil when the list is empty.
func listBlock(title string, items []string) map[string]any {
	if len(items) == 0 {
		return nil
	}
	if len(items) > maxListItems {
		items = items[:maxListItems]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", title)
	for _, item := range items {
		fmt.Fprintf(&b, "• %s\n", item)
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": strings.TrimRight(b.String(), "\n"),
		},
	}
}

func referralBlock(c *cases.Case) map[string]any {
	if len(c.Referrals) == 0 {
		return nil
	}

	top := c.Referrals[0]
	text := fmt.Sprintf("*Top referral*\n%s (trauma level %d, score %.0f)",
		top.Facility.Name, top.Facility.TraumaLevel, top.Score)
	if top.EmergencyNote != "" {
		text += "\n_" + top.EmergencyNote + "_"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(c *cases.Case) map[string]any {
	ts := c.CompletedAt
	if ts.IsZero() {
		ts = c.CreatedAt
	}

	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("medtriage • case %s • %s", c.ID, ts.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func recordLevel(c *cases.Case) triage.Level {
	if c.Record == nil {
		return triage.LevelUnknown
	}
	return c.Record.Level
}

func recordSpecialty(c *cases.Case) triage.Specialty {
	if c.Record == nil {
		return triage.SpecialtyUnknown
	}
	return c.Record.Specialty
}

func levelEmoji(status cases.Status, level triage.Level) string {
	if status == cases.StatusFailed {
		return "\U0001f534" // red circle
	}
	switch level {
	case triage.LevelCritical:
		return "\U0001f534" // red circle
	case triage.LevelUrgent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

// dateModelRe matches model names ending with a YYYYMMDD date suffix.
var dateModelRe = regexp.MustCompile(`-\d{8}$`)

func shortModel(model string) string {
	return dateModelRe.ReplaceAllString(model, "")
}
