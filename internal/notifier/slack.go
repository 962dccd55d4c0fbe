package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/jobsweep/internal/model"
)

// Ensure SlackNotifier implements model.Notifier.
var _ model.Notifier = (*SlackNotifier)(nil)

// maxListedErrors bounds the unit error lines in one message.
const maxListedErrors = 10

// SlackNotifier posts run summaries to a Slack channel via Incoming Webhooks.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackNotifier returns a notifier that posts each summary to Slack via webhook.
func NewSlackNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Notify sends the summary as a single Block Kit message. A 429 is retried
// once after the Retry-After delay.
func (s *SlackNotifier) Notify(ctx context.Context, sum model.RunSummary) error {
	body, err := json.Marshal(buildPayload(sum))
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	status, retryAfter, err := s.post(ctx, body)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("slack rate limited, retrying", "retry_after", retryAfter.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryAfter):
		}
		status, _, err = s.post(ctx, body)
		if err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("slack returned %d on retry", status)
		}
		s.logger.Info("slack summary sent", "run_id", sum.RunID, "retried", true)
		return nil
	}

	if status != http.StatusOK {
		return fmt.Errorf("slack returned %d", status)
	}
	s.logger.Info("slack summary sent", "run_id", sum.RunID)
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("creating slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
	if secs <= 0 {
		secs = 1
	}
	return resp.StatusCode, time.Duration(secs) * time.Second, nil
}

// Block Kit payload types.

type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendTestMessage sends a sample summary to verify the integration works.
func SendTestMessage(ctx context.Context, n model.Notifier) error {
	now := time.Now().UTC()
	return n.Notify(ctx, model.RunSummary{
		RunID:      uuid.NewString(),
		StartedAt:  now.Add(-3 * time.Minute),
		FinishedAt: now,
		Fetched:    42,
		Blocked:    map[model.BlockReason]int{model.BlockTitle: 17, model.BlockAgency: 2},
		Classified: 23,
		Upserted:   21,
		Touched:    2,
		UnitErrors: map[string]string{"test/integration": "sample error, integration verified"},
	})
}

func mrkdwn(label string, v any) slackText {
	return slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%v", label, v)}
}

func buildPayload(s model.RunSummary) slackPayload {
	icon := "✅"
	if len(s.UnitErrors) > 0 || s.UpsertAnomalies > 0 {
		icon = "⚠️"
	}

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: icon + " jobsweep run " + shortID(s.RunID)},
		},
		{
			Type: "section",
			Fields: []slackText{
				mrkdwn("Fetched", s.Fetched),
				mrkdwn("Blocked", blockedText(s.Blocked)),
				mrkdwn("Classified", fmt.Sprintf("%d (%d via fallback)", s.Classified, s.FallbackUsed)),
				mrkdwn("Enrichment failed", s.EnrichmentFailed),
				mrkdwn("Upserted", fmt.Sprintf("%d (%d touched)", s.Upserted, s.Touched)),
				mrkdwn("Upsert anomalies", s.UpsertAnomalies),
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				mrkdwn("Prefilter cut", fmt.Sprintf("%.0f%%", 100*s.PrefilterReduction())),
				mrkdwn("Skipped (resume)", len(s.SkippedResume)),
				mrkdwn("Skipped (budget)", len(s.SkippedBudget)),
				mrkdwn("Agency flagged", s.AgencyFlagged),
				mrkdwn("Unmapped skills", s.UnmappedSkills),
			},
		},
	}

	if len(s.UnitErrors) > 0 {
		var b strings.Builder
		b.WriteString("*Unit errors:*")
		keys := sortedKeys(s.UnitErrors)
		for i, unit := range keys {
			if i == maxListedErrors {
				fmt.Fprintf(&b, "\n…and %d more", len(keys)-maxListedErrors)
				break
			}
			fmt.Fprintf(&b, "\n• `%s` %s", unit, s.UnitErrors[unit])
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: b.String()},
		})
	}

	footer := "Started " + s.StartedAt.Format(time.RFC1123)
	if !s.FinishedAt.IsZero() {
		footer += " · took " + s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
	}
	if s.Capped {
		footer += " · item cap reached"
	}
	blocks = append(blocks,
		slackBlock{Type: "context", Elements: []slackText{{Type: "mrkdwn", Text: footer}}},
		slackBlock{Type: "divider"},
	)

	return slackPayload{Blocks: blocks}
}

func blockedText(m map[model.BlockReason]int) string {
	if len(m) == 0 {
		return "0"
	}
	total := 0
	parts := make([]string, 0, len(m))
	for reason, n := range m {
		total += n
		parts = append(parts, fmt.Sprintf("%s %d", reason, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%d (%s)", total, strings.Join(parts, ", "))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
