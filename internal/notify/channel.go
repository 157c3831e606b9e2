// Package notify delivers accepted alerts to external channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avernost/depwatch/internal/alert"
)

// Channel is one notification destination.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, a alert.Alert) error
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// SlackChannel posts alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel creates a Slack channel for the given webhook URL.
func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Deliver(ctx context.Context, a alert.Alert) error {
	emoji := ":warning:"
	if a.Severity == alert.SeverityCritical {
		emoji = ":rotating_light:"
	}
	payload := map[string]string{
		"text": fmt.Sprintf("%s *[%s]* %s: %s", emoji, a.Severity, a.ServiceName, a.Message),
	}
	return postJSON(ctx, c.client, c.webhookURL, payload)
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// PagerDutyChannel triggers incidents via the PagerDuty Events API v2.
type PagerDutyChannel struct {
	routingKey string
	eventsURL  string
	client     *http.Client
}

// NewPagerDutyChannel creates a PagerDuty channel for the given routing key.
func NewPagerDutyChannel(routingKey string) *PagerDutyChannel {
	return &PagerDutyChannel{
		routingKey: routingKey,
		eventsURL:  pagerDutyEventsURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *PagerDutyChannel) Name() string { return "pagerduty" }

func (c *PagerDutyChannel) Deliver(ctx context.Context, a alert.Alert) error {
	payload := map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    a.DedupKey(),
		"payload": map[string]any{
			"summary":   a.Message,
			"source":    a.ServiceName,
			"severity":  string(a.Severity),
			"timestamp": a.CreatedAt.UTC().Format(time.RFC3339),
			"custom_details": map[string]any{
				"kind":  string(a.Kind),
				"value": a.Value,
			},
		},
	}
	return postJSON(ctx, c.client, c.eventsURL, payload)
}
