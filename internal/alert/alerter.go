package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emperorhan/xrpl-insights/internal/metrics"
	"github.com/go-resty/resty/v2"
)

// AlertType categorizes the kind of alert.
type AlertType string

const (
	AlertTypeUnhealthy       AlertType = "UNHEALTHY"
	AlertTypeRecovery        AlertType = "RECOVERY"
	AlertTypeEndpointsDown   AlertType = "ENDPOINTS_DOWN"
	AlertTypeEndpointsUp     AlertType = "ENDPOINTS_RESTORED"
	AlertTypeNoValidatedData AlertType = "NO_VALIDATED_LEDGER"
)

const sendTimeout = 10 * time.Second

// Alert represents a single alert event.
type Alert struct {
	Type    AlertType
	Network string
	Title   string
	Message string
	Fields  map[string]string
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans out alerts to multiple channels. An alert of the same
// type and network is sent at most once per cooldown.
type MultiAlerter struct {
	alerters []Alerter
	cooldown time.Duration
	logger   *slog.Logger
	nowFn    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMultiAlerter(cooldown time.Duration, logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiAlerter{
		alerters: alerters,
		cooldown: cooldown,
		logger:   logger.With("component", "alerter"),
		nowFn:    time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Len returns the number of configured channels.
func (m *MultiAlerter) Len() int {
	return len(m.alerters)
}

func cooldownKey(a Alert) string {
	return fmt.Sprintf("%s:%s", a.Type, a.Network)
}

// Send dispatches alert to all channels, respecting cooldown. It returns the
// first channel error; the remaining channels are still attempted.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	key := cooldownKey(alert)
	now := m.nowFn()

	m.mu.Lock()
	if last, ok := m.lastSent[key]; ok && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("alert suppressed by cooldown", "key", key)
		for _, a := range m.alerters {
			metrics.AlertsCooldownSkipped.WithLabelValues(alerterName(a), string(alert.Type)).Inc()
		}
		return nil
	}
	m.lastSent[key] = now
	m.mu.Unlock()

	var firstErr error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Warn("alert send failed",
				"channel", alerterName(a),
				"type", alert.Type,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(alerterName(a), string(alert.Type)).Inc()
	}
	return firstErr
}

func alerterName(a Alerter) string {
	switch a.(type) {
	case *SlackAlerter:
		return "slack"
	case *WebhookAlerter:
		return "webhook"
	default:
		return "unknown"
	}
}

func newHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(sendTimeout).
		SetHeader("Content-Type", "application/json")
}

func post(ctx context.Context, client *resty.Client, url, channel string, payload any) error {
	resp, err := client.R().SetContext(ctx).SetBody(payload).Post(url)
	if err != nil {
		return fmt.Errorf("send %s alert: %w", channel, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s returned status %d", channel, resp.StatusCode())
	}
	return nil
}

// SlackAlerter sends alerts to a Slack incoming webhook.
type SlackAlerter struct {
	webhookURL string
	client     *resty.Client
}

func NewSlackAlerter(webhookURL string) *SlackAlerter {
	return &SlackAlerter{webhookURL: webhookURL, client: newHTTPClient()}
}

func (s *SlackAlerter) Send(ctx context.Context, alert Alert) error {
	return post(ctx, s.client, s.webhookURL, "slack", map[string]string{"text": slackText(alert)})
}

func slackText(alert Alert) string {
	emoji := ":warning:"
	switch alert.Type {
	case AlertTypeRecovery, AlertTypeEndpointsUp:
		emoji = ":white_check_mark:"
	case AlertTypeEndpointsDown:
		emoji = ":rotating_light:"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *[%s]* xrpl/%s: %s\n%s", emoji, alert.Type, alert.Network, alert.Title, alert.Message)

	if len(alert.Fields) > 0 {
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- *%s*: %s\n", k, alert.Fields[k])
		}
	}
	return b.String()
}

// WebhookAlerter sends alerts to a generic HTTP webhook.
type WebhookAlerter struct {
	url    string
	client *resty.Client
	nowFn  func() time.Time
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{url: url, client: newHTTPClient(), nowFn: time.Now}
}

func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"type":    string(alert.Type),
		"service": "xrpl-insights",
		"network": alert.Network,
		"title":   alert.Title,
		"message": alert.Message,
		"fields":  alert.Fields,
		"time":    w.nowFn().UTC().Format(time.RFC3339),
	}
	return post(ctx, w.client, w.url, "webhook", payload)
}

// NoopAlerter does nothing. Used when no alert channels are configured.
type NoopAlerter struct{}

func (n *NoopAlerter) Send(_ context.Context, _ Alert) error { return nil }
