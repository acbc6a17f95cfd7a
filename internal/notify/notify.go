// Package notify publishes scan results, exit signals and alerts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"alphahunter/internal/config"
	"alphahunter/internal/models"
)

// Notifier is the reporting collaborator of the driver.
type Notifier interface {
	PublishCandidates(ctx context.Context, report models.ScanReport) error
	PublishExits(ctx context.Context, report *models.ExitReport) error
	Send(ctx context.Context, n Notification) error
}

// Notification is a free-form message such as a premarket gap alert.
type Notification struct {
	Type      NotificationType       `json:"type"`
	Symbol    string                 `json:"symbol,omitempty"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationCandidates NotificationType = "candidates"
	NotificationExit       NotificationType = "exit"
	NotificationAlert      NotificationType = "alert"
	NotificationError      NotificationType = "error"
	NotificationInfo       NotificationType = "info"
)

// New builds the configured notifier chain: log output, an optional webhook,
// all behind the alert cooldown.
func New(cfg config.NotificationConfig, cooldown time.Duration, logger zerolog.Logger) Notifier {
	if !cfg.Enabled {
		return NewMulti()
	}
	multi := NewMulti(NewLogNotifier(logger))
	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		multi.Add(NewWebhookNotifier(cfg.Webhook))
	}
	return NewCooldownGate(multi, cooldown)
}

// LogNotifier writes everything to the structured log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) PublishCandidates(_ context.Context, r models.ScanReport) error {
	if r.Sleep {
		l.logger.Warn().Str("scan_id", r.ID).Str("reason", r.SleepReason).Msg("Scan slept")
		return nil
	}
	for i, c := range r.Candidates {
		l.logger.Info().
			Str("scan_id", r.ID).
			Int("rank", i+1).
			Str("symbol", c.Symbol).
			Str("name", c.Name).
			Str("grade", string(c.Grade)).
			Float64("score", c.Score).
			Float64("price", c.Price).
			Int("quantity", c.Quantity).
			Msg("Candidate")
	}
	for _, c := range r.Traps {
		l.logger.Warn().Str("scan_id", r.ID).Str("symbol", c.Symbol).Float64("rps120", c.RPS120).Msg("Trap")
	}
	l.logger.Info().
		Str("scan_id", r.ID).
		Str("regime", r.Regime).
		Float64("breadth", r.Breadth).
		Int("candidates", len(r.Candidates)).
		Msg("Scan published")
	return nil
}

func (l *LogNotifier) PublishExits(_ context.Context, r *models.ExitReport) error {
	for _, sig := range r.Signals() {
		event := l.logger.Info()
		if sig.Authoritative {
			event = l.logger.Warn()
		}
		event.
			Str("symbol", sig.Symbol).
			Str("reason", string(sig.Reason)).
			Float64("price", sig.Price).
			Float64("pnl_pct", sig.PnLPct).
			Msg(sig.Message)
	}
	return nil
}

func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	event := l.logger.Info()
	if n.Type == NotificationAlert || n.Type == NotificationError {
		event = l.logger.Warn()
	}
	event.Str("type", string(n.Type)).Str("symbol", n.Symbol).Str("title", n.Title).Msg(n.Message)
	return nil
}

// WebhookNotifier posts JSON payloads to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *WebhookNotifier) PublishCandidates(ctx context.Context, r models.ScanReport) error {
	return w.post(ctx, NotificationCandidates, r)
}

func (w *WebhookNotifier) PublishExits(ctx context.Context, r *models.ExitReport) error {
	if r.Len() == 0 {
		return nil
	}
	return w.post(ctx, NotificationExit, struct {
		Date    time.Time           `json:"date"`
		Signals []models.ExitSignal `json:"signals"`
	}{r.Date, r.Signals()})
}

func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	return w.post(ctx, n.Type, n)
}

func (w *WebhookNotifier) post(ctx context.Context, kind NotificationType, data interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"type": kind,
		"data": data,
	})
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "alphahunter/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans out to every notifier. One failing notifier does not stop the
// others; their errors are joined.
type Multi struct {
	mu        sync.RWMutex
	notifiers []Notifier
}

func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Add appends a notifier.
func (m *Multi) Add(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

func (m *Multi) each(fn func(Notifier) error) error {
	m.mu.RLock()
	notifiers := m.notifiers
	m.mu.RUnlock()

	var errs []error
	for _, n := range notifiers {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (m *Multi) PublishCandidates(ctx context.Context, r models.ScanReport) error {
	return m.each(func(n Notifier) error { return n.PublishCandidates(ctx, r) })
}

func (m *Multi) PublishExits(ctx context.Context, r *models.ExitReport) error {
	return m.each(func(n Notifier) error { return n.PublishExits(ctx, r) })
}

func (m *Multi) Send(ctx context.Context, n Notification) error {
	return m.each(func(x Notifier) error { return x.Send(ctx, n) })
}
