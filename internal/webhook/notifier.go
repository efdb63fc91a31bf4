// Package webhook delivers fire-and-forget notifications for notable
// events. Delivery runs on its own goroutine with a bounded timeout;
// failures are logged and never affect the ledger result.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/meridianbank/core/internal/interfaces"
)

type Config struct {
	Enabled bool
	URL     string
	APIKey  string
	Timeout time.Duration
}

type Notifier struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func NewNotifier(cfg Config, log *zap.Logger) *Notifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

func (n *Notifier) Notify(eventType string, payload map[string]any) {
	if !n.cfg.Enabled {
		return
	}
	if n.cfg.URL == "" {
		n.log.Warn("webhook enabled but no URL configured, skipping event", zap.String("event_type", eventType))
		return
	}
	go n.deliver(eventType, payload)
}

func (n *Notifier) deliver(eventType string, payload map[string]any) {
	envelope := map[string]any{
		"eventType":  eventType,
		"occurredAt": time.Now().UTC().Format(time.RFC3339),
		"payload":    payload,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		n.log.Warn("webhook payload marshal failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("webhook request build failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", n.cfg.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("webhook call failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.log.Warn("webhook call rejected",
			zap.String("event_type", eventType),
			zap.Int("status", resp.StatusCode))
	}
}

var _ interfaces.Notifier = (*Notifier)(nil)
