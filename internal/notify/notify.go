package notify

import (
	"context"
	"time"

	"options-signal-engine/internal/api"
	"options-signal-engine/internal/logger"
)

// Webhook posts events to a configured URL. Delivery is best effort: the
// post runs on its own goroutine with a detached context, and failures are
// logged, never surfaced.
type Webhook struct {
	client *api.Client
	url    string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: api.NewClient(api.WithTimeout(5*time.Second), api.WithLogging(false)),
		url:    url,
	}
}

func (w *Webhook) Notify(ctx context.Context, event string, payload any) {
	if w.url == "" {
		return
	}
	body := map[string]any{
		"event":   event,
		"payload": payload,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		resp, err := w.client.POST(pctx, w.url, body)
		if err != nil {
			logger.Warn(pctx, "webhook delivery failed", "event", event, "error", err.Error())
			return
		}
		if resp.StatusCode >= 300 {
			logger.Warn(pctx, "webhook rejected", "event", event, "status", resp.StatusCode)
		}
	}()
}

// Noop satisfies the notifier when no webhook is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, event string, payload any) {}
