// Package publisher delivers order events to the outside world: a signed
// webhook fired right after checkout completion, and a Kafka relay of the
// transactional outbox.
package publisher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/pkg/auth"
	"github.com/shabazpatel/acp-infra/pkg/canonical"
	"github.com/shabazpatel/acp-infra/pkg/circuitbreaker"
)

const (
	HeaderWebhookSignature = "X-Webhook-Signature"

	defaultWebhookTimeout = 10 * time.Second
)

type webhookBody struct {
	Type    domain.OrderEventType `json:"type"`
	Payload any                   `json:"payload"`
}

type Webhook struct {
	url     string
	secret  []byte
	client  *http.Client
	breaker *circuitbreaker.Breaker[struct{}]
}

func NewWebhook(url, secret string, timeout time.Duration, log *slog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[struct{}](circuitbreaker.DefaultSettings("order-webhook"), log),
	}
}

// Encode returns the canonical body for ev. The signature covers exactly
// these bytes.
func Encode(ev *domain.OrderEvent) ([]byte, error) {
	return canonical.Marshal(webhookBody{Type: ev.EventType, Payload: ev.Payload})
}

func (w *Webhook) Send(ctx context.Context, ev *domain.OrderEvent) error {
	body, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("encode webhook body: %w", err)
	}

	_, err = w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	})
	return err
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(HeaderWebhookSignature, auth.Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

type Sender interface {
	Send(ctx context.Context, ev *domain.OrderEvent) error
}

// Notifier sends order events in the background, one goroutine per
// completed checkout so created always precedes confirmed. Failures are
// logged and dropped.
type Notifier struct {
	sender Sender
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewNotifier(sender Sender, log *slog.Logger) *Notifier {
	return &Notifier{sender: sender, log: log}
}

func (n *Notifier) Notify(ctx context.Context, events []*domain.OrderEvent) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for _, ev := range events {
			if err := n.sender.Send(ctx, ev); err != nil {
				n.log.WarnContext(ctx, "failed to emit order webhook",
					slog.String("event_type", string(ev.EventType)),
					slog.String("checkout_session_id", ev.AggregateID),
					slog.String("error", err.Error()))
			}
		}
	}()
}

// Wait blocks until every pending delivery finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
