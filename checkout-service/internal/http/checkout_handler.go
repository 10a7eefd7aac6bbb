package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/service"
	"github.com/shabazpatel/acp-infra/pkg/acphttp"
	"github.com/shabazpatel/acp-infra/pkg/audit"
	"github.com/shabazpatel/acp-infra/pkg/schema"
)

type CheckoutHandler struct {
	svc      *service.CheckoutService
	pipeline *acphttp.Pipeline
	timeout  time.Duration
}

func NewCheckoutHandler(svc *service.CheckoutService, pipeline *acphttp.Pipeline, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		svc:      svc,
		pipeline: pipeline,
		timeout:  timeout,
	}
}

// POST /checkout_sessions
func (h *CheckoutHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	req := &domain.CreateSessionRequest{}
	h.pipeline.Do(w, r, acphttp.Action{
		Route:      "POST:/checkout_sessions",
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionCheckoutCreate,
		Schema:     schema.CheckoutCreate,
		Request:    req,
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			sess, err := h.svc.CreateSession(ctx, req)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusCreated, sess, sess.ID, nil
		},
	})
}

// GET /checkout_sessions/{id}
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.pipeline.Do(w, r, acphttp.Action{
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionCheckoutGet,
		SessionID:  id,
		Input:      map[string]any{"checkout_session_id": id},
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			sess, err := h.svc.GetSession(ctx, id)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, sess, sess.ID, nil
		},
	})
}

// POST /checkout_sessions/{id}
func (h *CheckoutHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req := &domain.UpdateSessionRequest{}
	h.pipeline.Do(w, r, acphttp.Action{
		Route:      "POST:/checkout_sessions/" + id,
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionCheckoutUpdate,
		SessionID:  id,
		Schema:     schema.CheckoutUpdate,
		Request:    req,
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			sess, err := h.svc.UpdateSession(ctx, id, req)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, sess, sess.ID, nil
		},
	})
}

// POST /checkout_sessions/{id}/complete
func (h *CheckoutHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req := &domain.CompleteSessionRequest{}
	h.pipeline.Do(w, r, acphttp.Action{
		Route:      "POST:/checkout_sessions/" + id + "/complete",
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionCheckoutComplete,
		SessionID:  id,
		Schema:     schema.CheckoutComplete,
		Request:    req,
		Redact:     acphttp.RedactFields("payment_data.token"),
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			sess, err := h.svc.CompleteSession(ctx, id, req)
			if err != nil {
				return 0, nil, "", err
			}
			ref := sess.ID
			if sess.Order != nil {
				ref = sess.Order.ID
			}
			return http.StatusOK, sess, ref, nil
		},
	})
}

// POST /checkout_sessions/{id}/cancel
func (h *CheckoutHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.pipeline.Do(w, r, acphttp.Action{
		Route:      "POST:/checkout_sessions/" + id + "/cancel",
		Intent:     audit.IntentPurchase,
		ActionType: audit.ActionCheckoutCancel,
		SessionID:  id,
		Input:      map[string]any{"checkout_session_id": id},
		Exec: func(ctx context.Context) (int, any, string, error) {
			ctx, cancel := withTimeout(ctx, h.timeout)
			defer cancel()

			sess, err := h.svc.CancelSession(ctx, id)
			if err != nil {
				return 0, nil, "", err
			}
			return http.StatusOK, sess, sess.ID, nil
		},
	})
}
