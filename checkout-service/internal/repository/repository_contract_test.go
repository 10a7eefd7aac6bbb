package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

func newSession(id string) *domain.CheckoutSession {
	return &domain.CheckoutSession{
		ID:       id,
		Status:   domain.CheckoutStatusNotReady,
		Currency: "usd",
		LineItems: []domain.LineItem{{
			ID: "li_1", Item: domain.Item{ID: "p1", Quantity: 2},
			BaseAmount: 2000, Subtotal: 2000, Tax: 160, Total: 2160,
		}},
		FulfillmentOptions: []domain.FulfillmentOption{},
		Totals: []domain.Total{
			{Type: domain.TotalTypeSubtotal, DisplayText: "Subtotal", Amount: 2000},
			{Type: domain.TotalTypeTotal, DisplayText: "Total", Amount: 2160},
		},
		Messages: []domain.Message{},
		Links:    []domain.Link{},
	}
}

func newOrder(sessionID string) *domain.OrderRecord {
	return &domain.OrderRecord{
		ID:                "order_" + sessionID,
		CheckoutSessionID: sessionID,
		PermalinkURL:      "https://merchant.example.com/orders/order_" + sessionID,
		PaymentToken:      "vt_mock_0011223344556677",
		PaymentProvider:   "stripe",
		TotalCents:        2160,
		Currency:          "usd",
		Status:            domain.OrderStatusConfirmed,
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
}

func completeMutation(t *testing.T, sessionID string) MutateFunc {
	return func(s *domain.CheckoutSession) (*Mutation, error) {
		o := newOrder(sessionID)
		events, err := domain.NewOrderEvents(o)
		require.NoError(t, err)
		s.Status = domain.CheckoutStatusCompleted
		s.Order = o.Public()
		return &Mutation{Order: o, Events: events}, nil
	}
}

func runRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_get")))

		got, err := repo.GetSession(ctx, "cs_get")
		require.NoError(t, err)
		assert.Equal(t, newSession("cs_get"), got)
	})

	t.Run("create duplicate", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_dup")))
		assert.ErrorIs(t, repo.CreateSession(ctx, newSession("cs_dup")), ErrSessionExists)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := repo.GetSession(ctx, "cs_missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)

		_, err = repo.UpdateSession(ctx, "cs_missing", func(*domain.CheckoutSession) (*Mutation, error) {
			t.Fatal("mutate called for a missing session")
			return nil, nil
		})
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("update persists", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_upd")))

		option := "ship_std"
		updated, err := repo.UpdateSession(ctx, "cs_upd", func(s *domain.CheckoutSession) (*Mutation, error) {
			s.FulfillmentOptionID = &option
			s.Status = domain.CheckoutStatusReady
			return nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.CheckoutStatusReady, updated.Status)

		got, err := repo.GetSession(ctx, "cs_upd")
		require.NoError(t, err)
		assert.Equal(t, updated, got)
	})

	t.Run("failed mutation changes nothing", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_fail")))

		boom := errors.New("declined")
		_, err := repo.UpdateSession(ctx, "cs_fail", func(s *domain.CheckoutSession) (*Mutation, error) {
			s.Status = domain.CheckoutStatusCanceled
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.GetSession(ctx, "cs_fail")
		require.NoError(t, err)
		assert.Equal(t, domain.CheckoutStatusNotReady, got.Status)
	})

	t.Run("complete writes order and events", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_done")))

		before, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)

		s, err := repo.UpdateSession(ctx, "cs_done", completeMutation(t, "cs_done"))
		require.NoError(t, err)
		assert.Equal(t, domain.CheckoutStatusCompleted, s.Status)
		require.NotNil(t, s.Order)

		o, err := repo.GetOrder(ctx, "order_cs_done")
		require.NoError(t, err)
		assert.Equal(t, int64(2160), o.TotalCents)
		assert.Equal(t, domain.OrderStatusConfirmed, o.Status)

		bySession, err := repo.GetOrderBySession(ctx, "cs_done")
		require.NoError(t, err)
		assert.Equal(t, o.ID, bySession.ID)

		after, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)
		require.Len(t, after, len(before)+2)
		created, confirmed := after[len(after)-2], after[len(after)-1]
		assert.Equal(t, domain.OrderEventCreated, created.EventType)
		assert.Equal(t, domain.OrderEventUpdated, confirmed.EventType)
		assert.Equal(t, "cs_done", created.AggregateID)
		assert.Less(t, created.ID, confirmed.ID)
		assert.JSONEq(t,
			`{"order_id":"order_cs_done","checkout_session_id":"cs_done","status":"created","total_cents":2160,"currency":"usd"}`,
			string(created.Payload))
	})

	t.Run("second order for a session is rejected", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_twice")))
		_, err := repo.UpdateSession(ctx, "cs_twice", completeMutation(t, "cs_twice"))
		require.NoError(t, err)

		before, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)

		_, err = repo.UpdateSession(ctx, "cs_twice", func(s *domain.CheckoutSession) (*Mutation, error) {
			o := newOrder("cs_twice")
			o.ID = "order_other"
			s.Messages = append(s.Messages, domain.Message{Type: "info", Content: "x", ContentType: "plain"})
			return &Mutation{Order: o, Events: []*domain.OrderEvent{{AggregateID: "cs_twice", EventType: domain.OrderEventCreated, Payload: []byte(`{}`)}}}, nil
		})
		assert.ErrorIs(t, err, ErrDuplicateOrder)

		after, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)
		assert.Len(t, after, len(before))

		got, err := repo.GetSession(ctx, "cs_twice")
		require.NoError(t, err)
		assert.Empty(t, got.Messages)
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := repo.GetOrder(ctx, "order_none")
		assert.ErrorIs(t, err, ErrOrderNotFound)
		_, err = repo.GetOrderBySession(ctx, "cs_get")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("outbox processing", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_outbox")))
		_, err := repo.UpdateSession(ctx, "cs_outbox", completeMutation(t, "cs_outbox"))
		require.NoError(t, err)

		limited, err := repo.GetUnprocessedEvents(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		events, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)
		for _, ev := range events {
			require.NoError(t, repo.MarkEventAsProcessed(ctx, ev.ID))
		}

		remaining, err := repo.GetUnprocessedEvents(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		assert.Error(t, repo.MarkEventAsProcessed(ctx, 999999))
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		require.NoError(t, repo.CreateSession(ctx, newSession("cs_race")))

		const workers = 20
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.UpdateSession(ctx, "cs_race", func(s *domain.CheckoutSession) (*Mutation, error) {
					s.Messages = append(s.Messages, domain.Message{
						Type: "info", ContentType: "plain", Content: fmt.Sprintf("update %d", i),
					})
					return nil, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.GetSession(ctx, "cs_race")
		require.NoError(t, err)
		assert.Len(t, got.Messages, workers)
	})
}
