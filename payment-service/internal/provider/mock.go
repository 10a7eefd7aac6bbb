package provider

import (
	"context"
	"sync"
	"time"

	"github.com/shabazpatel/acp-infra/payment-service/domain"
	"github.com/shabazpatel/acp-infra/pkg/ids"
)

const MockTokenPrefix = "vt_mock_"

// MockProvider mints random vault tokens and keeps them in memory.
type MockProvider struct {
	mu    sync.RWMutex
	vault map[string]*VaultEntry
	now   func() time.Time
}

type MockOption func(*MockProvider)

// WithClock overrides the time source used for the created timestamp.
func WithClock(now func() time.Time) MockOption {
	return func(m *MockProvider) { m.now = now }
}

func NewMockProvider(opts ...MockOption) *MockProvider {
	m := &MockProvider{
		vault: make(map[string]*VaultEntry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Tokenize(_ context.Context, req *domain.DelegatePaymentRequest) (*domain.DelegatePaymentResponse, error) {
	token := ids.New(MockTokenPrefix, 16)
	created := m.now().UTC().Format(time.RFC3339)

	m.mu.Lock()
	m.vault[token] = &VaultEntry{
		Token:     token,
		Allowance: req.Allowance,
		Created:   created,
		Last4:     req.PaymentMethod.Last4(),
	}
	m.mu.Unlock()

	return &domain.DelegatePaymentResponse{
		ID:      token,
		Created: created,
		Metadata: withMetadata(map[string]any{
			"source": "mock_delegate_payment",
		}, req.Metadata),
	}, nil
}

func (m *MockProvider) Lookup(token string) (*VaultEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.vault[token]
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}
