// Package payment authorizes the charge for a completed checkout session
// against the delegated payment token the agent supplied.
package payment

import (
	"context"
	"errors"

	"github.com/shabazpatel/acp-infra/pkg/ids"
)

// DeclineToken is always refused. Agents use it to exercise the decline path.
const DeclineToken = "decline_token"

var ErrDeclined = errors.New("payment declined")

type Request struct {
	SessionID string
	Token     string
	Provider  string
	Amount    int64
	Currency  string
}

type Authorization struct {
	Reference string
}

type Authorizer interface {
	Authorize(ctx context.Context, req Request) (*Authorization, error)
}

// MockAuthorizer approves every token except DeclineToken.
type MockAuthorizer struct{}

func (MockAuthorizer) Authorize(ctx context.Context, req Request) (*Authorization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Token == DeclineToken {
		return nil, ErrDeclined
	}
	return &Authorization{Reference: ids.New("auth_", 12)}, nil
}
