package domain

type Address struct {
	Name       string  `json:"name"`
	LineOne    string  `json:"line_one"`
	LineTwo    *string `json:"line_two,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Country    string  `json:"country"`
	PostalCode string  `json:"postal_code"`
}

// PaymentMethodCard carries raw card credentials. Number and CVC must never
// be logged.
type PaymentMethodCard struct {
	Type                   string         `json:"type"`
	CardNumberType         string         `json:"card_number_type"`
	Number                 string         `json:"number"`
	ExpMonth               *string        `json:"exp_month,omitempty"`
	ExpYear                *string        `json:"exp_year,omitempty"`
	Name                   *string        `json:"name,omitempty"`
	CVC                    *string        `json:"cvc,omitempty"`
	ChecksPerformed        map[string]any `json:"checks_performed,omitempty"`
	IIN                    *string        `json:"iin,omitempty"`
	DisplayCardFundingType *string        `json:"display_card_funding_type,omitempty"`
	DisplayBrand           *string        `json:"display_brand,omitempty"`
	DisplayLast4           *string        `json:"display_last4,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
}

// Last4 returns the last four digits of the card number.
func (c *PaymentMethodCard) Last4() string {
	if len(c.Number) <= 4 {
		return c.Number
	}
	return c.Number[len(c.Number)-4:]
}

// Allowance limits what a vault token may be charged for.
type Allowance struct {
	Reason            string  `json:"reason"`
	MaxAmount         int64   `json:"max_amount"`
	Currency          string  `json:"currency"`
	CheckoutSessionID *string `json:"checkout_session_id,omitempty"`
	MerchantID        *string `json:"merchant_id,omitempty"`
	ExpiresAt         *string `json:"expires_at,omitempty"`
}

type RiskSignal struct {
	Type   string `json:"type"`
	Score  int64  `json:"score"`
	Action string `json:"action"`
}

type DelegatePaymentRequest struct {
	PaymentMethod  PaymentMethodCard `json:"payment_method"`
	Allowance      Allowance         `json:"allowance"`
	RiskSignals    []RiskSignal      `json:"risk_signals"`
	Metadata       map[string]any    `json:"metadata,omitempty"`
	BillingAddress *Address          `json:"billing_address,omitempty"`
}

// ApplyDefaults fills the optional fields so equivalent requests hash alike.
func (r *DelegatePaymentRequest) ApplyDefaults() {
	if r.PaymentMethod.Type == "" {
		r.PaymentMethod.Type = "card"
	}
	if r.PaymentMethod.CardNumberType == "" {
		r.PaymentMethod.CardNumberType = "network_token"
	}
	if r.Allowance.Reason == "" {
		r.Allowance.Reason = "one_time"
	}
	if r.Allowance.Currency == "" {
		r.Allowance.Currency = "usd"
	}
	for i := range r.RiskSignals {
		if r.RiskSignals[i].Action == "" {
			r.RiskSignals[i].Action = "authorized"
		}
	}
}

type DelegatePaymentResponse struct {
	ID       string         `json:"id"`
	Created  string         `json:"created"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
