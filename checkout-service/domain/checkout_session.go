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

type Buyer struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

type Item struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

// LineItem amounts are in minor units.
type LineItem struct {
	ID         string `json:"id"`
	Item       Item   `json:"item"`
	BaseAmount int64  `json:"base_amount"`
	Discount   int64  `json:"discount"`
	Subtotal   int64  `json:"subtotal"`
	Tax        int64  `json:"tax"`
	Total      int64  `json:"total"`
}

type TotalType string

const (
	TotalTypeItemsBaseAmount TotalType = "items_base_amount"
	TotalTypeSubtotal        TotalType = "subtotal"
	TotalTypeTax             TotalType = "tax"
	TotalTypeFulfillment     TotalType = "fulfillment"
	TotalTypeDiscount        TotalType = "discount"
	TotalTypeTotal           TotalType = "total"
)

type Total struct {
	Type        TotalType `json:"type"`
	DisplayText string    `json:"display_text"`
	Amount      int64     `json:"amount"`
}

type FulfillmentOption struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Carrier  string `json:"carrier,omitempty"`
	Subtotal int64  `json:"subtotal"`
	Tax      int64  `json:"tax"`
	Total    int64  `json:"total"`
}

type PaymentProvider struct {
	Provider                string   `json:"provider"`
	SupportedPaymentMethods []string `json:"supported_payment_methods"`
}

type Message struct {
	Type        string `json:"type"`
	Code        string `json:"code,omitempty"`
	Path        string `json:"path,omitempty"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

type Link struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type Coupon struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PercentOff *float64 `json:"percent_off,omitempty"`
	AmountOff  *int64   `json:"amount_off,omitempty"`
	Currency   string   `json:"currency,omitempty"`
}

type DiscountAllocation struct {
	Path   string `json:"path"`
	Amount int64  `json:"amount"`
}

type AppliedDiscount struct {
	ID          string               `json:"id"`
	Code        string               `json:"code,omitempty"`
	Coupon      *Coupon              `json:"coupon,omitempty"`
	Amount      int64                `json:"amount"`
	Automatic   bool                 `json:"automatic"`
	Allocations []DiscountAllocation `json:"allocations"`
}

type RejectedDiscount struct {
	Code    string `json:"code"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type Discounts struct {
	Codes    []string           `json:"codes"`
	Applied  []AppliedDiscount  `json:"applied"`
	Rejected []RejectedDiscount `json:"rejected"`
}

// Order is the public part of an order embedded in a completed session.
type Order struct {
	ID                string `json:"id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	PermalinkURL      string `json:"permalink_url,omitempty"`
}

type CheckoutSession struct {
	ID                  string              `json:"id"`
	Buyer               *Buyer              `json:"buyer,omitempty"`
	PaymentProvider     PaymentProvider     `json:"payment_provider"`
	Capabilities        Capabilities        `json:"capabilities"`
	Status              CheckoutStatus      `json:"status"`
	Currency            string              `json:"currency"`
	LineItems           []LineItem          `json:"line_items"`
	FulfillmentAddress  *Address            `json:"fulfillment_address,omitempty"`
	FulfillmentOptions  []FulfillmentOption `json:"fulfillment_options"`
	FulfillmentOptionID *string             `json:"fulfillment_option_id,omitempty"`
	Totals              []Total             `json:"totals"`
	Messages            []Message           `json:"messages"`
	Links               []Link              `json:"links"`
	Discounts           *Discounts          `json:"discounts,omitempty"`
	Order               *Order              `json:"order,omitempty"`
}

// GrandTotal returns the amount of the "total" entry.
func (s *CheckoutSession) GrandTotal() int64 {
	for _, t := range s.Totals {
		if t.Type == TotalTypeTotal {
			return t.Amount
		}
	}
	return 0
}

// Items returns the requested items in line order.
func (s *CheckoutSession) Items() []Item {
	items := make([]Item, 0, len(s.LineItems))
	for _, li := range s.LineItems {
		items = append(items, li.Item)
	}
	return items
}

// DiscountCodes returns the codes the buyer asked for.
func (s *CheckoutSession) DiscountCodes() []string {
	if s.Discounts == nil {
		return nil
	}
	return s.Discounts.Codes
}
