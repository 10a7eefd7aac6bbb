package domain

const DefaultCurrency = "usd"

type DiscountsRequest struct {
	Codes []string `json:"codes"`
}

type CreateSessionRequest struct {
	Buyer              *Buyer            `json:"buyer,omitempty"`
	Items              []Item            `json:"items"`
	FulfillmentAddress *Address          `json:"fulfillment_address,omitempty"`
	Discounts          *DiscountsRequest `json:"discounts,omitempty"`
}

// ApplyDefaults drops an empty discount block so it hashes like an absent one.
func (r *CreateSessionRequest) ApplyDefaults() {
	if r.Discounts != nil && len(r.Discounts.Codes) == 0 {
		r.Discounts = nil
	}
}

type UpdateSessionRequest struct {
	Buyer               *Buyer            `json:"buyer,omitempty"`
	Items               []Item            `json:"items,omitempty"`
	FulfillmentAddress  *Address          `json:"fulfillment_address,omitempty"`
	FulfillmentOptionID *string           `json:"fulfillment_option_id,omitempty"`
	Discounts           *DiscountsRequest `json:"discounts,omitempty"`
}

type PaymentData struct {
	Token          string   `json:"token"`
	Provider       string   `json:"provider"`
	HandlerID      *string  `json:"handler_id,omitempty"`
	BillingAddress *Address `json:"billing_address,omitempty"`
}

type CompleteSessionRequest struct {
	Buyer       *Buyer      `json:"buyer,omitempty"`
	PaymentData PaymentData `json:"payment_data"`
}

func (r *CompleteSessionRequest) ApplyDefaults() {
	if r.PaymentData.Provider == "" {
		r.PaymentData.Provider = "stripe"
	}
}

type CompareProductsRequest struct {
	ProductIDs []string `json:"product_ids"`
}

type PurchaseSimulateRequest struct {
	ProductID  string  `json:"product_id"`
	Quantity   int64   `json:"quantity"`
	BuyerEmail *string `json:"buyer_email,omitempty"`
}

func (r *PurchaseSimulateRequest) ApplyDefaults() {
	if r.Quantity == 0 {
		r.Quantity = 1
	}
}

type PurchaseSimulateResponse struct {
	SimulationID string `json:"simulation_id"`
	ProductID    string `json:"product_id"`
	Quantity     int64  `json:"quantity"`
	Currency     string `json:"currency"`
	Subtotal     int64  `json:"subtotal"`
	Tax          int64  `json:"tax"`
	Total        int64  `json:"total"`
}
