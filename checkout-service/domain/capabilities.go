package domain

const (
	ProtocolVersion = "2026-01-30"

	HandlerCardTokenized = "card_tokenized"
	ExtensionDiscount    = "discount"
)

type PaymentHandlerConfig struct {
	MerchantID     string   `json:"merchant_id,omitempty"`
	AcceptedBrands []string `json:"accepted_brands,omitempty"`
	Supports3DS    bool     `json:"supports_3ds"`
}

type PaymentHandler struct {
	ID                      string                `json:"id"`
	Name                    string                `json:"name"`
	Version                 string                `json:"version"`
	Spec                    string                `json:"spec,omitempty"`
	RequiresDelegatePayment bool                  `json:"requires_delegate_payment"`
	RequiresPCICompliance   bool                  `json:"requires_pci_compliance"`
	PSP                     string                `json:"psp"`
	Config                  *PaymentHandlerConfig `json:"config,omitempty"`
}

type Payment struct {
	Handlers []PaymentHandler `json:"handlers"`
}

type Extension struct {
	Name    string   `json:"name"`
	Extends []string `json:"extends"`
}

type Capabilities struct {
	Payment    *Payment    `json:"payment,omitempty"`
	Extensions []Extension `json:"extensions,omitempty"`
}

// MerchantCapabilities is what a seller advertises on every session.
func MerchantCapabilities(merchantID string) Capabilities {
	return Capabilities{
		Payment: &Payment{
			Handlers: []PaymentHandler{{
				ID:                      HandlerCardTokenized,
				Name:                    "dev.acp.tokenized.card",
				Version:                 ProtocolVersion,
				Spec:                    "https://acp.dev/handlers/tokenized.card",
				RequiresDelegatePayment: true,
				RequiresPCICompliance:   false,
				PSP:                     "stripe",
				Config: &PaymentHandlerConfig{
					MerchantID:     merchantID,
					AcceptedBrands: []string{"visa", "mastercard", "amex", "discover"},
					Supports3DS:    true,
				},
			}},
		},
		Extensions: []Extension{{Name: ExtensionDiscount, Extends: []string{}}},
	}
}
