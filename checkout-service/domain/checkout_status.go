package domain

type CheckoutStatus string

const (
	CheckoutStatusNotReady  CheckoutStatus = "not_ready_for_payment"
	CheckoutStatusReady     CheckoutStatus = "ready_for_payment"
	CheckoutStatusCompleted CheckoutStatus = "completed"
	CheckoutStatusCanceled  CheckoutStatus = "canceled"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusCanceled
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

// StatusFor derives the non-terminal status from what the session holds.
func StatusFor(hasAddress, hasOption bool) CheckoutStatus {
	if hasAddress && hasOption {
		return CheckoutStatusReady
	}
	return CheckoutStatusNotReady
}
