package entity

import "time"

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusConfirmed = "CONFIRMED"
	PaymentStatusFailed    = "FAILED"
)

const (
	CurrencyUSDC = "USDC"
	CurrencyUSDT = "USDT"
)

type Payment struct {
	ID uint64

	ProjectID uint64
	TokenID   *uint64

	// AmountUnits is the amount in the token's smallest unit (6 decimals
	// for USDC/USDT). Compared as an integer, never as a float.
	AmountUnits int64
	Currency    string

	RecipientAddress string

	TxHash      *string
	BlockNumber *uint64

	Status        string
	FailureReason *string

	SessionID      string
	IdempotencyKey *string

	Metadata map[string]string

	MonitoringStartedAt time.Time
	ConfirmedAt         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Terminal reports whether the payment reached a final settlement state.
// Terminal payments are never transitioned again.
func (p *Payment) Terminal() bool {
	return p.Status == PaymentStatusConfirmed || p.Status == PaymentStatusFailed
}
