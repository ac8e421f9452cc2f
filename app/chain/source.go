package chain

import (
	"context"
	"errors"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

var ErrUnsupportedCurrency = errors.New("currency has no configured token contract")

// Observation is a fresh on-chain view of a transfer toward a payment's
// recipient. Only the fields the state tracker compares are carried; the
// tracker decides whether the observation confirms or fails the payment.
type Observation struct {
	TxHash        string
	BlockNumber   uint64
	Confirmations int64
	AmountUnits   int64
	Recipient     string
	Currency      string
}

// Source observes the settlement chain for a payment. Observe returns nil
// when no candidate transfer is visible yet.
type Source interface {
	Observe(ctx context.Context, payment *entity.Payment) (*Observation, error)
}
