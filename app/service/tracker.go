package service

import (
	"strings"
	"time"

	"github.com/stablepay-io/ms-go-notify/app/chain"
	"github.com/stablepay-io/ms-go-notify/app/entity"
)

const (
	FailureReasonTimeout           = "timeout"
	FailureReasonTokenRevoked      = "token_revoked"
	FailureReasonAmountMismatch    = "amount_mismatch"
	FailureReasonRecipientMismatch = "recipient_mismatch"
	FailureReasonCurrencyMismatch  = "currency_mismatch"
)

// Transition is the outcome of evaluating a pending payment against fresh
// chain data. The caller applies it together with the matching event in one
// transaction.
type Transition struct {
	NewStatus     string
	TxHash        *string
	BlockNumber   *uint64
	ConfirmedAt   *time.Time
	FailureReason *string
}

type TrackerPolicy struct {
	RequiredConfirmations int64
	MonitoringTimeout     time.Duration
}

// EvaluatePayment decides whether a payment leaves PENDING. It is pure: no
// I/O, no clock reads, no side effects.
//
// Rules, in order: a terminal payment never transitions again; an observed
// transfer must match currency, recipient, and amount exactly (integer
// comparison, zero tolerance) or the payment fails with the mismatch reason;
// a matching transfer confirms once it has enough confirmations; otherwise
// the payment fails with "timeout" when the monitoring window has elapsed.
func EvaluatePayment(payment *entity.Payment, obs *chain.Observation, now time.Time, policy TrackerPolicy) *Transition {
	if payment.Terminal() {
		return nil
	}

	if obs != nil {
		if obs.Currency != payment.Currency {
			return failTransition(obs, FailureReasonCurrencyMismatch)
		}
		// Hex addresses are compared case-insensitively: checksum casing
		// varies between sources for the same address.
		if !strings.EqualFold(obs.Recipient, payment.RecipientAddress) {
			return failTransition(obs, FailureReasonRecipientMismatch)
		}
		if obs.AmountUnits != payment.AmountUnits {
			return failTransition(obs, FailureReasonAmountMismatch)
		}

		if obs.Confirmations >= policy.RequiredConfirmations {
			txHash := obs.TxHash
			blockNumber := obs.BlockNumber
			confirmedAt := now
			return &Transition{
				NewStatus:   entity.PaymentStatusConfirmed,
				TxHash:      &txHash,
				BlockNumber: &blockNumber,
				ConfirmedAt: &confirmedAt,
			}
		}
	}

	if policy.MonitoringTimeout > 0 && now.Sub(payment.MonitoringStartedAt) >= policy.MonitoringTimeout {
		reason := FailureReasonTimeout
		transition := &Transition{
			NewStatus:     entity.PaymentStatusFailed,
			FailureReason: &reason,
		}
		if obs != nil {
			txHash := obs.TxHash
			blockNumber := obs.BlockNumber
			transition.TxHash = &txHash
			transition.BlockNumber = &blockNumber
		}
		return transition
	}

	return nil
}

func failTransition(obs *chain.Observation, reason string) *Transition {
	txHash := obs.TxHash
	blockNumber := obs.BlockNumber
	return &Transition{
		NewStatus:     entity.PaymentStatusFailed,
		TxHash:        &txHash,
		BlockNumber:   &blockNumber,
		FailureReason: &reason,
	}
}

func (t *Transition) eventType() string {
	if t.NewStatus == entity.PaymentStatusConfirmed {
		return entity.EventTypePaymentCompleted
	}
	return entity.EventTypePaymentFailed
}
