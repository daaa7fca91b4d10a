package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Offer status values.
const (
	OfferStatusDraft    = "draft"
	OfferStatusSent     = "sent"
	OfferStatusAccepted = "accepted"
	OfferStatusRejected = "rejected"
)

// offerTransitions maps each status to the statuses it may move to.
var offerTransitions = map[string][]string{
	OfferStatusDraft:    {OfferStatusSent},
	OfferStatusSent:     {OfferStatusAccepted, OfferStatusRejected},
	OfferStatusAccepted: {},
	OfferStatusRejected: {},
}

// CanTransitionOffer reports whether an offer may move from one status to
// another. Accepted and rejected are terminal.
func CanTransitionOffer(from, to string) bool {
	for _, next := range offerTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Offer is a commercial offer issued to a client.
type Offer struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	ClientID    uuid.UUID       `json:"client_id"`
	Title       string          `json:"title"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	ValidUntil  *time.Time      `json:"valid_until,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
