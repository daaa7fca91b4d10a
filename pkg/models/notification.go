package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification kinds.
const (
	NotificationOfferAccepted = "offer_accepted"
	NotificationOfferRejected = "offer_rejected"
	NotificationSystem        = "system"
)

// Notification is a tenant-scoped message shown to platform users and
// optionally forwarded over email.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  uuid.UUID  `json:"tenant_id"`
	Kind      string     `json:"kind"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsRead reports whether the notification has been acknowledged.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
