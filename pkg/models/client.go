package models

import (
	"time"

	"github.com/google/uuid"
)

// Client status values.
const (
	ClientStatusLead     = "lead"
	ClientStatusProspect = "prospect"
	ClientStatusCustomer = "customer"
	ClientStatusArchived = "archived"
)

// ValidClientStatuses is the set of accepted client statuses.
var ValidClientStatuses = map[string]bool{
	ClientStatusLead:     true,
	ClientStatusProspect: true,
	ClientStatusCustomer: true,
	ClientStatusArchived: true,
}

// IsValidClientStatus reports whether status is one of the known values.
func IsValidClientStatus(status string) bool {
	return ValidClientStatuses[status]
}

// Client represents a tenant-owned business contact or company record.
// Its attributes are what tag conditions match against.
type Client struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
	Status    string    `json:"status"`
	Source    string    `json:"source,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	IsCompany bool      `json:"is_company"`
	TaxID     string    `json:"tax_id,omitempty"`
	OwnerID   uuid.UUID `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the client participates in rule evaluation.
// Archived clients are excluded from bulk walks.
func (c *Client) IsActive() bool {
	return c.Status != ClientStatusArchived
}
