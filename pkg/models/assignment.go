package models

import (
	"time"

	"github.com/google/uuid"
)

// TagAssignment is the join row attaching a tag to a client. The
// (ClientID, TagID) pair is unique in storage.
//
// IsAutoAssigned distinguishes engine-created rows from human-created ones.
// The rule engine only ever deletes rows it created itself; manual rows are
// permanent as far as reconciliation is concerned.
type TagAssignment struct {
	ClientID       uuid.UUID `json:"client_id"`
	TagID          uuid.UUID `json:"tag_id"`
	IsAutoAssigned bool      `json:"is_auto_assigned"`
	CreatedAt      time.Time `json:"created_at"`
}
