package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseClientID extracts and validates the client ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: cid
func ParseClientID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "cid", "invalid_client_id", "Invalid client ID format", logger)
}

// ParseTagID extracts and validates the tag ID from the request path.
// Expects path parameter: tid
func ParseTagID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "tid", "invalid_tag_id", "Invalid tag ID format", logger)
}

// ParseOfferID extracts and validates the offer ID from the request path.
// Expects path parameter: oid
func ParseOfferID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "oid", "invalid_offer_id", "Invalid offer ID format", logger)
}

// ParseNotificationID extracts and validates the notification ID from the
// request path.
// Expects path parameter: nid
func ParseNotificationID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "nid", "invalid_notification_id", "Invalid notification ID format", logger)
}

// ParseClientAndTagIDs extracts and validates both client and tag IDs.
// Expects path parameters: cid, tid
func ParseClientAndTagIDs(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, uuid.UUID, bool) {
	clientID, ok := ParseClientID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	tagID, ok := ParseTagID(w, r, logger)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return clientID, tagID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
