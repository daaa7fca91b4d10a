package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/auth"
	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/services"
)

// OfferRequest is the request body for creating an offer.
type OfferRequest struct {
	ClientID    string     `json:"client_id"`
	Title       string     `json:"title"`
	TotalAmount string     `json:"total_amount"`
	Currency    string     `json:"currency,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

// OffersHandler handles offer HTTP requests.
type OffersHandler struct {
	offerService services.OfferService
	logger       *zap.Logger
}

// NewOffersHandler creates a new offers handler.
func NewOffersHandler(offerService services.OfferService, logger *zap.Logger) *OffersHandler {
	return &OffersHandler{
		offerService: offerService,
		logger:       logger,
	}
}

// RegisterRoutes registers the offers handler's routes on the given mux.
func (h *OffersHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/offers",
		authMiddleware.RequireAuth(tenantMiddleware(h.Create)))
	mux.HandleFunc("GET /api/offers/{oid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("DELETE /api/offers/{oid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Delete)))
	mux.HandleFunc("GET /api/clients/{cid}/offers",
		authMiddleware.RequireAuth(tenantMiddleware(h.ListByClient)))

	mux.HandleFunc("POST /api/offers/{oid}/send",
		authMiddleware.RequireAuth(tenantMiddleware(h.Send)))
	mux.HandleFunc("POST /api/offers/{oid}/accept",
		authMiddleware.RequireAuth(tenantMiddleware(h.Accept)))
	mux.HandleFunc("POST /api/offers/{oid}/reject",
		authMiddleware.RequireAuth(tenantMiddleware(h.Reject)))
}

// Create handles POST /api/offers
func (h *OffersHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	var req OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "invalid_request", "Invalid request body")
		return
	}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		h.badRequest(w, "invalid_client_id", "Invalid client ID format")
		return
	}

	amount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		h.badRequest(w, "invalid_amount", "Invalid total amount")
		return
	}

	offer, err := h.offerService.Create(r.Context(), &models.Offer{
		TenantID:    tenantID,
		ClientID:    clientID,
		Title:       req.Title,
		TotalAmount: amount,
		Currency:    req.Currency,
		ValidUntil:  req.ValidUntil,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Client not found")
			return
		}
		h.logger.Error("Failed to create offer", zap.Error(err))
		h.badRequest(w, "create_failed", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusCreated, offer); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/offers/{oid}
func (h *OffersHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	offerID, ok := ParseOfferID(w, r, h.logger)
	if !ok {
		return
	}

	offer, err := h.offerService.Get(r.Context(), tenantID, offerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Offer not found")
			return
		}
		h.logger.Error("Failed to get offer",
			zap.String("offer_id", offerID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to get offer")
		return
	}

	if err := WriteJSON(w, http.StatusOK, offer); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListByClient handles GET /api/clients/{cid}/offers
func (h *OffersHandler) ListByClient(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	clientID, ok := ParseClientID(w, r, h.logger)
	if !ok {
		return
	}

	offers, err := h.offerService.ListByClient(r.Context(), tenantID, clientID)
	if err != nil {
		h.logger.Error("Failed to list offers",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to list offers")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"offers": offers}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Send handles POST /api/offers/{oid}/send
func (h *OffersHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "send", h.offerService.Send)
}

// Accept handles POST /api/offers/{oid}/accept
func (h *OffersHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "accept", h.offerService.Accept)
}

// Reject handles POST /api/offers/{oid}/reject
func (h *OffersHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reject", h.offerService.Reject)
}

// Delete handles DELETE /api/offers/{oid}
func (h *OffersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	offerID, ok := ParseOfferID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.offerService.Delete(r.Context(), tenantID, offerID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Offer not found")
			return
		}
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			h.badRequest(w, "invalid_transition", err.Error())
			return
		}
		h.logger.Error("Failed to delete offer",
			zap.String("offer_id", offerID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to delete offer")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *OffersHandler) transition(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, tenantID, offerID uuid.UUID) (*models.Offer, error)) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	offerID, ok := ParseOfferID(w, r, h.logger)
	if !ok {
		return
	}

	offer, err := fn(r.Context(), tenantID, offerID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Offer not found")
			return
		}
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			h.badRequest(w, "invalid_transition", err.Error())
			return
		}
		h.logger.Error("Failed to transition offer",
			zap.String("offer_id", offerID.String()),
			zap.String("action", action),
			zap.Error(err))
		h.internalError(w, "Failed to update offer")
		return
	}

	if err := WriteJSON(w, http.StatusOK, offer); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *OffersHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := auth.TenantIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "missing_tenant", "Tenant ID required in token"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return tenantID, true
}

func (h *OffersHandler) badRequest(w http.ResponseWriter, code, message string) {
	if err := ErrorResponse(w, http.StatusBadRequest, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *OffersHandler) notFound(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusNotFound, "not_found", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *OffersHandler) internalError(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
