package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/auth"
	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/services"
)

// TenantMiddleware is a function that wraps a handler with tenant context.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// ClientRequest is the request body for creating or updating a client.
type ClientRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
	Status    string `json:"status,omitempty"`
	Source    string `json:"source,omitempty"`
	Industry  string `json:"industry,omitempty"`
	IsCompany bool   `json:"is_company,omitempty"`
	TaxID     string `json:"tax_id,omitempty"`
	OwnerID   string `json:"owner_id,omitempty"`
}

// ClientsHandler handles client-related HTTP requests.
type ClientsHandler struct {
	clientService services.ClientService
	logger        *zap.Logger
}

// NewClientsHandler creates a new clients handler.
func NewClientsHandler(clientService services.ClientService, logger *zap.Logger) *ClientsHandler {
	return &ClientsHandler{
		clientService: clientService,
		logger:        logger,
	}
}

// RegisterRoutes registers the clients handler's routes on the given mux.
func (h *ClientsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/clients",
		authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/clients",
		authMiddleware.RequireAuth(tenantMiddleware(h.Create)))
	mux.HandleFunc("GET /api/clients/{cid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/clients/{cid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Update)))
	mux.HandleFunc("DELETE /api/clients/{cid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Delete)))
}

// List handles GET /api/clients
func (h *ClientsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	clients, err := h.clientService.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to list clients", zap.Error(err))
		h.internalError(w, "Failed to list clients")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"clients": clients}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/clients
func (h *ClientsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeClientRequest(w, r)
	if !ok {
		return
	}

	client, err := h.clientService.Create(r.Context(), req.toModel(tenantID, uuid.Nil))
	if err != nil {
		h.logger.Error("Failed to create client", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "create_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, client); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/clients/{cid}
func (h *ClientsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	clientID, ok := ParseClientID(w, r, h.logger)
	if !ok {
		return
	}

	client, err := h.clientService.Get(r.Context(), tenantID, clientID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Client not found")
			return
		}
		h.logger.Error("Failed to get client",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to get client")
		return
	}

	if err := WriteJSON(w, http.StatusOK, client); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/clients/{cid}
func (h *ClientsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	clientID, ok := ParseClientID(w, r, h.logger)
	if !ok {
		return
	}

	req, ok := h.decodeClientRequest(w, r)
	if !ok {
		return
	}

	client, err := h.clientService.Update(r.Context(), req.toModel(tenantID, clientID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Client not found")
			return
		}
		h.logger.Error("Failed to update client",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "update_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, client); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/clients/{cid}
func (h *ClientsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	clientID, ok := ParseClientID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.clientService.Delete(r.Context(), tenantID, clientID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Client not found")
			return
		}
		h.logger.Error("Failed to delete client",
			zap.String("client_id", clientID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to delete client")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (r *ClientRequest) toModel(tenantID, clientID uuid.UUID) *models.Client {
	client := &models.Client{
		ID:        clientID,
		TenantID:  tenantID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		City:      r.City,
		Country:   r.Country,
		Status:    r.Status,
		Source:    r.Source,
		Industry:  r.Industry,
		IsCompany: r.IsCompany,
		TaxID:     r.TaxID,
	}
	if ownerID, err := uuid.Parse(r.OwnerID); err == nil {
		client.OwnerID = ownerID
	}
	return client
}

func (h *ClientsHandler) decodeClientRequest(w http.ResponseWriter, r *http.Request) (*ClientRequest, bool) {
	var req ClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}
	return &req, true
}

func (h *ClientsHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := auth.TenantIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "missing_tenant", "Tenant ID required in token"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return tenantID, true
}

func (h *ClientsHandler) notFound(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusNotFound, "not_found", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *ClientsHandler) internalError(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
