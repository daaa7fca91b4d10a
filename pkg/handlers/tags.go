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

// TagRequest is the request body for creating or updating a tag.
type TagRequest struct {
	Name      string                `json:"name"`
	Color     string                `json:"color,omitempty"`
	IsActive  *bool                 `json:"is_active,omitempty"`
	Condition *models.ConditionNode `json:"condition,omitempty"`
}

// TagsHandler handles tag definition and assignment HTTP requests.
type TagsHandler struct {
	tagService services.TagService
	logger     *zap.Logger
}

// NewTagsHandler creates a new tags handler.
func NewTagsHandler(tagService services.TagService, logger *zap.Logger) *TagsHandler {
	return &TagsHandler{
		tagService: tagService,
		logger:     logger,
	}
}

// RegisterRoutes registers the tags handler's routes on the given mux.
func (h *TagsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("GET /api/tags",
		authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST /api/tags",
		authMiddleware.RequireAuth(tenantMiddleware(h.Create)))
	mux.HandleFunc("GET /api/tags/{tid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("PUT /api/tags/{tid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Update)))
	mux.HandleFunc("DELETE /api/tags/{tid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Delete)))

	mux.HandleFunc("PUT /api/clients/{cid}/tags/{tid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Assign)))
	mux.HandleFunc("DELETE /api/clients/{cid}/tags/{tid}",
		authMiddleware.RequireAuth(tenantMiddleware(h.Unassign)))
}

// List handles GET /api/tags
func (h *TagsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	tags, err := h.tagService.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to list tags", zap.Error(err))
		h.internalError(w, "Failed to list tags")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"tags": tags}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/tags
func (h *TagsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeTagRequest(w, r)
	if !ok {
		return
	}

	tag, err := h.tagService.Create(r.Context(), req.toModel(tenantID, uuid.Nil))
	if err != nil {
		h.logger.Error("Failed to create tag", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "create_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, tag); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/tags/{tid}
func (h *TagsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	tagID, ok := ParseTagID(w, r, h.logger)
	if !ok {
		return
	}

	tag, err := h.tagService.Get(r.Context(), tenantID, tagID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Tag not found")
			return
		}
		h.logger.Error("Failed to get tag",
			zap.String("tag_id", tagID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to get tag")
		return
	}

	if err := WriteJSON(w, http.StatusOK, tag); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PUT /api/tags/{tid}
// A condition change, including clearing it, schedules a tenant-wide
// re-evaluation of the tag.
func (h *TagsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	tagID, ok := ParseTagID(w, r, h.logger)
	if !ok {
		return
	}

	req, ok := h.decodeTagRequest(w, r)
	if !ok {
		return
	}

	tag, err := h.tagService.Update(r.Context(), req.toModel(tenantID, tagID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Tag not found")
			return
		}
		h.logger.Error("Failed to update tag",
			zap.String("tag_id", tagID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "update_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, tag); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Delete handles DELETE /api/tags/{tid}
func (h *TagsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	tagID, ok := ParseTagID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.tagService.Delete(r.Context(), tenantID, tagID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Tag not found")
			return
		}
		h.logger.Error("Failed to delete tag",
			zap.String("tag_id", tagID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to delete tag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Assign handles PUT /api/clients/{cid}/tags/{tid}
// Creates a manual assignment; assigning an already-tagged client is a
// no-op.
func (h *TagsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	clientID, tagID, ok := ParseClientAndTagIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.tagService.Assign(r.Context(), tenantID, clientID, tagID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.notFound(w, "Tag not found")
			return
		}
		h.logger.Error("Failed to assign tag",
			zap.String("client_id", clientID.String()),
			zap.String("tag_id", tagID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to assign tag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unassign handles DELETE /api/clients/{cid}/tags/{tid}
// Removes the assignment whether it was made manually or by the engine.
func (h *TagsHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	clientID, tagID, ok := ParseClientAndTagIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.tagService.Unassign(r.Context(), tenantID, clientID, tagID); err != nil {
		h.logger.Error("Failed to unassign tag",
			zap.String("client_id", clientID.String()),
			zap.String("tag_id", tagID.String()),
			zap.Error(err))
		h.internalError(w, "Failed to unassign tag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (r *TagRequest) toModel(tenantID, tagID uuid.UUID) *models.TagDefinition {
	tag := &models.TagDefinition{
		ID:        tagID,
		TenantID:  tenantID,
		Name:      r.Name,
		Color:     r.Color,
		IsActive:  true,
		Condition: r.Condition,
	}
	if r.IsActive != nil {
		tag.IsActive = *r.IsActive
	}
	return tag
}

func (h *TagsHandler) decodeTagRequest(w http.ResponseWriter, r *http.Request) (*TagRequest, bool) {
	var req TagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}
	return &req, true
}

func (h *TagsHandler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := auth.TenantIDFromContext(r.Context())
	if err != nil {
		if err := ErrorResponse(w, http.StatusUnauthorized, "missing_tenant", "Tenant ID required in token"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return tenantID, true
}

func (h *TagsHandler) notFound(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusNotFound, "not_found", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *TagsHandler) internalError(w http.ResponseWriter, message string) {
	if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
