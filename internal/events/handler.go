package events

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Leela143-143/MUN/internal/middleware"
	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/pkg/response"
)

// CreateEventRequest is the body for POST /community/:id/events.
type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description"`
	Date        time.Time `json:"date" binding:"required"`
}

// Store is the event persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, event *models.Event) error
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.Event, error)
	Delete(ctx context.Context, communityID, eventID uuid.UUID) (int64, error)
}

// CommunityStore checks that the target community exists.
type CommunityStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error)
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store       Store
	communities CommunityStore
	logger      *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(store Store, communities CommunityStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, communities: communities, logger: logger}
}

// Create handles POST /community/:id/events (admin/owner).
func (h *Handler) Create(c *gin.Context) {
	communityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return
	}
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "title and date are required")
		return
	}

	if _, err := h.communities.GetByID(c.Request.Context(), communityID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "Community not found")
			return
		}
		response.Internal(c, "failed to load community")
		return
	}

	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	event := &models.Event{
		CommunityID: communityID,
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		CreatedBy:   callerID,
	}
	if err := h.store.Create(c.Request.Context(), event); err != nil {
		h.logger.Error("create event failed", zap.Error(err), zap.String("community_id", communityID.String()))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, event)
}

// ListByCommunity handles GET /community/:id/events.
func (h *Handler) ListByCommunity(c *gin.Context) {
	communityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return
	}
	list, err := h.store.ListByCommunity(c.Request.Context(), communityID)
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /community/:id/events/:eventId (admin/owner).
func (h *Handler) Delete(c *gin.Context) {
	communityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return
	}
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	deleted, err := h.store.Delete(c.Request.Context(), communityID, eventID)
	if err != nil {
		response.Internal(c, "failed to delete event")
		return
	}
	if deleted == 0 {
		response.NotFound(c, "Event not found")
		return
	}
	response.NoContent(c)
}
