package users

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Leela143-143/MUN/internal/middleware"
	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/pkg/response"
)

// UpdateProfileRequest is the body for PUT /user/:id.
type UpdateProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

// Profile is a user with their community embedded (GET /user/:id).
type Profile struct {
	models.UserPublic
	Community *models.Community `json:"community,omitempty"`
}

// Store is the user persistence surface the handler needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) (*models.User, error)
	List(ctx context.Context) ([]models.UserPublic, error)
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.UserPublic, error)
}

// CommunityStore resolves the community embedded in a profile.
type CommunityStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error)
}

// Handler handles user HTTP endpoints.
type Handler struct {
	store       Store
	communities CommunityStore
	logger      *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(store Store, communities CommunityStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, communities: communities, logger: logger}
}

// GetByID handles GET /user/:id. Any authenticated caller; embeds the user's
// community when they have claimed one.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	user, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "User not found")
			return
		}
		response.Internal(c, "failed to load user")
		return
	}

	profile := Profile{UserPublic: user.ToPublic()}
	if user.CommunityID != nil {
		community, err := h.communities.GetByID(c.Request.Context(), *user.CommunityID)
		if err == nil {
			profile.Community = community
		}
	}
	response.OK(c, profile)
}

// List handles GET /user (admin/owner only).
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}

// Update handles PUT /user/:id. The caller must be the user themselves or an
// admin/owner.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	callerRole := c.MustGet(middleware.ContextUserRole).(models.Role)
	if callerID != id && callerRole != models.RoleAdmin && callerRole != models.RoleOwner {
		response.Forbidden(c, "Insufficient permissions")
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name is required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		response.BadRequest(c, "name is required")
		return
	}

	user, err := h.store.UpdateName(c.Request.Context(), id, name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "User not found")
			return
		}
		response.Internal(c, "failed to update profile")
		return
	}
	response.OK(c, user.ToPublic())
}

// ListByCommunity handles GET /user/community/:communityId (admin/owner only).
func (h *Handler) ListByCommunity(c *gin.Context) {
	communityID, err := uuid.Parse(c.Param("communityId"))
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return
	}
	list, err := h.store.ListByCommunity(c.Request.Context(), communityID)
	if err != nil {
		response.Internal(c, "failed to list community members")
		return
	}
	response.OK(c, list)
}
