package communities

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Leela143-143/MUN/internal/membership"
	"github.com/Leela143-143/MUN/internal/middleware"
	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/pkg/queue"
	"github.com/Leela143-143/MUN/pkg/response"
	"github.com/Leela143-143/MUN/pkg/storage"
)

// Detail is a community with its members and events (GET /community/:id).
type Detail struct {
	models.Community
	Users  []models.UserPublic `json:"users"`
	Events []models.Event      `json:"events"`
}

// Store is the community persistence surface the handler needs.
type Store interface {
	Create(ctx context.Context, community *models.Community, countries []string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error)
	List(ctx context.Context) ([]models.Community, error)
	UpdateLogo(ctx context.Context, id uuid.UUID, logoURL, logoKey string) (string, error)
}

// Allocator exposes the slot roster, claim, and release operations.
type Allocator interface {
	ListAvailable(ctx context.Context, communityID uuid.UUID) (*models.CountryRoster, error)
	ClaimSlot(ctx context.Context, communityID uuid.UUID, country string, userID uuid.UUID) error
	ReleaseSlot(ctx context.Context, communityID uuid.UUID, country string) error
}

// MemberLister lists a community's members.
type MemberLister interface {
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.UserPublic, error)
}

// EventLister lists a community's events, newest first.
type EventLister interface {
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.Event, error)
}

// LogoStorage uploads logo blobs and yields their public URL.
type LogoStorage interface {
	UploadLogo(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// LogoCleanup schedules best-effort deletion of superseded logo blobs.
type LogoCleanup interface {
	EnqueueLogoDelete(ctx context.Context, payload queue.LogoDeletePayload) error
}

// Handler handles community HTTP endpoints.
type Handler struct {
	store     Store
	allocator Allocator
	members   MemberLister
	events    EventLister
	logos     LogoStorage
	cleanup   LogoCleanup
	logger    *zap.Logger
}

// NewHandler creates a communities handler.
func NewHandler(store Store, allocator Allocator, members MemberLister, events EventLister,
	logos LogoStorage, cleanup LogoCleanup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, allocator: allocator, members: members, events: events,
		logos: logos, cleanup: cleanup, logger: logger}
}

// List handles GET /community.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list communities")
		return
	}
	response.OK(c, list)
}

// Create handles POST /community (admin/owner, multipart). Country slots are
// auto-generated placeholders, not admin-chosen.
func (h *Handler) Create(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	totalStr := strings.TrimSpace(c.PostForm("totalCountries"))
	if name == "" || totalStr == "" {
		response.BadRequest(c, "Name and total countries are required")
		return
	}
	total, err := strconv.Atoi(totalStr)
	if err != nil || total <= 0 {
		response.BadRequest(c, "totalCountries must be a positive number")
		return
	}

	file, err := c.FormFile("logo")
	if err != nil {
		response.BadRequest(c, "Logo file is required")
		return
	}

	// The ID is generated up front so the logo lands under the community's
	// own key prefix.
	id := uuid.New()
	logoURL, logoKey, ok := h.uploadLogo(c, id.String(), file)
	if !ok {
		return
	}

	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	community := &models.Community{
		ID:             id,
		Name:           name,
		LogoURL:        logoURL,
		LogoKey:        logoKey,
		TotalCountries: total,
		CreatedBy:      callerID,
	}
	countries := membership.PlaceholderCountries(total)
	if err := h.store.Create(c.Request.Context(), community, countries); err != nil {
		h.logger.Error("create community failed", zap.Error(err), zap.String("name", name))
		response.Internal(c, "failed to create community")
		return
	}
	response.Created(c, gin.H{
		"id":             community.ID,
		"name":           community.Name,
		"logoUrl":        community.LogoURL,
		"totalCountries": community.TotalCountries,
		"countries":      countries,
		"createdBy":      community.CreatedBy,
		"createdAt":      community.CreatedAt,
	})
}

// GetByID handles GET /community/:id: community, member list, events sorted
// descending by date.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := h.communityID(c)
	if !ok {
		return
	}
	community, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "Community not found")
			return
		}
		response.Internal(c, "failed to load community")
		return
	}

	members, err := h.members.ListByCommunity(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	events, err := h.events.ListByCommunity(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load events")
		return
	}
	response.OK(c, Detail{Community: *community, Users: members, Events: events})
}

// Countries handles GET /community/:id/countries.
func (h *Handler) Countries(c *gin.Context) {
	id, ok := h.communityID(c)
	if !ok {
		return
	}
	roster, err := h.allocator.ListAvailable(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, membership.ErrCommunityNotFound) {
			response.NotFound(c, "Community not found")
			return
		}
		response.Internal(c, "failed to load countries")
		return
	}
	response.OK(c, roster)
}

// UpdateLogo handles PUT /community/:id/logo (admin/owner). The superseded
// blob is deleted best-effort via the cleanup queue; a scheduling failure is
// logged, never fatal.
func (h *Handler) UpdateLogo(c *gin.Context) {
	id, ok := h.communityID(c)
	if !ok {
		return
	}
	file, err := c.FormFile("logo")
	if err != nil {
		response.BadRequest(c, "No logo file provided")
		return
	}
	logoURL, logoKey, ok := h.uploadLogo(c, id.String(), file)
	if !ok {
		return
	}

	oldKey, err := h.store.UpdateLogo(c.Request.Context(), id, logoURL, logoKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.NotFound(c, "Community not found")
			return
		}
		response.Internal(c, "failed to update logo")
		return
	}
	if oldKey != "" {
		if err := h.cleanup.EnqueueLogoDelete(c.Request.Context(), queue.LogoDeletePayload{
			CommunityID: id,
			Key:         oldKey,
		}); err != nil {
			h.logger.Warn("old logo cleanup not scheduled", zap.Error(err), zap.String("key", oldKey))
		}
	}
	response.OK(c, gin.H{"logoUrl": logoURL})
}

// ClaimCountry handles POST /community/:id/countries/:country/claim: assigns
// the slot to the caller. Signup claims go through the auth handler instead;
// this path serves members re-claiming after an admin released their slot.
func (h *Handler) ClaimCountry(c *gin.Context) {
	id, ok := h.communityID(c)
	if !ok {
		return
	}
	country := strings.TrimSpace(c.Param("country"))
	callerID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	err := h.allocator.ClaimSlot(c.Request.Context(), id, country, callerID)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrCommunityNotFound):
			response.NotFound(c, "Community not found")
		case errors.Is(err, membership.ErrUnknownCountry):
			response.NotFound(c, "Country is not part of this community")
		case errors.Is(err, membership.ErrCountryTaken):
			response.BadRequest(c, "Country is already taken")
		case errors.Is(err, membership.ErrAlreadyMember):
			response.BadRequest(c, "You have already claimed a country")
		default:
			h.logger.Error("claim slot failed", zap.Error(err), zap.String("community_id", id.String()), zap.String("country", country))
			response.Internal(c, "failed to claim country")
		}
		return
	}
	response.OK(c, gin.H{"communityId": id, "country": country})
}

// ReleaseCountry handles DELETE /community/:id/countries/:country
// (admin/owner): vacates the slot and the member's claim atomically.
func (h *Handler) ReleaseCountry(c *gin.Context) {
	id, ok := h.communityID(c)
	if !ok {
		return
	}
	country := strings.TrimSpace(c.Param("country"))
	err := h.allocator.ReleaseSlot(c.Request.Context(), id, country)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrCommunityNotFound):
			response.NotFound(c, "Community not found")
		case errors.Is(err, membership.ErrUnknownCountry):
			response.NotFound(c, "Country is not part of this community")
		case errors.Is(err, membership.ErrSlotVacant):
			response.BadRequest(c, "Country is not claimed")
		default:
			h.logger.Error("release slot failed", zap.Error(err), zap.String("community_id", id.String()), zap.String("country", country))
			response.Internal(c, "failed to release country")
		}
		return
	}
	response.OK(c, gin.H{"message": "Country released successfully"})
}

func (h *Handler) communityID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid community id")
		return uuid.Nil, false
	}
	return id, true
}

// uploadLogo validates and uploads a logo file, responding with an error and
// returning ok=false on rejection.
func (h *Handler) uploadLogo(c *gin.Context, keyScope string, file *multipart.FileHeader) (logoURL, logoKey string, ok bool) {
	if file.Size > storage.MaxLogoFileSize {
		response.BadRequest(c, "Logo file exceeds 5MB limit")
		return "", "", false
	}
	contentType := file.Header.Get("Content-Type")
	if !storage.ValidateLogoType(contentType, file.Filename) {
		response.BadRequest(c, "Only image files are allowed")
		return "", "", false
	}
	src, err := file.Open()
	if err != nil {
		response.Internal(c, "failed to read logo file")
		return "", "", false
	}
	defer src.Close()

	if contentType == "" {
		contentType = storage.ContentTypeForFilename(file.Filename)
	}
	key := storage.LogoKey(keyScope, file.Filename)
	url, err := h.logos.UploadLogo(c.Request.Context(), key, contentType, src, file.Size)
	if err != nil {
		h.logger.Error("logo upload failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to upload logo")
		return "", "", false
	}
	return url, key, true
}
