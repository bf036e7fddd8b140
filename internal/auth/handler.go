package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Leela143-143/MUN/internal/authority"
	"github.com/Leela143-143/MUN/internal/membership"
	"github.com/Leela143-143/MUN/internal/models"
	"github.com/Leela143-143/MUN/pkg/response"
	"github.com/Leela143-143/MUN/pkg/utils"
)

// SignupRequest is the body for POST /auth/signup. A signup always claims a
// country, so every field is required.
type SignupRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	CommunityID string `json:"communityId"`
	Country     string `json:"country"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AdminRequest is the body for POST /auth/add-admin and /auth/remove-admin.
type AdminRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Role  models.Role       `json:"role"`
	UID   uuid.UUID         `json:"uid"`
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// UserStore is the user lookup surface the auth handler needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Allocator claims country slots during signup.
type Allocator interface {
	SignUpClaim(ctx context.Context, p membership.SignUpParams) (*models.User, error)
	ListAvailable(ctx context.Context, communityID uuid.UUID) (*models.CountryRoster, error)
}

// RoleAuthority resolves and mutates roles (owner bootstrap, admin grants).
type RoleAuthority interface {
	HealOwner(ctx context.Context, user *models.User) (models.Role, error)
	SetRole(ctx context.Context, callerID uuid.UUID, email string, role models.Role) (*models.User, error)
	ResolveRole(ctx context.Context, id uuid.UUID, email string) (models.Role, error)
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users     UserStore
	allocator Allocator
	authority RoleAuthority
	jwt       *JWTService
	logger    *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, allocator Allocator, auth RoleAuthority, jwt *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, allocator: allocator, authority: auth, jwt: jwt, logger: logger}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	// The bootstrap owner's stored role self-heals on login; everyone else
	// gets the canonical stored role, not whatever a stale token carried.
	role, err := h.authority.HealOwner(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("owner heal failed", zap.Error(err), zap.String("user_id", user.ID.String()))
		response.Internal(c, "failed to resolve role")
		return
	}
	user.Role = role

	token, err := h.jwt.Generate(user.ID, user.Email, role)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.OK(c, TokenResponse{Role: role, UID: user.ID, Token: token, User: user.ToPublic()})
}

// Signup handles POST /auth/signup: creates the user and claims the chosen
// country in one transaction. A lost slot race leaves no user record.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "All fields are required")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Country = strings.TrimSpace(req.Country)
	if req.Name == "" || req.Email == "" || req.Password == "" || req.CommunityID == "" || req.Country == "" {
		response.BadRequest(c, "All fields are required")
		return
	}
	communityID, err := uuid.Parse(req.CommunityID)
	if err != nil {
		response.BadRequest(c, "Community not found")
		return
	}

	if _, err := h.users.GetByEmail(c.Request.Context(), req.Email); err == nil {
		response.BadRequest(c, "email already registered")
		return
	}

	// Precheck for a friendly message; the claim transaction below is what
	// actually guarantees exclusivity.
	roster, err := h.allocator.ListAvailable(c.Request.Context(), communityID)
	if err != nil {
		if errors.Is(err, membership.ErrCommunityNotFound) {
			response.BadRequest(c, "Community not found")
			return
		}
		response.Internal(c, "failed to load community")
		return
	}
	if len(roster.AvailableCountries) == 0 {
		response.BadRequest(c, "No available countries in this community")
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}

	user, err := h.allocator.SignUpClaim(c.Request.Context(), membership.SignUpParams{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CommunityID:  communityID,
		Country:      req.Country,
	})
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrCountryTaken):
			response.BadRequest(c, "Country is already taken")
		case errors.Is(err, membership.ErrUnknownCountry):
			response.BadRequest(c, "Country is not part of this community")
		case errors.Is(err, membership.ErrCommunityNotFound):
			response.BadRequest(c, "Community not found")
		case errors.Is(err, membership.ErrCommunityFull):
			response.BadRequest(c, "No available countries in this community")
		case errors.Is(err, membership.ErrEmailTaken):
			response.BadRequest(c, "email already registered")
		default:
			h.logger.Error("signup claim failed", zap.Error(err), zap.String("community_id", communityID.String()), zap.String("country", req.Country))
			response.Internal(c, "failed to create user")
		}
		return
	}

	// Prime the cached role projection; best-effort.
	if _, err := h.authority.ResolveRole(c.Request.Context(), user.ID, user.Email); err != nil {
		h.logger.Warn("role projection prime failed", zap.Error(err), zap.String("user_id", user.ID.String()))
	}

	token, err := h.jwt.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}
	response.Created(c, TokenResponse{Role: user.Role, UID: user.ID, Token: token, User: user.ToPublic()})
}

// AddAdmin handles POST /auth/add-admin (owner only). Idempotent.
func (h *Handler) AddAdmin(c *gin.Context) {
	h.setRole(c, models.RoleAdmin, "Only owner can add admins", "Admin role assigned successfully")
}

// RemoveAdmin handles POST /auth/remove-admin (owner only). Idempotent.
func (h *Handler) RemoveAdmin(c *gin.Context) {
	h.setRole(c, models.RoleUser, "Only owner can remove admins", "Admin role removed successfully")
}

func (h *Handler) setRole(c *gin.Context, role models.Role, forbiddenMsg, okMsg string) {
	var req AdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "email is required")
		return
	}
	callerID := c.MustGet(ContextUserID).(uuid.UUID)

	if _, err := h.authority.SetRole(c.Request.Context(), callerID, strings.ToLower(strings.TrimSpace(req.Email)), role); err != nil {
		switch {
		case errors.Is(err, authority.ErrForbidden):
			response.Forbidden(c, forbiddenMsg)
		case errors.Is(err, pgx.ErrNoRows):
			response.NotFound(c, "User not found")
		default:
			h.logger.Error("role change failed", zap.Error(err), zap.String("target", req.Email))
			response.Internal(c, "failed to change role")
		}
		return
	}
	response.OK(c, gin.H{"message": okMsg})
}
