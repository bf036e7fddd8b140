// Package authority decides whether an identity may perform an action.
//
// The database role column is canonical. Redis holds a cached per-user role
// projection (refreshed on login and on every role change) so other layers can
// read roles cheaply; it is reconciled against the database on read and never
// trusted blindly.
package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Leela143-143/MUN/internal/models"
)

var (
	// ErrForbidden is returned when the role is insufficient for the action.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrUnknownAction is returned for actions missing from the permission table.
	ErrUnknownAction = errors.New("unknown action")
)

// Action names a permission-gated operation.
type Action string

const (
	ActionManageRoles       Action = "manage-roles"
	ActionManageCommunities Action = "manage-communities"
	ActionManageEvents      Action = "manage-events"
	ActionListUsers         Action = "list-users"
	ActionReadCommunity     Action = "read-community"
	ActionClaimCountry      Action = "claim-country"
)

// permissions maps each action to the minimum role that may perform it.
var permissions = map[Action]models.Role{
	ActionManageRoles:       models.RoleOwner,
	ActionManageCommunities: models.RoleAdmin,
	ActionManageEvents:      models.RoleAdmin,
	ActionListUsers:         models.RoleAdmin,
	ActionReadCommunity:     models.RoleUser,
	ActionClaimCountry:      models.RoleUser,
}

// rank orders roles by privilege.
var rank = map[models.Role]int{
	models.RoleUser:  0,
	models.RoleAdmin: 1,
	models.RoleOwner: 2,
}

// Authorize checks the role against the permission table. Deny is a distinct
// ErrForbidden; permissions are never silently degraded.
func Authorize(role models.Role, action Action) error {
	min, ok := permissions[action]
	if !ok {
		return ErrUnknownAction
	}
	if rank[role] < rank[min] {
		return ErrForbidden
	}
	return nil
}

// RoleStore is the persistence surface the authority needs.
type RoleStore interface {
	GetRoleByID(ctx context.Context, id uuid.UUID) (models.Role, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
}

// RoleCache is the cached role projection (Redis in production).
type RoleCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Authority resolves and mutates roles, keeping the cached projection in sync.
type Authority struct {
	store      RoleStore
	cache      RoleCache
	ownerEmail string
	logger     *zap.Logger
}

// New creates a role authority. ownerEmail is the bootstrap owner identity;
// empty disables the bootstrap.
func New(store RoleStore, cache RoleCache, ownerEmail string, logger *zap.Logger) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authority{
		store:      store,
		cache:      cache,
		ownerEmail: strings.ToLower(strings.TrimSpace(ownerEmail)),
		logger:     logger,
	}
}

const roleCacheTTL = 24 * time.Hour

func roleKey(id uuid.UUID) string {
	return "role:" + id.String()
}

// IsOwnerEmail reports whether the email is the configured bootstrap owner.
func (a *Authority) IsOwnerEmail(email string) bool {
	return a.ownerEmail != "" && strings.EqualFold(strings.TrimSpace(email), a.ownerEmail)
}

// ResolveRole returns a user's effective role. The database is read as
// canonical; a disagreeing cache entry is repaired in place. The bootstrap
// owner email is always owner.
func (a *Authority) ResolveRole(ctx context.Context, id uuid.UUID, email string) (models.Role, error) {
	role, err := a.store.GetRoleByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get role: %w", err)
	}
	if a.IsOwnerEmail(email) {
		role = models.RoleOwner
	}
	a.refreshProjection(ctx, id, role)
	return role, nil
}

// HealOwner upgrades the stored role to owner for the bootstrap identity.
// Called on login; a no-op for everyone else and for an already-healed owner.
func (a *Authority) HealOwner(ctx context.Context, user *models.User) (models.Role, error) {
	if !a.IsOwnerEmail(user.Email) {
		return user.Role, nil
	}
	if user.Role != models.RoleOwner {
		if err := a.store.UpdateRole(ctx, user.ID, models.RoleOwner); err != nil {
			return "", fmt.Errorf("heal owner role: %w", err)
		}
		a.logger.Info("owner role healed", zap.String("user_id", user.ID.String()))
	}
	a.refreshProjection(ctx, user.ID, models.RoleOwner)
	return models.RoleOwner, nil
}

// SetRole changes a user's role by email: owner-only per the permission
// table, idempotent, database first, then the cached projection. The caller's
// role is re-read from the database, never from a token or cache.
func (a *Authority) SetRole(ctx context.Context, callerID uuid.UUID, email string, role models.Role) (*models.User, error) {
	callerRole, err := a.store.GetRoleByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("get caller role: %w", err)
	}
	if err := Authorize(callerRole, ActionManageRoles); err != nil {
		return nil, err
	}

	target, err := a.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a.IsOwnerEmail(target.Email) {
		// The bootstrap owner cannot be demoted through role management.
		return nil, ErrForbidden
	}
	if target.Role != role {
		if err := a.store.UpdateRole(ctx, target.ID, role); err != nil {
			return nil, fmt.Errorf("update role: %w", err)
		}
		target.Role = role
	}
	a.refreshProjection(ctx, target.ID, role)
	return target, nil
}

// CachedRole returns the projected role for a user, falling back to the
// database (and repairing the cache) on a miss.
func (a *Authority) CachedRole(ctx context.Context, id uuid.UUID) (models.Role, error) {
	if a.cache != nil {
		if v, err := a.cache.Get(ctx, roleKey(id)).Result(); err == nil {
			return models.ParseRole(v), nil
		}
	}
	role, err := a.store.GetRoleByID(ctx, id)
	if err != nil {
		return "", err
	}
	a.refreshProjection(ctx, id, role)
	return role, nil
}

// refreshProjection is the projection half of the dual-write. Failures are
// logged, not fatal: the next ResolveRole repairs the cache.
func (a *Authority) refreshProjection(ctx context.Context, id uuid.UUID, role models.Role) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, roleKey(id), string(role), roleCacheTTL).Err(); err != nil {
		a.logger.Warn("role projection refresh failed", zap.String("user_id", id.String()), zap.Error(err))
	}
}
