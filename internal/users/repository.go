package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leela143-143/MUN/internal/models"
)

// Repository handles user persistence. It backs the auth handler, the role
// authority, and the user profile endpoints.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, name, role, community_id, country, created_at, updated_at`

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CommunityID, &u.Country, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CommunityID, &u.Country, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetRoleByID returns the stored (canonical) role for a user.
func (r *Repository) GetRoleByID(ctx context.Context, id uuid.UUID) (models.Role, error) {
	var role string
	if err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role); err != nil {
		return "", err
	}
	return models.ParseRole(role), nil
}

// UpdateRole sets a user's stored role.
func (r *Repository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, string(role))
	return err
}

// UpdateName changes a user's display name.
func (r *Repository) UpdateName(ctx context.Context, id uuid.UUID, name string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, name).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CommunityID, &u.Country, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// List returns all users.
func (r *Repository) List(ctx context.Context) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, role, community_id, country, created_at FROM users ORDER BY name, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPublic(rows)
}

// ListByCommunity returns the members of a community.
func (r *Repository) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.UserPublic, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, role, community_id, country, created_at FROM users
		WHERE community_id = $1 ORDER BY country`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPublic(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPublic(rows rowScanner) ([]models.UserPublic, error) {
	list := []models.UserPublic{}
	for rows.Next() {
		var u models.UserPublic
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &role, &u.CommunityID, &u.Country, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Role = models.ParseRole(role)
		list = append(list, u)
	}
	return list, rows.Err()
}
