package communities

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leela143-143/MUN/internal/models"
)

// Repository handles community and slot-roster persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a communities repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const communityColumns = `id, name, logo_url, logo_key, total_countries, occupied_count, created_by, created_at, updated_at`

// Create inserts a community and its fixed slot roster in one transaction.
// The roster never changes afterwards.
func (r *Repository) Create(ctx context.Context, community *models.Community, countries []string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertCommunity = `INSERT INTO communities (id, name, logo_url, logo_key, total_countries, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING occupied_count, created_at, updated_at`
	err = tx.QueryRow(ctx, insertCommunity,
		community.ID, community.Name, community.LogoURL, community.LogoKey, community.TotalCountries, community.CreatedBy).
		Scan(&community.OccupiedCount, &community.CreatedAt, &community.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert community: %w", err)
	}

	rows := make([][]any, 0, len(countries))
	for _, country := range countries {
		rows = append(rows, []any{community.ID, country})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"community_slots"}, []string{"community_id", "country"},
		pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	return tx.Commit(ctx)
}

// GetByID returns a community by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	var cm models.Community
	err := r.pool.QueryRow(ctx, `SELECT `+communityColumns+` FROM communities WHERE id = $1`, id).
		Scan(&cm.ID, &cm.Name, &cm.LogoURL, &cm.LogoKey, &cm.TotalCountries, &cm.OccupiedCount,
			&cm.CreatedBy, &cm.CreatedAt, &cm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// List returns all communities. The stored occupied count doubles as the
// member count, which the allocator keeps equal to the occupied slots.
func (r *Repository) List(ctx context.Context) ([]models.Community, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+communityColumns+` FROM communities ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Community{}
	for rows.Next() {
		var cm models.Community
		if err := rows.Scan(&cm.ID, &cm.Name, &cm.LogoURL, &cm.LogoKey, &cm.TotalCountries, &cm.OccupiedCount,
			&cm.CreatedBy, &cm.CreatedAt, &cm.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, cm)
	}
	return list, rows.Err()
}

// UpdateLogo swaps the logo reference and returns the superseded S3 key so
// the caller can schedule its deletion.
func (r *Repository) UpdateLogo(ctx context.Context, id uuid.UUID, logoURL, logoKey string) (string, error) {
	const q = `WITH prev AS (SELECT logo_key FROM communities WHERE id = $1)
		UPDATE communities SET logo_url = $2, logo_key = $3, updated_at = NOW()
		FROM prev WHERE communities.id = $1
		RETURNING prev.logo_key`
	var oldKey string
	if err := r.pool.QueryRow(ctx, q, id, logoURL, logoKey).Scan(&oldKey); err != nil {
		return "", err
	}
	return oldKey, nil
}
