package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leela143-143/MUN/internal/models"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an event for a community.
func (r *Repository) Create(ctx context.Context, event *models.Event) error {
	const q = `INSERT INTO events (community_id, title, description, event_date, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q,
		event.CommunityID, event.Title, event.Description, event.Date, event.CreatedBy).
		Scan(&event.ID, &event.CreatedAt)
}

// ListByCommunity returns a community's events, newest first.
func (r *Repository) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.Event, error) {
	const q = `SELECT id, community_id, title, description, event_date, created_by, created_at
		FROM events WHERE community_id = $1 ORDER BY event_date DESC`
	rows, err := r.pool.Query(ctx, q, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Event{}
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.CommunityID, &e.Title, &e.Description, &e.Date, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// Delete removes an event scoped to its community. Returns the number of rows
// deleted so the handler can 404 on a miss.
func (r *Repository) Delete(ctx context.Context, communityID, eventID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND community_id = $2`, eventID, communityID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
