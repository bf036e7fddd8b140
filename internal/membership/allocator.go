// Package membership enforces the one-user-per-country-per-community
// invariant. Every claim and release runs inside a single PostgreSQL
// transaction: the slot's occupant flips with a conditional update, the
// community's occupied count moves with it, and the user record is kept in
// lockstep. Losing a claim race is reported as ErrCountryTaken with nothing
// committed.
package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Leela143-143/MUN/internal/models"
)

var (
	// ErrCommunityNotFound means the referenced community does not exist.
	ErrCommunityNotFound = errors.New("community not found")
	// ErrUnknownCountry means the country is not one of the community's slots.
	ErrUnknownCountry = errors.New("country is not part of this community")
	// ErrCountryTaken means the slot was occupied when the conditional update ran.
	ErrCountryTaken = errors.New("country is already taken")
	// ErrCommunityFull means no slot in the community is available.
	ErrCommunityFull = errors.New("no available countries in this community")
	// ErrAlreadyMember means the user already holds a slot somewhere.
	ErrAlreadyMember = errors.New("user has already claimed a country")
	// ErrSlotVacant means a release targeted a slot that has no occupant.
	ErrSlotVacant = errors.New("country is not claimed")
	// ErrEmailTaken means the signup email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

const pgUniqueViolation = "23505"

// querier is the pool surface the allocator uses, satisfied by pgxpool.Pool.
type querier interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Allocator owns country-slot allocation for communities.
type Allocator struct {
	pool querier
}

// NewAllocator creates a membership allocator.
func NewAllocator(pool *pgxpool.Pool) *Allocator {
	return &Allocator{pool: pool}
}

// PlaceholderCountries generates the fixed slot roster for a new community:
// Country1..CountryN.
func PlaceholderCountries(n int) []string {
	countries := make([]string, n)
	for i := range countries {
		countries[i] = fmt.Sprintf("Country%d", i+1)
	}
	return countries
}

// SignUpParams holds the fields needed to create a user and claim a slot in
// one transaction.
type SignUpParams struct {
	Name         string
	Email        string
	PasswordHash string
	CommunityID  uuid.UUID
	Country      string
}

// SignUpClaim creates the user record and claims the requested country in a
// single transaction. A lost slot race rolls back the user insert, so no user
// record is left behind.
func (a *Allocator) SignUpClaim(ctx context.Context, p SignUpParams) (*models.User, error) {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertUser = `INSERT INTO users (email, password_hash, name, role, community_id, country)
		VALUES ($1, $2, $3, 'user', $4, $5)
		RETURNING id, email, password_hash, name, role, community_id, country, created_at, updated_at`
	var u models.User
	err = tx.QueryRow(ctx, insertUser, p.Email, p.PasswordHash, p.Name, p.CommunityID, p.Country).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CommunityID, &u.Country, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if err := a.claim(ctx, tx, p.CommunityID, p.Country, u.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &u, nil
}

// ClaimSlot assigns a country to an existing user. Fails with ErrAlreadyMember
// if the user already occupies a slot anywhere.
func (a *Allocator) ClaimSlot(ctx context.Context, communityID uuid.UUID, country string, userID uuid.UUID) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := a.claim(ctx, tx, communityID, country, userID); err != nil {
		return err
	}

	const updateUser = `UPDATE users SET community_id = $2, country = $3, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, updateUser, userID, communityID, country); err != nil {
		return fmt.Errorf("update user claim: %w", err)
	}
	return tx.Commit(ctx)
}

// claim performs the conditional occupant update and counter bump inside tx.
// The WHERE user_id IS NULL guard is the linearization point: of two
// concurrent claims for the same slot, exactly one update matches a row.
func (a *Allocator) claim(ctx context.Context, tx pgx.Tx, communityID uuid.UUID, country string, userID uuid.UUID) error {
	const claimSlot = `UPDATE community_slots SET user_id = $3, claimed_at = NOW()
		WHERE community_id = $1 AND country = $2 AND user_id IS NULL`
	tag, err := tx.Exec(ctx, claimSlot, communityID, country, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("claim slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return a.classifyClaimFailure(ctx, tx, communityID, country)
	}

	const bumpCount = `UPDATE communities SET occupied_count = occupied_count + 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, bumpCount, communityID); err != nil {
		return fmt.Errorf("bump occupied count: %w", err)
	}
	return nil
}

// classifyClaimFailure distinguishes why the conditional update matched no
// row: missing community, unknown country, an occupied slot, or a community
// with no vacancy left at all.
func (a *Allocator) classifyClaimFailure(ctx context.Context, tx pgx.Tx, communityID uuid.UUID, country string) error {
	var occupant *uuid.UUID
	err := tx.QueryRow(ctx, `SELECT user_id FROM community_slots WHERE community_id = $1 AND country = $2`,
		communityID, country).Scan(&occupant)
	switch {
	case err == nil:
		// The row exists but the conditional update missed it, so another
		// claim got there first. When no slot anywhere remains vacant the
		// community is full, matching what the signup precheck reports.
		var vacant bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM community_slots WHERE community_id = $1 AND user_id IS NULL)`,
			communityID).Scan(&vacant); err != nil {
			return fmt.Errorf("probe vacancy: %w", err)
		}
		if !vacant {
			return ErrCommunityFull
		}
		return ErrCountryTaken
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM communities WHERE id = $1)`, communityID).Scan(&exists); err != nil {
			return fmt.Errorf("probe community: %w", err)
		}
		if !exists {
			return ErrCommunityNotFound
		}
		return ErrUnknownCountry
	default:
		return fmt.Errorf("probe slot: %w", err)
	}
}

// ReleaseSlot vacates a country and clears the occupant's claim fields. The
// slot row, the counter, and the user record move in one transaction.
func (a *Allocator) ReleaseSlot(ctx context.Context, communityID uuid.UUID, country string) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the slot row so the occupant read and the clear are one unit.
	var occupant *uuid.UUID
	err = tx.QueryRow(ctx, `SELECT user_id FROM community_slots WHERE community_id = $1 AND country = $2 FOR UPDATE`,
		communityID, country).Scan(&occupant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a.classifyReleaseFailure(ctx, tx, communityID, country)
		}
		return fmt.Errorf("lock slot: %w", err)
	}
	if occupant == nil {
		return ErrSlotVacant
	}

	const releaseSlot = `UPDATE community_slots SET user_id = NULL, claimed_at = NULL
		WHERE community_id = $1 AND country = $2`
	if _, err := tx.Exec(ctx, releaseSlot, communityID, country); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	const dropCount = `UPDATE communities SET occupied_count = occupied_count - 1, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, dropCount, communityID); err != nil {
		return fmt.Errorf("drop occupied count: %w", err)
	}
	const clearUser = `UPDATE users SET community_id = NULL, country = NULL, updated_at = NOW() WHERE id = $1`
	if _, err := tx.Exec(ctx, clearUser, occupant); err != nil {
		return fmt.Errorf("clear user claim: %w", err)
	}
	return tx.Commit(ctx)
}

// classifyReleaseFailure runs when the slot row does not exist at all.
func (a *Allocator) classifyReleaseFailure(ctx context.Context, tx pgx.Tx, communityID uuid.UUID, country string) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM communities WHERE id = $1)`, communityID).Scan(&exists); err != nil {
		return fmt.Errorf("probe community: %w", err)
	}
	if !exists {
		return ErrCommunityNotFound
	}
	return ErrUnknownCountry
}

// ListAvailable returns a consistent snapshot of a community's roster: one
// query over the slot rows, never a merge of partial reads.
func (a *Allocator) ListAvailable(ctx context.Context, communityID uuid.UUID) (*models.CountryRoster, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT country, user_id FROM community_slots WHERE community_id = $1 ORDER BY country`, communityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roster := &models.CountryRoster{
		AvailableCountries: []string{},
		AssignedCountries:  []string{},
	}
	for rows.Next() {
		var country string
		var occupant *uuid.UUID
		if err := rows.Scan(&country, &occupant); err != nil {
			return nil, err
		}
		roster.TotalCountries++
		if occupant == nil {
			roster.AvailableCountries = append(roster.AvailableCountries, country)
		} else {
			roster.AssignedCountries = append(roster.AssignedCountries, country)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if roster.TotalCountries == 0 {
		var exists bool
		if err := a.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM communities WHERE id = $1)`, communityID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrCommunityNotFound
		}
	}
	return roster, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
