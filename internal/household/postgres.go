package household

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists members, sharing preferences and last-known
// positions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a store to an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) FindMember(ctx context.Context, userID int64) (*Member, error) {
	const q = `SELECT id, name, household_id, sharing_enabled FROM members WHERE id = $1`

	var m Member
	err := s.pool.QueryRow(ctx, q, userID).Scan(&m.ID, &m.Name, &m.HouseholdID, &m.SharingEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find member %d: %w", userID, err)
	}
	return &m, nil
}

func (s *PostgresStore) IsMember(ctx context.Context, householdID, userID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1 AND household_id = $2)`

	var exists bool
	if err := s.pool.QueryRow(ctx, q, userID, householdID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SavePosition(ctx context.Context, userID int64, latitude, longitude float64, at time.Time) error {
	const q = `
		INSERT INTO member_positions (member_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (member_id) DO UPDATE
		SET latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude,
		    recorded_at = EXCLUDED.recorded_at`

	if _, err := s.pool.Exec(ctx, q, userID, latitude, longitude, at); err != nil {
		return fmt.Errorf("save position for member %d: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) SetHouseholdSharing(ctx context.Context, householdID int64, enabled bool) (int64, error) {
	const q = `UPDATE members SET sharing_enabled = $2 WHERE household_id = $1`

	tag, err := s.pool.Exec(ctx, q, householdID, enabled)
	if err != nil {
		return 0, fmt.Errorf("set household sharing: %w", err)
	}
	return tag.RowsAffected(), nil
}
