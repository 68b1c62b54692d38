// Package postgres stores pins in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/pinmap-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS pins (
	id         TEXT PRIMARY KEY,
	location   TEXT NOT NULL,
	added_by   TEXT NOT NULL,
	notes      TEXT NOT NULL DEFAULT '',
	date       TIMESTAMPTZ NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	image_url  TEXT
);
CREATE INDEX IF NOT EXISTS pins_created_at_idx ON pins (created_at DESC);
`

const pinColumns = `id, location, added_by, notes, date, latitude, longitude, created_at, image_url`

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PinStore implements domain.PinStore on Postgres.
type PinStore struct {
	pool pool
}

// NewPinStore connects to Postgres and ensures the pins table exists.
func NewPinStore(ctx context.Context, dsn string) (*PinStore, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PinStore{pool: p}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewPinStoreWithPool wraps an existing pool, mainly for tests.
func NewPinStoreWithPool(p pool) (*PinStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &PinStore{pool: p}, nil
}

// Migrate creates the pins table and its index if they are missing.
func (s *PinStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate pins table: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *PinStore) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return nil
}

func (s *PinStore) Close() {
	s.pool.Close()
}

// List returns every pin, newest first.
func (s *PinStore) List(ctx context.Context) ([]domain.Pin, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pinColumns+` FROM pins ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()

	pins := make([]domain.Pin, 0)
	for rows.Next() {
		pin, err := scanPin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pin row: %w", err)
		}
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	return pins, nil
}

// Get returns one pin or domain.ErrPinNotFound.
func (s *PinStore) Get(ctx context.Context, id string) (domain.Pin, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pinColumns+` FROM pins WHERE id = $1`, id)
	pin, err := scanPin(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pin{}, domain.ErrPinNotFound
		}
		return domain.Pin{}, fmt.Errorf("get pin %s: %w", id, err)
	}
	return pin, nil
}

// Create inserts a pin.
func (s *PinStore) Create(ctx context.Context, pin domain.Pin) (domain.Pin, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pins (`+pinColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`,
		pin.ID,
		pin.PlaceName,
		pin.AddedBy,
		pin.Notes,
		pin.Date,
		pin.Position.Lat,
		pin.Position.Lon,
		pin.CreatedAt,
		pin.ImageURL,
	)
	if err != nil {
		return domain.Pin{}, fmt.Errorf("insert pin %s: %w", pin.ID, err)
	}
	return pin, nil
}

// Delete removes a pin or reports domain.ErrPinNotFound.
func (s *PinStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pins WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pin %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPinNotFound
	}
	return nil
}

func scanPin(row pgx.Row) (domain.Pin, error) {
	var (
		pin      domain.Pin
		imageURL *string
	)
	err := row.Scan(
		&pin.ID,
		&pin.PlaceName,
		&pin.AddedBy,
		&pin.Notes,
		&pin.Date,
		&pin.Position.Lat,
		&pin.Position.Lon,
		&pin.CreatedAt,
		&imageURL,
	)
	if err != nil {
		return domain.Pin{}, err
	}
	if imageURL != nil {
		pin.ImageURL = *imageURL
	}
	return pin, nil
}
