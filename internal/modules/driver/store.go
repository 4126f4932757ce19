// README: Driver store backed by PostgreSQL; the last location lives on the driver row.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/domainerr"
	"dispatch/internal/pagination"
	"dispatch/internal/types"
)

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	List(ctx context.Context, f Filter, p pagination.Page) ([]Driver, int64, error)
	// ListAssignable returns eligible drivers that have reported a location.
	ListAssignable(ctx context.Context) ([]Driver, error)
	// ListStale returns online drivers whose last ping is older than before or missing.
	ListStale(ctx context.Context, before time.Time) ([]StaleCandidate, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const driverColumns = `
	id, name, phone, is_online, is_verified, is_blocked,
	last_latitude, last_longitude, last_recorded_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("driver %s: %w", id, domainerr.ErrNotFound)
	}
	if err != nil {
		return nil, domainerr.Unavailable("get driver "+string(id), err)
	}
	return d, nil
}

func (s *Store) List(ctx context.Context, f Filter, p pagination.Page) ([]Driver, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.EligibleOnly {
		where = append(where, "is_online AND is_verified AND NOT is_blocked")
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR phone ILIKE $%d)", len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM drivers`+clause, args...).Scan(&total); err != nil {
		return nil, 0, domainerr.Unavailable("count drivers", err)
	}

	args = append(args, p.Limit(), p.Offset())
	rows, err := s.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers`+clause+
		fmt.Sprintf(" ORDER BY name, id LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, domainerr.Unavailable("list drivers", err)
	}
	out, err := collectDrivers(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListAssignable(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE is_online AND is_verified AND NOT is_blocked
		  AND last_latitude IS NOT NULL AND last_longitude IS NOT NULL AND last_recorded_at IS NOT NULL`)
	if err != nil {
		return nil, domainerr.Unavailable("list assignable drivers", err)
	}
	return collectDrivers(rows)
}

func (s *Store) ListStale(ctx context.Context, before time.Time) ([]StaleCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, last_recorded_at
		FROM drivers
		WHERE is_online AND (last_recorded_at IS NULL OR last_recorded_at < $1)
		ORDER BY last_recorded_at NULLS FIRST, id`, before)
	if err != nil {
		return nil, domainerr.Unavailable("list stale drivers", err)
	}
	defer rows.Close()

	var out []StaleCandidate
	for rows.Next() {
		var c StaleCandidate
		if err := rows.Scan(&c.ID, &c.RecordedAt); err != nil {
			return nil, domainerr.Unavailable("scan stale driver", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.Unavailable("list stale drivers", err)
	}
	return out, nil
}

func collectDrivers(rows pgx.Rows) ([]Driver, error) {
	defer rows.Close()
	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, domainerr.Unavailable("scan driver", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.Unavailable("list drivers", err)
	}
	return out, nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var (
		d          Driver
		lat, lng   *float64
		recordedAt *time.Time
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.IsOnline, &d.IsVerified, &d.IsBlocked, &lat, &lng, &recordedAt); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil && recordedAt != nil {
		d.LastLocation = &Location{Point: types.Point{Lat: *lat, Lng: *lng}, RecordedAt: *recordedAt}
	}
	return &d, nil
}
