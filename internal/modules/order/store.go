// README: Order store backed by PostgreSQL. Writes are guarded by the version column.
package order

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

// Filter narrows order listings. Zero values mean "no filter".
type Filter struct {
	Status Status
	Search string
}

// Change is a single versioned write of an order plus the log rows it produces.
type Change struct {
	Order           *Order
	ExpectedVersion int
	Event           *Event
	Reassignment    *ReassignmentEvent
}

// Repository is what the service needs from persistence.
type Repository interface {
	Get(ctx context.Context, id types.ID) (*Order, error)
	GetDetail(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, f Filter, p pagination.Page) ([]Order, int64, error)
	// Save applies c atomically and reports false when the version check lost.
	Save(ctx context.Context, c Change) (bool, error)
	ListReassignments(ctx context.Context, orderID types.ID) ([]ReassignmentEvent, error)
	ListStuck(ctx context.Context, status Status, createdBefore time.Time) ([]StuckCandidate, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, number, status, version, driver_id, vendor_id, customer_name,
	delivery_latitude, delivery_longitude, total_amount, currency,
	refund_status, refund_reason, refund_reject_reason,
	created_at, paid_at, assigned_at, ready_at, picked_up_at, delivered_at, cancelled_at,
	refund_requested_at, refund_processed_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, domainerr.ErrNotFound)
	}
	if err != nil {
		return nil, domainerr.Unavailable("get order "+string(id), err)
	}
	return o, nil
}

func (s *Store) GetDetail(ctx context.Context, id types.ID) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, domainerr.Unavailable("list order items", err)
	}
	defer rows.Close()
	for rows.Next() {
		it := LineItem{UnitPrice: types.Money{Currency: o.Total.Currency}}
		if err := rows.Scan(&it.ID, &it.Name, &it.Quantity, &it.UnitPrice.Amount); err != nil {
			return nil, domainerr.Unavailable("scan order item", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.Unavailable("list order items", err)
	}

	var v VendorSummary
	err = s.db.QueryRow(ctx, `SELECT id, name FROM vendors WHERE id = $1`, string(o.VendorID)).Scan(&v.ID, &v.Name)
	switch {
	case err == nil:
		o.Vendor = &v
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, domainerr.Unavailable("get vendor", err)
	}

	if o.DriverID != nil {
		var d DriverSummary
		err = s.db.QueryRow(ctx, `
			SELECT id, name, phone, is_online, is_verified
			FROM drivers WHERE id = $1`, string(*o.DriverID),
		).Scan(&d.ID, &d.Name, &d.Phone, &d.IsOnline, &d.IsVerified)
		switch {
		case err == nil:
			o.Driver = &d
		case !errors.Is(err, pgx.ErrNoRows):
			return nil, domainerr.Unavailable("get driver", err)
		}
	}
	return o, nil
}

func (s *Store) List(ctx context.Context, f Filter, p pagination.Page) ([]Order, int64, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(number ILIKE $%d OR customer_name ILIKE $%d OR id ILIKE $%d)", len(args), len(args), len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+clause, args...).Scan(&total); err != nil {
		return nil, 0, domainerr.Unavailable("count orders", err)
	}

	args = append(args, p.Limit(), p.Offset())
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+` FROM orders`+clause+
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, domainerr.Unavailable("list orders", err)
	}
	defer rows.Close()

	out := make([]Order, 0, p.Limit())
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, domainerr.Unavailable("scan order", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domainerr.Unavailable("list orders", err)
	}
	return out, total, nil
}

func (s *Store) Save(ctx context.Context, c Change) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, domainerr.Unavailable("begin order tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o := c.Order
	var refundStatus *string
	if o.RefundStatus != RefundNone {
		v := string(o.RefundStatus)
		refundStatus = &v
	}
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2,
		    driver_id = $3,
		    paid_at = $4,
		    assigned_at = $5,
		    ready_at = $6,
		    picked_up_at = $7,
		    delivered_at = $8,
		    cancelled_at = $9,
		    refund_status = $10,
		    refund_reason = $11,
		    refund_reject_reason = $12,
		    refund_requested_at = $13,
		    refund_processed_at = $14,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $1 AND version = $15`,
		string(o.ID),
		string(o.Status),
		idPtr(o.DriverID),
		o.PaidAt, o.AssignedAt, o.ReadyAt, o.PickedUpAt, o.DeliveredAt, o.CancelledAt,
		refundStatus, o.RefundReason, o.RefundRejectReason,
		o.RefundRequestedAt, o.RefundProcessedAt,
		c.ExpectedVersion,
	)
	if err != nil {
		return false, domainerr.Unavailable("update order "+string(o.ID), err)
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if e := c.Event; e != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_state_events (order_id, from_status, to_status, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			string(e.OrderID), string(e.FromStatus), string(e.ToStatus), idPtr(e.ActorID), e.CreatedAt,
		); err != nil {
			return false, domainerr.Unavailable("append order event", err)
		}
	}
	if r := c.Reassignment; r != nil {
		if err := tx.QueryRow(ctx, `
			INSERT INTO reassignment_events (order_id, old_driver_id, new_driver_id, reason, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			string(r.OrderID), idPtr(r.OldDriverID), string(r.NewDriverID), r.Reason, string(r.ActorID), r.CreatedAt,
		).Scan(&r.ID); err != nil {
			return false, domainerr.Unavailable("append reassignment event", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, domainerr.Unavailable("commit order tx", err)
	}
	o.Version = c.ExpectedVersion + 1
	return true, nil
}

func (s *Store) ListReassignments(ctx context.Context, orderID types.ID) ([]ReassignmentEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, old_driver_id, new_driver_id, reason, actor_id, created_at
		FROM reassignment_events
		WHERE order_id = $1
		ORDER BY created_at DESC, id DESC`, string(orderID))
	if err != nil {
		return nil, domainerr.Unavailable("list reassignments", err)
	}
	defer rows.Close()

	var out []ReassignmentEvent
	for rows.Next() {
		var (
			r   ReassignmentEvent
			old *string
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &old, &r.NewDriverID, &r.Reason, &r.ActorID, &r.CreatedAt); err != nil {
			return nil, domainerr.Unavailable("scan reassignment", err)
		}
		r.OldDriverID = toIDPtr(old)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.Unavailable("list reassignments", err)
	}
	return out, nil
}

func (s *Store) ListStuck(ctx context.Context, status Status, createdBefore time.Time) ([]StuckCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, created_at
		FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at`, string(status), createdBefore)
	if err != nil {
		return nil, domainerr.Unavailable("list stuck orders", err)
	}
	defer rows.Close()

	var out []StuckCandidate
	for rows.Next() {
		var c StuckCandidate
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return nil, domainerr.Unavailable("scan stuck order", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domainerr.Unavailable("list stuck orders", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o            Order
		driverID     *string
		refundStatus *string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.Status, &o.Version, &driverID, &o.VendorID, &o.CustomerName,
		&o.Delivery.Lat, &o.Delivery.Lng, &o.Total.Amount, &o.Total.Currency,
		&refundStatus, &o.RefundReason, &o.RefundRejectReason,
		&o.CreatedAt, &o.PaidAt, &o.AssignedAt, &o.ReadyAt, &o.PickedUpAt, &o.DeliveredAt, &o.CancelledAt,
		&o.RefundRequestedAt, &o.RefundProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	o.DriverID = toIDPtr(driverID)
	if refundStatus != nil {
		o.RefundStatus = RefundStatus(*refundStatus)
	}
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
