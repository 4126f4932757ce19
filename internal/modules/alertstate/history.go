// README: alert_runs persistence: one row per watchdog execution, read newest first.
package alertstate

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/domainerr"
	"dispatch/internal/pagination"
)

type History interface {
	Append(ctx context.Context, r Run) error
	// List pages runs newest first; an empty t means every type.
	List(ctx context.Context, t Type, p pagination.Page) ([]Run, int64, error)
}

type HistoryStore struct {
	db *pgxpool.Pool
}

func NewHistoryStore(db *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Append(ctx context.Context, r Run) error {
	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO alert_runs (type, ran_at, succeeded, alerted, count, rate, error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(r.Type), r.RanAt, r.Succeeded, r.Alerted, r.Count, r.Rate, errText, r.DurationMs,
	)
	return domainerr.Unavailable("append alert run", err)
}

func (s *HistoryStore) List(ctx context.Context, t Type, p pagination.Page) ([]Run, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM alert_runs WHERE ($1 = '' OR type = $1)`, string(t),
	).Scan(&total); err != nil {
		return nil, 0, domainerr.Unavailable("count alert runs", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, type, ran_at, succeeded, alerted, count, rate, COALESCE(error, ''), duration_ms
		FROM alert_runs
		WHERE ($1 = '' OR type = $1)
		ORDER BY ran_at DESC, id DESC
		LIMIT $2 OFFSET $3`, string(t), p.Limit(), p.Offset())
	if err != nil {
		return nil, 0, domainerr.Unavailable("list alert runs", err)
	}
	defer rows.Close()

	out := make([]Run, 0, p.Limit())
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Type, &r.RanAt, &r.Succeeded, &r.Alerted, &r.Count, &r.Rate, &r.Error, &r.DurationMs); err != nil {
			return nil, 0, domainerr.Unavailable("scan alert run", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domainerr.Unavailable("list alert runs", err)
	}
	return out, total, nil
}

type MemoryHistory struct {
	mu   sync.Mutex
	runs []Run
	Err  error
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func (h *MemoryHistory) Append(_ context.Context, r Run) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return h.Err
	}
	r.ID = int64(len(h.runs) + 1)
	h.runs = append(h.runs, r)
	return nil
}

func (h *MemoryHistory) List(_ context.Context, t Type, p pagination.Page) ([]Run, int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Err != nil {
		return nil, 0, h.Err
	}
	var matched []Run
	for _, r := range h.runs {
		if t == "" || r.Type == t {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].RanAt.Equal(matched[j].RanAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].RanAt.After(matched[j].RanAt)
	})
	total := int64(len(matched))
	start := min(p.Offset(), len(matched))
	end := min(start+p.Limit(), len(matched))
	return matched[start:end], total, nil
}
