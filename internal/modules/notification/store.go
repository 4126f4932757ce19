// README: notification_logs persistence; feeds the failure-rate watchdog.
package notification

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dispatch/internal/domainerr"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, e logEntry) error {
	var errText *string
	if e.Error != "" {
		errText = &e.Error
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_logs (target, status, error, sent_at)
		VALUES ($1, $2, $3, $4)`,
		e.Target, string(e.Outcome), errText, e.SentAt,
	)
	return domainerr.Unavailable("record notification", err)
}

// StatsSince counts sends and failures at or after since.
func (s *Store) StatsSince(ctx context.Context, since time.Time) (Stats, error) {
	var st Stats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'failed')
		FROM notification_logs
		WHERE sent_at >= $1`, since,
	).Scan(&st.Total, &st.Failed)
	if err != nil {
		return Stats{}, domainerr.Unavailable("notification stats", err)
	}
	return st, nil
}
