// README: Audit store appends events to audit_logs in PostgreSQL.
package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, entity_type, entity_id, from_value, to_value, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, string(e.ActorID), e.Action, e.EntityType, string(e.EntityID),
		nullIfEmpty(e.From), nullIfEmpty(e.To), meta, e.CreatedAt,
	)
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
