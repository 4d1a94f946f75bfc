package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertAudit = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`

// AuditLog is one audit_logs row. ActorID <= 0 marks a system action and a
// zero At lets the database stamp the row.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	switch {
	case l.Action == "":
		return Validation("action", "required")
	case l.Entity == "":
		return Validation("entity", "required")
	case l.EntityID == "":
		return Validation("entity_id", "required")
	}
	return nil
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type AuditLogger struct {
	db Execer
}

func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record inserts log. Meta is stored as a JSON object, never null.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Validation("meta", err.Error())
	}
	actor := pgtype.Int8{Int64: log.ActorID, Valid: log.ActorID > 0}
	at := pgtype.Timestamptz{Time: log.At, Valid: !log.At.IsZero()}
	if _, err := l.db.Exec(ctx, insertAudit, actor, log.Action, log.Entity, log.EntityID, metaJSON, at); err != nil {
		return Storage("audit.record", err)
	}
	return nil
}
