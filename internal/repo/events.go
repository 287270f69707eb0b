package repo

import (
	"context"
	"database/sql"
	"strings"

	"inproc/internal/domain"
)

// LatestEvents returns the most recent events, optionally scoped to a
// request.
func (r Repo) LatestEvents(ctx context.Context, requestID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if requestID != 0 {
		clauses = append(clauses, "request_id=?")
		args = append(args, requestID)
	}
	args = append(args, limit)
	query := `SELECT id,ts,type,COALESCE(request_id,0),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.RequestID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
