package authdb

import "context"

const insertAuthEvent = `-- name: InsertAuthEvent :exec
INSERT INTO auth_events (id, user_id, event_type, provider, data, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

type InsertAuthEventParams struct {
	ID        string
	UserID    string
	EventType string
	Provider  string
	Data      string
	CreatedAt string
}

func (q *Queries) InsertAuthEvent(ctx context.Context, arg InsertAuthEventParams) error {
	_, err := q.db.ExecContext(ctx, insertAuthEvent,
		arg.ID,
		arg.UserID,
		arg.EventType,
		arg.Provider,
		arg.Data,
		arg.CreatedAt,
	)
	return err
}

const listAuthEventsByUser = `-- name: ListAuthEventsByUser :many
SELECT id, user_id, event_type, provider, data, created_at
FROM auth_events
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`

type ListAuthEventsByUserParams struct {
	UserID string
	Limit  int64
}

func (q *Queries) ListAuthEventsByUser(ctx context.Context, arg ListAuthEventsByUserParams) ([]AuthEvent, error) {
	rows, err := q.db.QueryContext(ctx, listAuthEventsByUser, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuthEvent
	for rows.Next() {
		var i AuthEvent
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.EventType,
			&i.Provider,
			&i.Data,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
