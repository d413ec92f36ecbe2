package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const insertImportSession = `-- name: InsertImportSession :exec
INSERT INTO import_sessions (
    id, file_name, status, settings, records, current_index,
    stats, errors, skipped, started_at, finished_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (id) DO NOTHING
`

type InsertImportSessionParams struct {
	ID           pgtype.UUID
	FileName     string
	Status       string
	Settings     []byte
	Records      []byte
	CurrentIndex int32
	Stats        []byte
	Errors       []byte
	Skipped      []byte
	StartedAt    pgtype.Timestamptz
	FinishedAt   pgtype.Timestamptz
}

func (q *Queries) InsertImportSession(ctx context.Context, arg InsertImportSessionParams) error {
	_, err := q.db.Exec(ctx, insertImportSession,
		arg.ID,
		arg.FileName,
		arg.Status,
		arg.Settings,
		arg.Records,
		arg.CurrentIndex,
		arg.Stats,
		arg.Errors,
		arg.Skipped,
		arg.StartedAt,
		arg.FinishedAt,
	)
	return err
}

const updateImportProgress = `-- name: UpdateImportProgress :execrows
UPDATE import_sessions SET
    status        = $2,
    current_index = $3,
    stats         = $4,
    errors        = $5,
    skipped       = $6,
    finished_at   = $7,
    updated_at    = now()
WHERE id = $1
  AND (status NOT IN ('cancelled', 'completed', 'failed') OR status = $2)
`

type UpdateImportProgressParams struct {
	ID           pgtype.UUID
	Status       string
	CurrentIndex int32
	Stats        []byte
	Errors       []byte
	Skipped      []byte
	FinishedAt   pgtype.Timestamptz
}

// UpdateImportProgress never moves a terminal session to another status.
func (q *Queries) UpdateImportProgress(ctx context.Context, arg UpdateImportProgressParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateImportProgress,
		arg.ID,
		arg.Status,
		arg.CurrentIndex,
		arg.Stats,
		arg.Errors,
		arg.Skipped,
		arg.FinishedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listUnfinishedImportSessions = `-- name: ListUnfinishedImportSessions :many
SELECT id, file_name, status, settings, records, current_index,
       stats, errors, skipped, started_at, finished_at, updated_at
FROM import_sessions
WHERE status IN ('running', 'paused')
ORDER BY started_at
`

func (q *Queries) ListUnfinishedImportSessions(ctx context.Context) ([]ImportSession, error) {
	rows, err := q.db.Query(ctx, listUnfinishedImportSessions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ImportSession
	for rows.Next() {
		var i ImportSession
		if err := rows.Scan(
			&i.ID,
			&i.FileName,
			&i.Status,
			&i.Settings,
			&i.Records,
			&i.CurrentIndex,
			&i.Stats,
			&i.Errors,
			&i.Skipped,
			&i.StartedAt,
			&i.FinishedAt,
			&i.UpdatedAt,
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

const deleteFinishedImportSessions = `-- name: DeleteFinishedImportSessions :execrows
DELETE FROM import_sessions
WHERE status IN ('cancelled', 'completed', 'failed')
  AND finished_at < $1
`

func (q *Queries) DeleteFinishedImportSessions(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, deleteFinishedImportSessions, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
