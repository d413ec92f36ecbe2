package database

import (
	"context"
)

const listReferenceItems = `-- name: ListReferenceItems :many
SELECT id, kind, name, slug, created_at FROM reference_items
WHERE kind = $1
ORDER BY created_at, name
`

func (q *Queries) ListReferenceItems(ctx context.Context, kind string) ([]ReferenceItem, error) {
	rows, err := q.db.Query(ctx, listReferenceItems, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReferenceItem
	for rows.Next() {
		var i ReferenceItem
		if err := rows.Scan(
			&i.ID,
			&i.Kind,
			&i.Name,
			&i.Slug,
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

const upsertReferenceItem = `-- name: UpsertReferenceItem :one
INSERT INTO reference_items (kind, name, slug)
VALUES ($1, $2, $3)
ON CONFLICT (kind, slug) DO UPDATE SET slug = EXCLUDED.slug
RETURNING id, kind, name, slug, created_at
`

type UpsertReferenceItemParams struct {
	Kind string
	Name string
	Slug string
}

// UpsertReferenceItem returns the existing row when another writer created
// the same slug first.
func (q *Queries) UpsertReferenceItem(ctx context.Context, arg UpsertReferenceItemParams) (ReferenceItem, error) {
	row := q.db.QueryRow(ctx, upsertReferenceItem, arg.Kind, arg.Name, arg.Slug)
	var i ReferenceItem
	err := row.Scan(
		&i.ID,
		&i.Kind,
		&i.Name,
		&i.Slug,
		&i.CreatedAt,
	)
	return i, err
}
