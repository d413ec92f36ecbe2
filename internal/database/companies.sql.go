package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const findCompanyByExternalID = `-- name: FindCompanyByExternalID :one
SELECT id FROM companies
WHERE external_id = $1
LIMIT 1
`

func (q *Queries) FindCompanyByExternalID(ctx context.Context, externalID pgtype.Text) (pgtype.UUID, error) {
	row := q.db.QueryRow(ctx, findCompanyByExternalID, externalID)
	var id pgtype.UUID
	err := row.Scan(&id)
	return id, err
}

const findCompanyByNameLocation = `-- name: FindCompanyByNameLocation :one
SELECT id FROM companies
WHERE name_key = $1
  AND location_id IS NOT DISTINCT FROM $2
ORDER BY created_at
LIMIT 1
`

type FindCompanyByNameLocationParams struct {
	NameKey    string
	LocationID pgtype.UUID
}

func (q *Queries) FindCompanyByNameLocation(ctx context.Context, arg FindCompanyByNameLocationParams) (pgtype.UUID, error) {
	row := q.db.QueryRow(ctx, findCompanyByNameLocation, arg.NameKey, arg.LocationID)
	var id pgtype.UUID
	err := row.Scan(&id)
	return id, err
}

const insertCompany = `-- name: InsertCompany :one
INSERT INTO companies (
    external_id, name, name_key, description, category_id, location_id,
    address, phone, email, website, latitude, longitude, rating
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)
RETURNING id
`

type InsertCompanyParams struct {
	ExternalID  pgtype.Text
	Name        string
	NameKey     string
	Description pgtype.Text
	CategoryID  pgtype.UUID
	LocationID  pgtype.UUID
	Address     pgtype.Text
	Phone       pgtype.Text
	Email       pgtype.Text
	Website     pgtype.Text
	Latitude    pgtype.Float8
	Longitude   pgtype.Float8
	Rating      pgtype.Float8
}

func (q *Queries) InsertCompany(ctx context.Context, arg InsertCompanyParams) (pgtype.UUID, error) {
	row := q.db.QueryRow(ctx, insertCompany,
		arg.ExternalID,
		arg.Name,
		arg.NameKey,
		arg.Description,
		arg.CategoryID,
		arg.LocationID,
		arg.Address,
		arg.Phone,
		arg.Email,
		arg.Website,
		arg.Latitude,
		arg.Longitude,
		arg.Rating,
	)
	var id pgtype.UUID
	err := row.Scan(&id)
	return id, err
}

const updateCompany = `-- name: UpdateCompany :exec
UPDATE companies SET
    external_id = COALESCE($2, external_id),
    name        = $3,
    name_key    = $4,
    description = COALESCE($5, description),
    category_id = COALESCE($6, category_id),
    location_id = COALESCE($7, location_id),
    address     = COALESCE($8, address),
    phone       = COALESCE($9, phone),
    email       = COALESCE($10, email),
    website     = COALESCE($11, website),
    latitude    = COALESCE($12, latitude),
    longitude   = COALESCE($13, longitude),
    rating      = COALESCE($14, rating),
    updated_at  = now()
WHERE id = $1
`

type UpdateCompanyParams struct {
	ID pgtype.UUID
	InsertCompanyParams
}

// UpdateCompany overwrites the name and every supplied field; empty fields
// keep their stored value.
func (q *Queries) UpdateCompany(ctx context.Context, arg UpdateCompanyParams) error {
	_, err := q.db.Exec(ctx, updateCompany,
		arg.ID,
		arg.ExternalID,
		arg.Name,
		arg.NameKey,
		arg.Description,
		arg.CategoryID,
		arg.LocationID,
		arg.Address,
		arg.Phone,
		arg.Email,
		arg.Website,
		arg.Latitude,
		arg.Longitude,
		arg.Rating,
	)
	return err
}

const insertCompanyImage = `-- name: InsertCompanyImage :exec
INSERT INTO company_images (company_id, source_url, location, position)
VALUES ($1, $2, $3, $4)
`

type InsertCompanyImageParams struct {
	CompanyID pgtype.UUID
	SourceUrl string
	Location  string
	Position  int32
}

func (q *Queries) InsertCompanyImage(ctx context.Context, arg InsertCompanyImageParams) error {
	_, err := q.db.Exec(ctx, insertCompanyImage,
		arg.CompanyID,
		arg.SourceUrl,
		arg.Location,
		arg.Position,
	)
	return err
}
