package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type ReferenceItem struct {
	ID        pgtype.UUID
	Kind      string
	Name      string
	Slug      string
	CreatedAt pgtype.Timestamptz
}

type CompanyImage struct {
	ID        pgtype.UUID
	CompanyID pgtype.UUID
	SourceUrl string
	Location  string
	Position  int32
	CreatedAt pgtype.Timestamptz
}

type ImportSession struct {
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
	UpdatedAt    pgtype.Timestamptz
}
