package database

// repository.go adapts the queries to the importer's storage interfaces.

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dirlisting/importer/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the importer tables when they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Repository implements core.ReferenceRepository, core.CompanyRepository,
// core.ImageRepository and core.SessionSnapshotter on Postgres.
type Repository struct {
	q *Queries
}

// NewRepository creates a repository over db.
func NewRepository(db DBTX) *Repository {
	return &Repository{q: New(db)}
}

var (
	_ core.ReferenceRepository = (*Repository)(nil)
	_ core.CompanyRepository   = (*Repository)(nil)
	_ core.ImageRepository     = (*Repository)(nil)
	_ core.SessionSnapshotter  = (*Repository)(nil)
)

// ----------------------------------------------------------------------------
// Reference data
// ----------------------------------------------------------------------------

func (r *Repository) ListReferences(ctx context.Context, kind core.ReferenceKind) ([]core.Reference, error) {
	items, err := r.q.ListReferenceItems(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	refs := make([]core.Reference, len(items))
	for i, it := range items {
		refs[i] = toReference(it)
	}
	return refs, nil
}

func (r *Repository) CreateReference(ctx context.Context, kind core.ReferenceKind, name, slug string) (core.Reference, error) {
	item, err := r.q.UpsertReferenceItem(ctx, UpsertReferenceItemParams{
		Kind: string(kind),
		Name: name,
		Slug: slug,
	})
	if err != nil {
		return core.Reference{}, fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return toReference(item), nil
}

func toReference(it ReferenceItem) core.Reference {
	return core.Reference{
		ID:   core.PgUUIDToString(it.ID),
		Kind: core.ReferenceKind(it.Kind),
		Name: it.Name,
		Slug: it.Slug,
	}
}

// ----------------------------------------------------------------------------
// Companies
// ----------------------------------------------------------------------------

func (r *Repository) FindCompany(ctx context.Context, key core.NaturalKey) (string, bool, error) {
	var (
		id  pgtype.UUID
		err error
	)
	if key.ExternalID != "" {
		id, err = r.q.FindCompanyByExternalID(ctx, core.ToPgText(key.ExternalID))
	} else {
		id, err = r.q.FindCompanyByNameLocation(ctx, FindCompanyByNameLocationParams{
			NameKey:    strings.ToLower(key.Name),
			LocationID: core.ToPgUUID(key.LocationID),
		})
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return core.PgUUIDToString(id), true, nil
}

func (r *Repository) CreateCompany(ctx context.Context, c core.Company) (string, error) {
	id, err := r.q.InsertCompany(ctx, companyParams(c))
	if err != nil {
		return "", err
	}
	return core.PgUUIDToString(id), nil
}

func (r *Repository) UpdateCompany(ctx context.Context, id string, c core.Company) error {
	return r.q.UpdateCompany(ctx, UpdateCompanyParams{
		ID:                  core.ToPgUUID(id),
		InsertCompanyParams: companyParams(c),
	})
}

func companyParams(c core.Company) InsertCompanyParams {
	return InsertCompanyParams{
		ExternalID:  core.ToPgText(c.ExternalID),
		Name:        c.Name,
		NameKey:     strings.ToLower(c.Name),
		Description: core.ToPgText(c.Description),
		CategoryID:  core.ToPgUUID(c.CategoryID),
		LocationID:  core.ToPgUUID(c.LocationID),
		Address:     core.ToPgText(c.Address),
		Phone:       core.ToPgText(c.Phone),
		Email:       core.ToPgText(c.Email),
		Website:     core.ToPgText(c.Website),
		Latitude:    core.ToPgFloat8(c.Latitude),
		Longitude:   core.ToPgFloat8(c.Longitude),
		Rating:      core.ToPgFloat8(c.Rating),
	}
}

func (r *Repository) AttachImage(ctx context.Context, companyID, sourceURL, location string, position int) error {
	return r.q.InsertCompanyImage(ctx, InsertCompanyImageParams{
		CompanyID: core.ToPgUUID(companyID),
		SourceUrl: sourceURL,
		Location:  location,
		Position:  int32(position),
	})
}

// ----------------------------------------------------------------------------
// Session snapshots
// ----------------------------------------------------------------------------

func (r *Repository) InsertSession(ctx context.Context, s core.Session) error {
	p, err := encodeProgress(s)
	if err != nil {
		return err
	}
	settings, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	records, err := json.Marshal(s.Records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	return r.q.InsertImportSession(ctx, InsertImportSessionParams{
		ID:           p.ID,
		FileName:     s.FileName,
		Status:       p.Status,
		Settings:     settings,
		Records:      records,
		CurrentIndex: p.CurrentIndex,
		Stats:        p.Stats,
		Errors:       p.Errors,
		Skipped:      p.Skipped,
		StartedAt:    pgtype.Timestamptz{Time: s.StartedAt, Valid: true},
		FinishedAt:   p.FinishedAt,
	})
}

func (r *Repository) SaveProgress(ctx context.Context, s core.Session) error {
	p, err := encodeProgress(s)
	if err != nil {
		return err
	}
	_, err = r.q.UpdateImportProgress(ctx, p)
	return err
}

func (r *Repository) LoadUnfinished(ctx context.Context) ([]core.Session, error) {
	rows, err := r.q.ListUnfinishedImportSessions(ctx)
	if err != nil {
		return nil, err
	}

	sessions := make([]core.Session, 0, len(rows))
	for _, row := range rows {
		s, err := decodeSession(row)
		if err != nil {
			return nil, fmt.Errorf("decode session %s: %w", core.PgUUIDToString(row.ID), err)
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// PurgeFinished deletes stored terminal sessions that finished before cutoff.
func (r *Repository) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.q.DeleteFinishedImportSessions(ctx, pgtype.Timestamptz{Time: cutoff, Valid: true})
}

func encodeProgress(s core.Session) (UpdateImportProgressParams, error) {
	id := core.ToPgUUID(s.ID)
	if !id.Valid {
		return UpdateImportProgressParams{}, fmt.Errorf("invalid session id %q", s.ID)
	}

	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return UpdateImportProgressParams{}, fmt.Errorf("encode stats: %w", err)
	}
	errs, err := json.Marshal(nonNil(s.Errors))
	if err != nil {
		return UpdateImportProgressParams{}, fmt.Errorf("encode errors: %w", err)
	}
	skipped, err := json.Marshal(nonNil(s.SkippedCompanies))
	if err != nil {
		return UpdateImportProgressParams{}, fmt.Errorf("encode skipped: %w", err)
	}

	var finished pgtype.Timestamptz
	if s.FinishedAt != nil {
		finished = pgtype.Timestamptz{Time: *s.FinishedAt, Valid: true}
	}

	return UpdateImportProgressParams{
		ID:           id,
		Status:       string(s.Status),
		CurrentIndex: int32(s.CurrentIndex),
		Stats:        stats,
		Errors:       errs,
		Skipped:      skipped,
		FinishedAt:   finished,
	}, nil
}

func decodeSession(row ImportSession) (core.Session, error) {
	s := core.Session{
		ID:           core.PgUUIDToString(row.ID),
		FileName:     row.FileName,
		Status:       core.SessionStatus(row.Status),
		CurrentIndex: int(row.CurrentIndex),
		StartedAt:    row.StartedAt.Time,
	}
	if row.FinishedAt.Valid {
		t := row.FinishedAt.Time
		s.FinishedAt = &t
	}

	for _, f := range []struct {
		name string
		data []byte
		dst  any
	}{
		{"settings", row.Settings, &s.Settings},
		{"records", row.Records, &s.Records},
		{"stats", row.Stats, &s.Stats},
		{"errors", row.Errors, &s.Errors},
		{"skipped", row.Skipped, &s.SkippedCompanies},
	} {
		if len(f.data) == 0 {
			continue
		}
		if err := json.Unmarshal(f.data, f.dst); err != nil {
			return core.Session{}, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return s, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
