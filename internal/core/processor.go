package core

import (
	"context"
	"fmt"
	"strings"
)

// RowProcessor turns one input row into exactly one outcome. Implementations
// must not panic or return errors: every problem becomes a failed outcome.
type RowProcessor interface {
	Process(ctx context.Context, index int, rec Record) RowOutcome
}

// ProcessorFactory builds the row processor for a session.
type ProcessorFactory func(settings Settings) RowProcessor

// NaturalKey identifies an existing company for duplicate detection.
// ExternalID wins when present; otherwise name plus location.
type NaturalKey struct {
	ExternalID string
	Name       string
	LocationID string
}

// CompanyRepository persists company records.
type CompanyRepository interface {
	FindCompany(ctx context.Context, key NaturalKey) (id string, found bool, err error)
	CreateCompany(ctx context.Context, c Company) (string, error)
	UpdateCompany(ctx context.Context, id string, c Company) error
}

// MediaSource fetches a row's images.
type MediaSource interface {
	Fetch(ctx context.Context, companyID string, urls []string) MediaResult
}

// CompanyProcessor validates, maps, persists and enriches one company row.
type CompanyProcessor struct {
	companies CompanyRepository
	mapper    *Mapper
	media     MediaSource
	settings  Settings
}

// NewCompanyProcessor creates a processor for one session. media may be nil
// when image download is unavailable.
func NewCompanyProcessor(companies CompanyRepository, mapper *Mapper, media MediaSource, settings Settings) *CompanyProcessor {
	return &CompanyProcessor{
		companies: companies,
		mapper:    mapper,
		media:     media,
		settings:  settings,
	}
}

// NewCompanyProcessorFactory returns a factory that gives every session its
// own mapper cache over the shared repositories.
func NewCompanyProcessorFactory(companies CompanyRepository, refs ReferenceRepository, media MediaSource) ProcessorFactory {
	return func(settings Settings) RowProcessor {
		return NewCompanyProcessor(companies, NewMapper(refs), media, settings)
	}
}

// Process implements RowProcessor.
func (p *CompanyProcessor) Process(ctx context.Context, index int, rec Record) (out RowOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failure(fmt.Sprintf("unexpected error: %v", r))
		}
	}()

	res, err := ValidateRecord(rec, p.settings)
	if err != nil {
		return failure(err.Error())
	}
	c := res.Company
	warnings := res.Warnings

	categoryID, err := p.resolve(ctx, KindCategory, c.Category, p.settings.AutoCreateCategories, p.settings.RequireCategory)
	if err != nil {
		return failure(err.Error())
	}
	locationID, err := p.resolve(ctx, KindLocation, c.Location, p.settings.AutoCreateLocations, p.settings.RequireLocation)
	if err != nil {
		return failure(err.Error())
	}
	c.CategoryID, c.LocationID = categoryID, locationID

	key := NaturalKey{
		ExternalID: c.ExternalID,
		Name:       strings.ToLower(c.Name),
		LocationID: c.LocationID,
	}

	id, found, err := p.companies.FindCompany(ctx, key)
	if err != nil {
		return failure(fmt.Sprintf("lookup company: %v", err))
	}

	switch {
	case found && p.settings.DuplicatePolicy != DuplicateUpdate:
		return RowOutcome{
			Skipped:   true,
			Reason:    "company already exists and overwrite is disabled",
			Warnings:  warnings,
			CompanyID: id,
		}
	case found:
		if err := p.companies.UpdateCompany(ctx, id, c); err != nil {
			return failure(fmt.Sprintf("update company: %v", err))
		}
	default:
		id, err = p.companies.CreateCompany(ctx, c)
		if err != nil {
			return failure(fmt.Sprintf("create company: %v", err))
		}
	}

	out = RowOutcome{
		Success:   true,
		Warnings:  warnings,
		CompanyID: id,
	}

	if p.settings.DownloadImages && p.media != nil && len(c.ImageURLs) > 0 {
		media := p.media.Fetch(ctx, id, c.ImageURLs)
		out.ImagesDownloaded = media.Downloaded
		out.ImagesFailed = media.Failed
	}

	return out
}

// resolve maps a reference name to an id. An empty name fails only when the
// reference is required; a name that cannot be resolved always fails.
func (p *CompanyProcessor) resolve(ctx context.Context, kind ReferenceKind, name string, allowCreate, required bool) (string, error) {
	if name == "" {
		if required {
			return "", fmt.Errorf("%s required", kind)
		}
		return "", nil
	}

	match, err := p.mapper.Resolve(ctx, kind, name, allowCreate)
	if err != nil {
		return "", fmt.Errorf("resolve %s %q: %w", kind, name, err)
	}
	if !match.Found() {
		return "", fmt.Errorf("%s %q not found", kind, name)
	}
	return match.Reference.ID, nil
}
