package core

import (
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of an import session.
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusCancelled SessionStatus = "cancelled"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// RowNumberOffset converts a zero-based record index into the row number an
// operator sees in the source file: one for the header, one for 1-based display.
const RowNumberOffset = 2

// GeneralErrorName labels session-level errors that are not tied to a row.
const GeneralErrorName = "general"

// Record is one parsed input row keyed by normalized column name.
type Record map[string]string

// Get returns the trimmed value for a column, tolerating header variations.
func (r Record) Get(key string) string {
	if v, ok := r[key]; ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(r[NormalizeHeader(key)])
}

// DuplicatePolicy decides what happens when a row's natural key already exists.
type DuplicatePolicy string

const (
	DuplicateSkip   DuplicatePolicy = "skip"
	DuplicateUpdate DuplicatePolicy = "update"
)

// Settings control how a session treats its rows. Immutable once the session starts.
type Settings struct {
	StrictValidation     bool            `json:"strictValidation"`
	AutoCreateCategories bool            `json:"autoCreateCategories"`
	AutoCreateLocations  bool            `json:"autoCreateLocations"`
	RequireCategory      bool            `json:"requireCategory"`
	RequireLocation      bool            `json:"requireLocation"`
	DuplicatePolicy      DuplicatePolicy `json:"duplicatePolicy"`
	DownloadImages       bool            `json:"downloadImages"`
	MaxImagesPerRow      int             `json:"maxImagesPerRow"`
}

// DefaultSettings returns the settings used when a caller supplies none.
func DefaultSettings() Settings {
	return Settings{
		AutoCreateCategories: true,
		AutoCreateLocations:  true,
		DuplicatePolicy:      DuplicateSkip,
		MaxImagesPerRow:      10,
	}
}

// Stats are the running tallies of a session.
type Stats struct {
	TotalRows         int `json:"totalRows"`
	ProcessedRows     int `json:"processedRows"`
	SuccessfulImports int `json:"successfulImports"`
	FailedImports     int `json:"failedImports"`
	SkippedRows       int `json:"skippedRows"`
	DownloadedImages  int `json:"downloadedImages"`
	FailedImages      int `json:"failedImages"`
}

// ImportError records a row that failed.
type ImportError struct {
	Row             int    `json:"row"`
	IdentifyingName string `json:"companyName"`
	Error           string `json:"error"`
	Data            Record `json:"data,omitempty"`
}

// SkippedRecord records a row that was deliberately not imported.
type SkippedRecord struct {
	Row             int    `json:"row"`
	IdentifyingName string `json:"companyName"`
	Reason          string `json:"reason"`
	Data            Record `json:"data,omitempty"`
}

// Session is the unit of work for one uploaded file.
type Session struct {
	ID               string          `json:"id"`
	FileName         string          `json:"fileName,omitempty"`
	Status           SessionStatus   `json:"status"`
	Records          []Record        `json:"-"`
	Settings         Settings        `json:"settings"`
	CurrentIndex     int             `json:"currentIndex"`
	Stats            Stats           `json:"stats"`
	Errors           []ImportError   `json:"errors"`
	SkippedCompanies []SkippedRecord `json:"skippedCompanies"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       *time.Time      `json:"finishedAt,omitempty"`
}

// Percent returns processing progress as a percentage (0-100).
func (s Session) Percent() int {
	if s.Stats.TotalRows == 0 {
		return 0
	}
	return (s.Stats.ProcessedRows * 100) / s.Stats.TotalRows
}

// clone returns a deep copy so callers never share slices with the store.
// Records are write-once after creation, so the backing slice is shared.
func (s *Session) clone() Session {
	c := *s
	c.Errors = append(make([]ImportError, 0, len(s.Errors)), s.Errors...)
	c.SkippedCompanies = append(make([]SkippedRecord, 0, len(s.SkippedCompanies)), s.SkippedCompanies...)
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// RowOutcome is the Row Processor's verdict for a single row. Exactly one of
// Success, Skipped or failure (neither set) holds.
type RowOutcome struct {
	Success          bool     `json:"success"`
	Skipped          bool     `json:"skipped"`
	Error            string   `json:"error,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	CompanyID        string   `json:"companyId,omitempty"`
	ImagesDownloaded int      `json:"imagesDownloaded"`
	ImagesFailed     int      `json:"imagesFailed"`
}

// Failed reports whether the outcome is a failure.
func (o RowOutcome) Failed() bool {
	return !o.Success && !o.Skipped
}

func failure(msg string) RowOutcome {
	return RowOutcome{Error: msg}
}
