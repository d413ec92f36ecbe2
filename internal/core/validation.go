package core

// validation.go checks and normalizes a company record before it is persisted.
//
// Only two kinds of problems reject a row outright:
//  1. A missing identity field (empty name)
//  2. A value that is out of range and cannot be coerced (coordinates)
//
// Everything else is repaired in place: overlong text is truncated, ratings are
// clamped, malformed optional contact fields are dropped. Each repair produces
// a warning the caller may surface. With strict validation any warning fails
// the row instead.

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

// Field limits for company records.
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 5000
	MaxAddressLength     = 500
	MaxPhoneLength       = 50
	MinRating            = 0.0
	MaxRating            = 5.0
)

// Company is a validated, normalized business record ready for persistence.
type Company struct {
	ExternalID  string
	Name        string
	Description string
	Category    string
	Location    string
	Address     string
	Phone       string
	Email       string
	Website     string
	Latitude    *float64
	Longitude   *float64
	Rating      *float64
	ImageURLs   []string

	CategoryID string
	LocationID string
}

// ValidationError represents a single validation error for a field.
type ValidationError struct {
	Field   string // Field/column name
	Value   string // The invalid value
	Message string // Human-readable error message
}

func (e ValidationError) Error() string {
	if e.Field != "" && !strings.HasPrefix(e.Message, e.Field) {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ValidationResult contains the normalized record and any repairs made.
type ValidationResult struct {
	Company  Company
	Warnings []string
}

// ValidateRecord validates and normalizes one record.
func ValidateRecord(rec Record, settings Settings) (ValidationResult, error) {
	var res ValidationResult
	c := &res.Company

	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	c.Name = CleanText(rec.Get("name"))
	if c.Name == "" {
		return res, ValidationError{Field: "name", Message: "name required"}
	}
	if s, cut := Truncate(c.Name, MaxNameLength); cut {
		c.Name = s
		warn("name truncated to %d characters", MaxNameLength)
	}

	c.ExternalID = CleanCell(rec.Get("external_id"))
	c.Category = CleanText(rec.Get("category"))
	c.Location = CleanText(rec.Get("location"))

	c.Description = CleanText(rec.Get("description"))
	if s, cut := Truncate(c.Description, MaxDescriptionLength); cut {
		c.Description = s
		warn("description truncated to %d characters", MaxDescriptionLength)
	}

	c.Address = CleanText(rec.Get("address"))
	if s, cut := Truncate(c.Address, MaxAddressLength); cut {
		c.Address = s
		warn("address truncated to %d characters", MaxAddressLength)
	}

	c.Phone = normalizePhone(rec.Get("phone"))
	if s, cut := Truncate(c.Phone, MaxPhoneLength); cut {
		c.Phone = s
		warn("phone truncated to %d characters", MaxPhoneLength)
	}

	if raw := CleanCell(rec.Get("email")); raw != "" {
		addr, err := mail.ParseAddress(raw)
		if err != nil {
			warn("email %q dropped: invalid format", raw)
		} else {
			c.Email = strings.ToLower(addr.Address)
		}
	}

	if raw := CleanCell(rec.Get("website")); raw != "" {
		site, ok := normalizeWebsite(raw)
		if !ok {
			warn("website %q dropped: invalid URL", raw)
		} else {
			c.Website = site
		}
	}

	lat, err := parseCoordinate(rec.Get("latitude"), "latitude", 90)
	if err != nil {
		return res, err
	}
	lng, err := parseCoordinate(rec.Get("longitude"), "longitude", 180)
	if err != nil {
		return res, err
	}
	c.Latitude, c.Longitude = lat, lng

	if raw := CleanCell(rec.Get("rating")); raw != "" {
		r, ok := ParseDecimal(raw)
		switch {
		case !ok:
			warn("rating %q dropped: not a number", raw)
		case r < MinRating:
			r = MinRating
			c.Rating = &r
			warn("rating clamped to %.0f", MinRating)
		case r > MaxRating:
			r = MaxRating
			c.Rating = &r
			warn("rating clamped to %.0f", MaxRating)
		default:
			c.Rating = &r
		}
	}

	c.ImageURLs = SplitImageURLs(rec.Get("images"))
	if settings.MaxImagesPerRow > 0 && len(c.ImageURLs) > settings.MaxImagesPerRow {
		warn("only the first %d of %d images kept", settings.MaxImagesPerRow, len(c.ImageURLs))
		c.ImageURLs = c.ImageURLs[:settings.MaxImagesPerRow]
	}

	if settings.StrictValidation && len(res.Warnings) > 0 {
		return res, ValidationError{Message: "strict validation: " + res.Warnings[0]}
	}

	return res, nil
}

// SplitImageURLs splits an images cell on commas, semicolons, pipes or
// whitespace, dropping empties and duplicates.
func SplitImageURLs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	seen := make(map[string]bool, len(fields))
	var urls []string
	for _, f := range fields {
		f = CleanCell(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		urls = append(urls, f)
	}
	return urls
}

func parseCoordinate(raw, field string, limit float64) (*float64, error) {
	raw = CleanCell(raw)
	if raw == "" {
		return nil, nil
	}
	v, ok := ParseDecimal(raw)
	if !ok {
		return nil, ValidationError{Field: field, Value: raw, Message: fmt.Sprintf("invalid %s %q", field, raw)}
	}
	if v < -limit || v > limit {
		return nil, ValidationError{Field: field, Value: raw, Message: fmt.Sprintf("%s %q out of range", field, raw)}
	}
	return &v, nil
}

func normalizePhone(s string) string {
	s = CleanText(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '+', r == '(', r == ')', r == '-', r == ' ':
			return r
		case r == ',' || r == ';':
			return ','
		default:
			return -1
		}
	}, s)
	return strings.Trim(whitespaceRun.ReplaceAllString(s, " "), " ,")
}

func normalizeWebsite(raw string) (string, bool) {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
