package core

// mapper.go resolves free-text category and location names from input rows to
// reference-data identifiers.
//
// Matching runs in three passes:
//  1. Exact, case-insensitive name match
//  2. Partial match: slug equality, then substring of name or slug either way
//  3. Creation of a new entry (when allowed) with a transliterated ASCII slug
//
// Entries created by a mapper are added to its cache, so repeated unmapped
// names within one session collapse onto the same new entry.

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gosimple/slug"
)

// ReferenceKind identifies a reference-data table.
type ReferenceKind string

const (
	KindCategory ReferenceKind = "category"
	KindLocation ReferenceKind = "location"
)

// MinPartialMatchLength keeps very short names from substring-matching
// unrelated entries.
const MinPartialMatchLength = 3

// Reference is a canonical reference-data entry.
type Reference struct {
	ID   string
	Kind ReferenceKind
	Name string
	Slug string
}

// ReferenceRepository looks up and creates reference data.
type ReferenceRepository interface {
	ListReferences(ctx context.Context, kind ReferenceKind) ([]Reference, error)
	CreateReference(ctx context.Context, kind ReferenceKind, name, slug string) (Reference, error)
}

// MatchKind describes how a reference was resolved.
type MatchKind string

const (
	MatchNone    MatchKind = "none"
	MatchExact   MatchKind = "exact"
	MatchPartial MatchKind = "partial"
	MatchCreated MatchKind = "created"
)

// MatchResult is the outcome of resolving one name.
type MatchResult struct {
	Reference Reference
	Kind      MatchKind
}

// Found reports whether a reference was resolved.
func (m MatchResult) Found() bool {
	return m.Kind != MatchNone && m.Reference.ID != ""
}

// Mapper resolves names against a cached view of reference data.
type Mapper struct {
	repo ReferenceRepository

	mu     sync.Mutex
	loaded map[ReferenceKind][]Reference
}

// NewMapper creates a mapper backed by repo.
func NewMapper(repo ReferenceRepository) *Mapper {
	return &Mapper{
		repo:   repo,
		loaded: make(map[ReferenceKind][]Reference),
	}
}

// Slugify derives a URL-safe ASCII slug, transliterating non-Latin scripts.
func Slugify(text string) string {
	return slug.Make(text)
}

// Resolve maps text to a reference of the given kind. A miss is reported as
// MatchNone, not as an error; errors come only from the repository.
func (m *Mapper) Resolve(ctx context.Context, kind ReferenceKind, text string, allowCreate bool) (MatchResult, error) {
	text = CleanText(text)
	if text == "" {
		return MatchResult{Kind: MatchNone}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	refs, err := m.referencesLocked(ctx, kind)
	if err != nil {
		return MatchResult{Kind: MatchNone}, err
	}

	if ref, ok := matchExact(refs, text); ok {
		return MatchResult{Reference: ref, Kind: MatchExact}, nil
	}

	textSlug := Slugify(text)
	if ref, ok := matchPartial(refs, text, textSlug); ok {
		return MatchResult{Reference: ref, Kind: MatchPartial}, nil
	}

	if !allowCreate {
		return MatchResult{Kind: MatchNone}, nil
	}
	if textSlug == "" {
		return MatchResult{Kind: MatchNone}, fmt.Errorf("create %s %q: cannot derive slug", kind, text)
	}

	ref, err := m.repo.CreateReference(ctx, kind, text, textSlug)
	if err != nil {
		return MatchResult{Kind: MatchNone}, fmt.Errorf("create %s %q: %w", kind, text, err)
	}
	m.loaded[kind] = append(m.loaded[kind], ref)

	return MatchResult{Reference: ref, Kind: MatchCreated}, nil
}

func (m *Mapper) referencesLocked(ctx context.Context, kind ReferenceKind) ([]Reference, error) {
	if refs, ok := m.loaded[kind]; ok {
		return refs, nil
	}
	refs, err := m.repo.ListReferences(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s references: %w", kind, err)
	}
	m.loaded[kind] = refs
	return refs, nil
}

func matchExact(refs []Reference, text string) (Reference, bool) {
	for _, ref := range refs {
		if strings.EqualFold(ref.Name, text) {
			return ref, true
		}
	}
	return Reference{}, false
}

func matchPartial(refs []Reference, text, textSlug string) (Reference, bool) {
	if textSlug != "" {
		for _, ref := range refs {
			if ref.Slug == textSlug {
				return ref, true
			}
		}
	}

	lower := strings.ToLower(text)
	if utf8.RuneCountInString(lower) < MinPartialMatchLength {
		return Reference{}, false
	}
	for _, ref := range refs {
		name := strings.ToLower(ref.Name)
		if utf8.RuneCountInString(name) < MinPartialMatchLength {
			continue
		}
		if strings.Contains(name, lower) || strings.Contains(lower, name) {
			return ref, true
		}
	}

	if textSlug == "" {
		return Reference{}, false
	}
	for _, ref := range refs {
		if len(ref.Slug) < MinPartialMatchLength {
			continue
		}
		if strings.Contains(ref.Slug, textSlug) || strings.Contains(textSlug, ref.Slug) {
			return ref, true
		}
	}
	return Reference{}, false
}
