package core

// # Error Codes Reference
//
// User-facing failures carry a short code that operators can quote to
// support. Codes are grouped by category:
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Import not found
//	IMP002 - Import already finished (pause/resume/cancel on a terminal session)
//	IMP003 - Unknown control action
//	IMP004 - Too many imports running
//	IMP005 - File has no data rows
//	IMP006 - Invalid import settings
//	IMP007 - Malformed import request
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unsupported file format
//	FILE002 - Missing header row
//	FILE003 - File too large / too many rows
//	FILE004 - Malformed CSV or XLSX
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Company name missing
//	VAL002 - Coordinates invalid
//	VAL003 - Required category or location missing or unknown
//	VAL004 - Strict mode rejected a warning
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key
//	DB002 - Foreign key violation
//	DB003 - Connection refused or reset
//	DB004 - Timeout
//	DB005 - Deadlock
//
// # Media Errors (MEDIA001-MEDIA099)
//
//	MEDIA001 - Image download failed
//	MEDIA002 - Image storage failed
//
// Unmatched errors map to ERR000; check the logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessages maps package errors to messages. Checked with errors.Is
// before falling back to text patterns.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrSessionNotFound, UserMessage{"Import not found", "Check the import ID or start a new import", "IMP001"}},
	{ErrSessionTerminal, UserMessage{"This import has already finished", "Start a new import to load more rows", "IMP002"}},
	{ErrInvalidTransition, UserMessage{"Unknown import action", "Use pause, resume or cancel", "IMP003"}},
	{ErrTooManyImports, UserMessage{"Too many imports are running", "Wait for a running import to finish and try again", "IMP004"}},
	{ErrNoRecords, UserMessage{"The file has no data rows", "Add at least one row below the header", "IMP005"}},
	{ErrInvalidSettings, UserMessage{"Invalid import settings", "Check the duplicate policy and image limit", "IMP006"}},
	{ErrInvalidRequest, UserMessage{"The import request could not be read", "Send a file field or a JSON body with records", "IMP007"}},
	{ErrUnsupportedFormat, UserMessage{"Unsupported file format", "Upload a .csv or .xlsx file", "FILE001"}},
	{ErrMissingHeader, UserMessage{"The file has no header row", "Put column names in the first row", "FILE002"}},
	{ErrTooManyRows, UserMessage{"The file has too many rows", "Split the file into smaller parts", "FILE003"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	// Validation
	{"strict validation", UserMessage{"Row rejected by strict validation", "Fix the reported field or turn off strict validation", "VAL004"}},
	{"name required", UserMessage{"Company name is missing", "Fill in the name column for every row", "VAL001"}},
	{"latitude", UserMessage{"Invalid coordinates", "Use decimal degrees, e.g. 40.7128", "VAL002"}},
	{"longitude", UserMessage{"Invalid coordinates", "Use decimal degrees, e.g. -74.0060", "VAL002"}},
	{"category required", UserMessage{"Category is missing", "Fill in the category column or turn off the category requirement", "VAL003"}},
	{"location required", UserMessage{"Location is missing", "Fill in the location column or turn off the location requirement", "VAL003"}},
	{"not found", UserMessage{"Category or location does not exist", "Create it first or enable auto-create", "VAL003"}},

	// File parsing
	{"parse csv", UserMessage{"The CSV file could not be read", "Check quoting and delimiters", "FILE004"}},
	{"open xlsx", UserMessage{"The Excel file could not be read", "Re-save the file as .xlsx", "FILE004"}},
	{"request body too large", UserMessage{"The file is too large", "Split the file into smaller parts", "FILE003"}},

	// Database
	{"duplicate key", UserMessage{"A record with this key already exists", "Enable overwrite or remove duplicates", "DB001"}},
	{"violates unique", UserMessage{"A record with this key already exists", "Enable overwrite or remove duplicates", "DB001"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Check category and location values", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB003"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try again later", "DB004"}},
	{"deadline exceeded", UserMessage{"Operation timed out", "Try again later", "DB004"}},

	// Media
	{"download", UserMessage{"Image could not be downloaded", "Check that the image URL is public", "MEDIA001"}},
	{"store:", UserMessage{"Image could not be stored", "Check the media storage configuration", "MEDIA002"}},
}

// defaultMessage is returned when nothing matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
