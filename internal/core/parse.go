package core

// parse.go turns an uploaded CSV or XLSX file into records keyed by
// canonical column name.
//
// Header cells are normalised (see NormalizeHeader) and then resolved
// through the alias table, so "Company Name", "company-name" and "название"
// all land on "name". Unknown columns are kept under their normalised header.
// Fully empty rows are dropped; row numbers reported to users assume the
// header sits on file line 1.

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Upload limits.
const (
	MaxImportRows = 50000
)

// FileFormat is a supported upload format.
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXLSX FileFormat = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrMissingHeader     = errors.New("file has no header row")
	ErrTooManyRows       = errors.New("file has too many rows")
)

// Column describes one canonical import column.
type Column struct {
	Name        string
	Aliases     []string
	Required    bool
	Description string
	Example     string
}

// Columns lists the columns the validator understands, in template order.
var Columns = []Column{
	{Name: "external_id", Aliases: []string{"id", "external", "source_id", "код"}, Description: "Stable identifier from the source system; used for duplicate detection", Example: "ACME-001"},
	{Name: "name", Aliases: []string{"company", "company_name", "title", "название", "наименование", "компания"}, Required: true, Description: "Company name", Example: "Acme Bakery"},
	{Name: "description", Aliases: []string{"about", "описание"}, Description: "Free text, up to 5000 characters", Example: "Family bakery since 1990"},
	{Name: "category", Aliases: []string{"category_name", "rubric", "категория", "рубрика"}, Description: "Category name; matched against existing categories", Example: "Bakeries"},
	{Name: "location", Aliases: []string{"city", "town", "region", "город", "регион"}, Description: "Location name; matched against existing locations", Example: "Springfield"},
	{Name: "address", Aliases: []string{"street", "street_address", "адрес"}, Description: "Street address", Example: "12 Main St"},
	{Name: "phone", Aliases: []string{"telephone", "phone_number", "tel", "телефон"}, Description: "Contact phone", Example: "+1 555 0100"},
	{Name: "email", Aliases: []string{"e_mail", "mail", "почта"}, Description: "Contact email; dropped with a warning if invalid", Example: "hello@acme.test"},
	{Name: "website", Aliases: []string{"site", "url", "web", "сайт"}, Description: "Website; https:// is added when missing", Example: "acme.test"},
	{Name: "latitude", Aliases: []string{"lat", "широта"}, Description: "Decimal degrees, -90 to 90", Example: "40.7128"},
	{Name: "longitude", Aliases: []string{"lng", "lon", "long", "долгота"}, Description: "Decimal degrees, -180 to 180", Example: "-74.0060"},
	{Name: "rating", Aliases: []string{"stars", "рейтинг"}, Description: "0 to 5; clamped", Example: "4.5"},
	{Name: "images", Aliases: []string{"image", "photos", "photo", "image_urls", "фото", "изображения"}, Description: "Image URLs separated by comma, semicolon or pipe", Example: "https://acme.test/a.jpg"},
}

var headerAliases = buildHeaderAliases()

func buildHeaderAliases() map[string]string {
	m := make(map[string]string)
	for _, col := range Columns {
		m[col.Name] = col.Name
		for _, a := range col.Aliases {
			m[NormalizeHeader(a)] = col.Name
		}
	}
	return m
}

// CanonicalHeader maps a raw header cell to its column name.
func CanonicalHeader(h string) string {
	n := NormalizeHeader(h)
	if canon, ok := headerAliases[n]; ok {
		return canon
	}
	return n
}

// DetectFormat picks the parser from the file name extension.
func DetectFormat(fileName string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// ParseFile reads an upload into records, choosing the parser by file name.
func ParseFile(fileName string, r io.Reader) ([]Record, error) {
	format, err := DetectFormat(fileName)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(r)
	default:
		rows, err = readCSV(r)
	}
	if err != nil {
		return nil, err
	}
	return rowsToRecords(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = sanitizeUTF8(data)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.Comma = sniffDelimiter(data)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}

// sniffDelimiter picks ';' or tab over ',' when the header line has more of
// them. Spreadsheet exports in many locales use ';'.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingHeader
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func rowsToRecords(rows [][]string) ([]Record, error) {
	if len(rows) == 0 || isEmptyRow(rows[0]) {
		return nil, ErrMissingHeader
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = CanonicalHeader(h)
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		if len(records) >= MaxImportRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, MaxImportRows)
		}

		rec := make(Record, len(header))
		for i, key := range header {
			if key == "" || i >= len(row) {
				continue
			}
			// First non-empty value wins when two headers alias the same column.
			if existing := rec[key]; existing != "" {
				continue
			}
			rec[key] = row[i]
		}
		records = append(records, rec)
	}
	return records, nil
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
		} else {
			buf.WriteRune(r)
		}
		data = data[size:]
	}
	return buf.Bytes()
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
