package core

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readCSVRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteAuditCSV(t *testing.T) {
	sess := Session{
		Errors: []ImportError{
			{Row: 3, IdentifyingName: "row 3", Error: "name required", Data: Record{"phone": "555", "name": "", "zzz_extra": "x"}},
			{Row: 0, IdentifyingName: GeneralErrorName, Error: "import aborted: boom"},
		},
		SkippedCompanies: []SkippedRecord{
			{Row: 4, IdentifyingName: "Acme", Reason: "company already exists", Data: Record{"name": "Acme", "aaa_extra": "y"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAuditCSV(&buf, sess))

	rows := readCSVRows(t, buf.Bytes())
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"_line", "_status", "_reason", "name", "phone", "aaa_extra", "zzz_extra"}, rows[0])
	assert.Equal(t, []string{"3", "failed", "name required", "", "555", "", "x"}, rows[1])
	assert.Equal(t, []string{"0", "failed", "import aborted: boom", "", "", "", ""}, rows[2])
	assert.Equal(t, []string{"4", "skipped", "company already exists", "Acme", "", "y", ""}, rows[3])
}

func TestWriteAuditCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAuditCSV(&buf, Session{}))
	assert.Equal(t, "_line,_status,_reason\n", buf.String())
}

func TestWriteTemplate_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, FormatCSV))

	rows := readCSVRows(t, buf.Bytes())
	require.Len(t, rows, 1)
	require.Len(t, rows[0], len(Columns))
	assert.Equal(t, "external_id", rows[0][0])
	assert.Contains(t, rows[0], "name")

	// The template must parse back to zero rows with the same header.
	_, err := ParseFile("template.csv", strings.NewReader(buf.String()))
	require.NoError(t, err)
}

func TestWriteTemplate_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTemplate(&buf, FormatXLSX))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Companies", "Columns"}, f.GetSheetList())

	header, err := f.GetRows("Companies")
	require.NoError(t, err)
	require.Len(t, header, 1)
	assert.Len(t, header[0], len(Columns))

	help, err := f.GetRows("Columns")
	require.NoError(t, err)
	assert.Len(t, help, len(Columns)+1)
	assert.Equal(t, "name", help[2][0])
	assert.Equal(t, "Required", help[2][1])
}

func TestWriteTemplate_Unsupported(t *testing.T) {
	err := WriteTemplate(&bytes.Buffer{}, "ods")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
