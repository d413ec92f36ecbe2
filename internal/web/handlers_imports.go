package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dirlisting/importer/internal/core"
	"github.com/dirlisting/importer/internal/logging"
)

// multipartMemory is how much of a multipart upload is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// importResponse is a full session view.
type importResponse struct {
	core.Session
	Percent int `json:"percent"`
}

// importSummary is the list view of a session, without the audit trail.
type importSummary struct {
	ID         string             `json:"id"`
	FileName   string             `json:"fileName,omitempty"`
	Status     core.SessionStatus `json:"status"`
	Stats      core.Stats         `json:"stats"`
	Percent    int                `json:"percent"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt *time.Time         `json:"finishedAt,omitempty"`
}

type startResponse struct {
	ID        string             `json:"id"`
	Status    core.SessionStatus `json:"status"`
	TotalRows int                `json:"totalRows"`
}

// startImportBody is the JSON form of an import request.
type startImportBody struct {
	FileName string           `json:"fileName"`
	Records  []map[string]any `json:"records"`
	Settings core.Settings    `json:"settings"`
}

// handleStartImport accepts either a multipart upload (field "file", optional
// JSON field "settings") or a JSON body with pre-parsed records.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)

	req, err := decodeStartRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := withSubmitter(r.Context(), r)
	id, err := s.service.Start(ctx, req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.ForSession(r.Context(), id).Info("import accepted",
		"file", req.FileName,
		"rows", len(req.Records),
	)

	w.Header().Set("Location", "/api/imports/"+id)
	writeJSONStatus(w, http.StatusAccepted, startResponse{
		ID:        id,
		Status:    core.StatusRunning,
		TotalRows: len(req.Records),
	})
}

func decodeStartRequest(r *http.Request) (core.StartRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r)
	}
	return decodeJSONBody(r)
}

func decodeMultipart(r *http.Request) (core.StartRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return core.StartRequest{}, requestError(err, "invalid form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.StartRequest{}, fmt.Errorf("%w: no file provided", core.ErrInvalidRequest)
	}
	defer file.Close()

	settings := core.DefaultSettings()
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			return core.StartRequest{}, fmt.Errorf("%w: settings: %v", core.ErrInvalidRequest, err)
		}
	}

	records, err := core.ParseFile(header.Filename, file)
	if err != nil {
		return core.StartRequest{}, requestError(err, "read file")
	}

	return core.StartRequest{
		FileName: header.Filename,
		Records:  records,
		Settings: settings,
	}, nil
}

func decodeJSONBody(r *http.Request) (core.StartRequest, error) {
	body := startImportBody{Settings: core.DefaultSettings()}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return core.StartRequest{}, requestError(err, "invalid JSON")
	}
	if len(body.Records) > core.MaxImportRows {
		return core.StartRequest{}, fmt.Errorf("%w: limit is %d", core.ErrTooManyRows, core.MaxImportRows)
	}

	records := make([]core.Record, 0, len(body.Records))
	for _, raw := range body.Records {
		records = append(records, recordFromJSON(raw))
	}

	return core.StartRequest{
		FileName: body.FileName,
		Records:  records,
		Settings: body.Settings,
	}, nil
}

// requestError keeps size and file errors intact and marks the rest as a
// malformed request.
func requestError(err error, what string) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) ||
		errors.Is(err, core.ErrUnsupportedFormat) ||
		errors.Is(err, core.ErrMissingHeader) ||
		errors.Is(err, core.ErrTooManyRows) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", core.ErrInvalidRequest, what, err)
}

// recordFromJSON stringifies JSON values and canonicalizes keys so API
// records look exactly like parsed file rows.
func recordFromJSON(raw map[string]any) core.Record {
	rec := make(core.Record, len(raw))
	for k, v := range raw {
		key := core.CanonicalHeader(k)
		if key == "" {
			continue
		}
		if existing := rec[key]; existing != "" {
			continue
		}
		rec[key] = jsonString(v)
	}
	return rec
}

func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			if s := jsonString(p); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ",")
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// handleListImports returns every known session, most recent first.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	sessions := s.service.List()
	out := make([]importSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, importSummary{
			ID:         sess.ID,
			FileName:   sess.FileName,
			Status:     sess.Status,
			Stats:      sess.Stats,
			Percent:    sess.Percent(),
			StartedAt:  sess.StartedAt,
			FinishedAt: sess.FinishedAt,
		})
	}
	writeJSON(w, out)
}

// handleGetImport returns the full session including errors and skipped rows.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Inspect(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, importResponse{Session: sess, Percent: sess.Percent()})
}

// handleControlImport pauses, resumes or cancels an import and returns the
// session as it stands after the change.
func (s *Server) handleControlImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	action := core.ControlAction(chi.URLParam(r, "action"))

	if err := s.service.Control(id, action); err != nil {
		respondError(w, r, err)
		return
	}

	sess, err := s.service.Inspect(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, importResponse{Session: sess, Percent: sess.Percent()})
}

// handleExportAudit downloads failed and skipped rows as CSV for correction.
func (s *Server) handleExportAudit(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Inspect(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := core.WriteAuditCSV(&buf, sess); err != nil {
		respondError(w, r, err)
		return
	}

	filename := fmt.Sprintf("import_%s_errors.csv", sess.ID)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(buf.Bytes())
}

// handleDownloadTemplate returns an empty import file in the requested format.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	format := core.FileFormat(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = core.FormatCSV
	}

	var buf bytes.Buffer
	if err := core.WriteTemplate(&buf, format); err != nil {
		respondError(w, r, err)
		return
	}

	contentType := "text/csv"
	if format == core.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="companies_template.%s"`, format))
	w.Write(buf.Bytes())
}

// handleHealth reports liveness and import capacity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}
