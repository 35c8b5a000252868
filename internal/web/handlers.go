package web

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/JonMunkholm/equipment-analytics/internal/logging"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// handleUpload ingests one CSV sent as the multipart field "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(r)
	if !ok {
		s.respondError(w, r, errUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, r, errFileTooLarge)
			return
		}
		s.respondError(w, r, errNoFile)
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		s.respondError(w, r, errNotCSV)
		return
	}

	ctx, cancel := context.WithTimeout(WithRequestMetadata(r.Context(), r), s.cfg.Upload.Timeout)
	defer cancel()

	ds, err := s.service.Ingest(ctx, userID, name, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, core.SummaryResult{DatasetID: ds.ID, Summary: ds.Summary})
}

// handleSummary returns the stored summary, or a summary of the first
// ?limit= rows when limit is a positive integer.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(r)
	if !ok {
		s.respondError(w, r, errUnauthorized)
		return
	}
	datasetID, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.service.Summary(r.Context(), userID, datasetID, r.URL.Query().Get("limit"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRows returns the stored rows in file order.
func (s *Server) handleRows(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(r)
	if !ok {
		s.respondError(w, r, errUnauthorized)
		return
	}
	datasetID, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	page, err := s.service.Rows(r.Context(), userID, datasetID, r.URL.Query().Get("limit"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleHistory lists the user's retained datasets, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(r)
	if !ok {
		s.respondError(w, r, errUnauthorized)
		return
	}

	datasets, err := s.service.History(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if datasets == nil {
		datasets = []core.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

// handleReport renders the dataset's PDF and serves it as an attachment
// named after the user's report number.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(r)
	if !ok {
		s.respondError(w, r, errUnauthorized)
		return
	}
	datasetID, err := datasetParam(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rf, err := s.service.GetOrCreateReport(r.Context(), userID, datasetID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rf.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(rf.PDF)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rf.PDF); err != nil {
		logging.FromContext(r.Context()).Warn("report write failed", "dataset_id", datasetID, "error", err)
	}
}

// handleHistoryPage renders the HTML history view.
func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUser(r)
	if !ok {
		s.respondError(w, r, errUnauthorized)
		return
	}

	datasets, err := s.service.History(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := HistoryPage(datasets, s.service.Keep()).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Warn("render history page", "error", err)
	}
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status  string                   `json:"status"`
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleHealth reports liveness and upload slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Uploads: s.service.Limiter().Status(),
	})
}
