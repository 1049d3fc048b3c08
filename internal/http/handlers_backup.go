package http

import (
	"io"
	"net/http"
)

// handleExportBackup streams the full snapshot as a downloadable JSON file.
func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	data, err := s.backup.ExportJSON(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tally-backup.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleRestoreBackup replaces the entire ledger with the posted snapshot.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	// Backups are small; cap the body to catch runaway uploads.
	data, err := io.ReadAll(io.LimitReader(r.Body, 32<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	if err := s.backup.ImportJSON(r.Context(), data); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePurge wipes the entire ledger.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	if err := s.backup.ClearAll(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
