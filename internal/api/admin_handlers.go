package api

import (
	"net/http"
	"time"

	"torch/internal/export"
	"torch/internal/models"
)

// adminMember is the directory row for operators; access codes stay masked here too.
type adminMember struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	AccessCode     string        `json:"access_code"`
	Tier           models.TierID `json:"tier"`
	Founding       bool          `json:"founding"`
	HoursUsed      int           `json:"hours_used"`
	HoursScheduled int           `json:"hours_scheduled"`
	HoursRemaining int           `json:"hours_remaining"`
	Sessions       int           `json:"sessions"`
	Guests         int           `json:"guests"`
}

func (s *HTTPServer) handleAdminInquiries(w http.ResponseWriter, r *http.Request) {
	inquiries, err := s.deps.Inquiries.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if inquiries == nil {
		inquiries = []models.Inquiry{}
	}
	writeJSON(w, http.StatusOK, inquiries)
}

func (s *HTTPServer) handleAdminMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.deps.Members.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]adminMember, 0, len(members))
	for _, m := range members {
		row := adminMember{
			ID:             m.ID,
			Name:           m.Name,
			Email:          m.Email,
			AccessCode:     m.MaskedAccessCode(),
			Tier:           m.Tier,
			Founding:       m.Founding,
			HoursUsed:      m.HoursUsed,
			HoursScheduled: m.HoursScheduled,
			Sessions:       len(m.Sessions),
			Guests:         len(m.Guests),
		}
		if tier, ok := s.deps.Catalog.Get(m.Tier); ok {
			row.HoursRemaining = m.HoursRemaining(tier)
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAdminExports writes one statement workbook per member into the export directory.
func (s *HTTPServer) handleAdminExports(w http.ResponseWriter, r *http.Request) {
	if s.deps.ExportDir == "" {
		writeError(w, http.StatusServiceUnavailable, "exports disabled")
		return
	}
	members, err := s.deps.Members.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	files, err := export.ExportAll(s.deps.ExportDir, members, s.deps.Catalog, time.Now())
	if err != nil {
		s.logger.Error().Err(err).Str("dir", s.deps.ExportDir).Msg("statement export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	s.logger.Info().Int("files", len(files)).Str("dir", s.deps.ExportDir).Msg("statements exported")
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *HTTPServer) handleAdminSheetsSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		writeError(w, http.StatusServiceUnavailable, "sheets sync disabled")
		return
	}
	if err := s.deps.Sheets.EnqueueMemberSync(r.Context()); err != nil {
		s.logger.Error().Err(err).Msg("failed to enqueue member sync")
		writeError(w, http.StatusInternalServerError, "failed to enqueue sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *HTTPServer) handleAdminFailedTasks(w http.ResponseWriter, r *http.Request) {
	if s.deps.SyncQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "sync queue disabled")
		return
	}
	tasks, err := s.deps.SyncQueue.GetFailedSyncTasks(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	writeJSON(w, http.StatusOK, tasks)
}
