package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"torch/internal/catalog"
	"torch/internal/config"
	"torch/internal/domain"
	"torch/internal/export"
	"torch/internal/models"
	"torch/internal/service"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// MemberSyncer schedules a full roster push to the spreadsheet.
type MemberSyncer interface {
	EnqueueMemberSync(ctx context.Context) error
}

// FailedTaskLister exposes dead-lettered outbox tasks.
type FailedTaskLister interface {
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
}

// Deps are the portal services behind the HTTP API. Billing, DB, Sheets and ExportDir are optional.
type Deps struct {
	Sessions  *service.SessionStore
	Bookings  *service.BookingEngine
	Guests    *service.GuestRegistrar
	Inquiries *service.InquiryService
	Billing   *service.BillingService
	Concierge domain.Concierge
	Catalog   *catalog.Catalog
	Members   domain.MemberRepository
	DB        Pinger
	Sheets    MemberSyncer
	SyncQueue FailedTaskLister
	ExportDir string
	// Today pins the calendar's notion of "today"; nil means time.Now.
	Today service.Clock
}

// HTTPServer exposes the member portal as a JSON API.
type HTTPServer struct {
	cfg    *config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger

	writeStatement func(w io.Writer, member *models.Member, tier models.Tier, generated time.Time) error
}

func NewHTTPServer(cfg *config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if deps.Today == nil {
		deps.Today = time.Now
	}

	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger, writeStatement: export.WriteStatement}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	srv.routes(mux)

	handler := loggingMiddleware(logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/v1/session/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/session/logout", s.handleLogout)
	mux.HandleFunc("GET /api/v1/session", s.handleSession)

	mux.HandleFunc("POST /api/v1/site/login", s.handleSiteLogin)
	mux.HandleFunc("POST /api/v1/site/inquiries", s.handleInquiry)

	mux.HandleFunc("GET /api/v1/me", s.handleDashboard)
	mux.HandleFunc("GET /api/v1/me/statement", s.handleStatement)
	mux.HandleFunc("GET /api/v1/calendar", s.handleCalendar)
	mux.HandleFunc("POST /api/v1/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/preview", s.handleBookingPreview)
	mux.HandleFunc("GET /api/v1/guests", s.handleListGuests)
	mux.HandleFunc("POST /api/v1/guests", s.handleRegisterGuest)
	mux.HandleFunc("DELETE /api/v1/guests", s.handleRemoveGuest)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	mux.HandleFunc("GET /api/v1/billing", s.handleBillingSummary)
	mux.HandleFunc("GET /api/v1/billing/config", s.handleBillingConfig)
	mux.HandleFunc("GET /api/v1/billing/cards", s.handleListCards)
	mux.HandleFunc("POST /api/v1/billing/cards", s.handleSaveCard)

	mux.HandleFunc("POST /api/v1/concierge", s.handleConcierge)
	mux.HandleFunc("GET /api/v1/tiers", s.handleTiers)

	mux.HandleFunc("GET /api/v1/admin/inquiries", s.handleAdminInquiries)
	mux.HandleFunc("GET /api/v1/admin/members", s.handleAdminMembers)
	mux.HandleFunc("POST /api/v1/admin/exports", s.handleAdminExports)
	mux.HandleFunc("POST /api/v1/admin/sheets/sync", s.handleAdminSheetsSync)
	mux.HandleFunc("GET /api/v1/admin/sheets/failed", s.handleAdminFailedTasks)
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeServiceError maps a service error to a status code and the member-facing message.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var providerErr *service.ProviderError

	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, service.ErrNotLoggedIn),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrEmailNotFound),
		errors.Is(err, service.ErrInvalidAccessCode):
		status = http.StatusUnauthorized
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
	case errors.Is(err, service.ErrUnknownSession):
		status = http.StatusNotFound
	case isValidationError(err):
	default:
		requestLogger(r, s.logger).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		status = http.StatusInternalServerError
	}
	writeError(w, status, service.UserMessage(err))
}

func isValidationError(err error) bool {
	for _, target := range []error{
		service.ErrNoDateSelected,
		service.ErrInvalidDate,
		service.ErrMissingTimeRange,
		service.ErrInvalidTimeRange,
		service.ErrGuestLimitExceeded,
		service.ErrInsufficientHours,
		service.ErrMissingGuestDetails,
		service.ErrMissingInquiryFields,
		service.ErrInvalidEmail,
		service.ErrMissingCardToken,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
