package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"torch/internal/catalog"
	"torch/internal/config"
	"torch/internal/events"
	"torch/internal/models"
	"torch/internal/repository"
	"torch/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

type fakeSyncer struct {
	calls int
	err   error
}

func (s *fakeSyncer) EnqueueMemberSync(context.Context) error {
	s.calls++
	return s.err
}

type fakeFailedTasks []models.SyncTask

func (f fakeFailedTasks) GetFailedSyncTasks(context.Context) ([]models.SyncTask, error) {
	return f, nil
}

type testServer struct {
	srv       *HTTPServer
	handler   http.Handler
	directory *repository.StaticDirectory
	syncer    *fakeSyncer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	cat := catalog.Default()
	kv := repository.NewMemoryStore()
	directory := repository.NewStaticDirectory(repository.DemoMembers())
	bus := events.NewEventBus()

	sessions := service.NewSessionStore(kv, directory, bus, models.LoginHandoffTTL, &logger)
	inquiries := service.NewInquiryService(kv, bus, nil, &logger)
	syncer := &fakeSyncer{}

	cfg := &config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true, Port: 0},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys:      []config.APIClientKey{{Key: "ops", Extra: "ops-extra", Name: "ops"}},
		},
	}

	srv := NewHTTPServer(cfg, Deps{
		Sessions:  sessions,
		Bookings:  service.NewBookingEngine(cat, sessions, service.NewSequenceGenerator("S", 100), bus, nil, &logger),
		Guests:    service.NewGuestRegistrar(cat, sessions, service.NewSequenceGenerator("G", 10), bus, &logger),
		Inquiries: inquiries,
		Billing:   service.NewBillingService(nil, sessions, cat, config.SquareConfig{}, bus, &logger),
		Concierge: service.NewKeywordConcierge(nil),
		Catalog:   cat,
		Members:   directory,
		Sheets:    syncer,
		SyncQueue: fakeFailedTasks{{ID: 7, TaskType: models.SyncTaskAppendSession, RefID: "S101", Status: "failed"}},
		ExportDir: t.TempDir(),
		Today:     func() time.Time { return testToday },
	}, &logger)

	return &testServer{srv: srv, handler: srv.Handler(), directory: directory, syncer: syncer}
}

// do sends a JSON request on behalf of a browser profile.
func (ts *testServer) do(t *testing.T, method, path, profile string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if profile != "" {
		req.Header.Set(profileHeader, profile)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) login(t *testing.T, profile, email, code string) {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/v1/session/login", profile, loginRequest{Email: email, AccessCode: code})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReadyzDatabaseDown(t *testing.T) {
	ts := newTestServer(t)
	ts.srv.deps.DB = &fakePinger{err: errors.New("closed")}

	rr := ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestLoginIssuesProfileCookie(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/session/login", "", loginRequest{Email: "Member@Torch.com ", AccessCode: "DEMO2026"})
	require.Equal(t, http.StatusOK, rr.Code)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, profileCookie, cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.Equal(t, cookies[0].Value, rr.Header().Get(profileHeader))

	view := decodeBody[memberView](t, rr)
	assert.Equal(t, "TM002", view.ID)
	assert.Equal(t, "••••2026", view.AccessCode)
	assert.Equal(t, 44, view.Hours.Available)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/session/login", "p1", loginRequest{Email: "member@torch.com", AccessCode: "WRONG"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid credentials. Please try again.", decodeBody[map[string]string](t, rr)["error"])
}

func TestDashboardRequiresLogin(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/v1/me", "stranger", nil).Code)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "derrick@example.com", "TORCH2026")

	rr := ts.do(t, http.MethodGet, "/api/v1/me", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	view := decodeBody[memberView](t, rr)
	assert.Equal(t, "Derrick", view.FirstName)
	assert.Equal(t, models.TierAmbassador, view.Tier.ID)
	assert.Equal(t, 120, view.Hours.Allocated)
	assert.Equal(t, 80, view.Hours.Available)
	require.NotNil(t, view.NextSession)
	assert.Equal(t, "S001", view.NextSession.ID)
	assert.Equal(t, 2, view.GuestCount)
	assert.NotContains(t, rr.Body.String(), "TORCH2026")
}

func TestSiteLoginHandoff(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/site/login", "p1", loginRequest{Email: "nobody@torch.com", AccessCode: "X"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email not found")

	rr = ts.do(t, http.MethodPost, "/api/v1/site/login", "p1", loginRequest{Email: "joi@torchatl.com", AccessCode: "BAD"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid access code")

	rr = ts.do(t, http.MethodPost, "/api/v1/site/login", "p1", loginRequest{Email: "joi@torchatl.com", AccessCode: " JOI2026 "})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "/portal", decodeBody[map[string]any](t, rr)["redirect"])

	rr = ts.do(t, http.MethodGet, "/api/v1/session", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[map[string]any](t, rr)
	assert.Equal(t, true, body["logged_in"])
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "member@torch.com", "DEMO2026")

	rr := ts.do(t, http.MethodPost, "/api/v1/session/logout", "p1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/v1/session", "p1", nil)
	assert.Equal(t, false, decodeBody[map[string]any](t, rr)["logged_in"])
}

func TestBookingFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "member@torch.com", "DEMO2026")

	rr := ts.do(t, http.MethodGet, "/api/v1/bookings/preview?start=10:00&end=18:00", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	preview := decodeBody[service.BookingPreview](t, rr)
	assert.Equal(t, 8, preview.Hours)
	assert.Equal(t, 36, preview.RemainingAfter)

	rr = ts.do(t, http.MethodPost, "/api/v1/bookings", "p1", service.BookingRequest{
		Date: "2026-03-25", StartTime: "10:00", EndTime: "18:00", Type: "mixing", Guests: 2,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	session := decodeBody[models.Session](t, rr)
	assert.Equal(t, "S101", session.ID)
	assert.Equal(t, models.StatusConfirmed, session.Status)

	rr = ts.do(t, http.MethodGet, "/api/v1/calendar?year=2026&month=3&selected=2026-03-25", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cal := decodeBody[calendarResponse](t, rr)
	assert.Equal(t, "March 2026", cal.Title)
	assert.Equal(t, "2026-02", cal.Prev)
	assert.Equal(t, "2026-04", cal.Next)
	var booked []string
	for _, c := range cal.Cells {
		if c.Booked {
			booked = append(booked, c.Date)
		}
		if c.Date == "2026-03-25" {
			assert.True(t, c.Selected)
		}
	}
	assert.Equal(t, []string{"2026-03-20", "2026-03-25"}, booked)

	stored, err := ts.directory.FindByEmail(context.Background(), "member@torch.com")
	require.NoError(t, err)
	assert.Equal(t, 16, stored.HoursScheduled)
}

func TestBookingValidationErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "member@torch.com", "DEMO2026")

	tests := []struct {
		name    string
		req     service.BookingRequest
		message string
	}{
		{"no date", service.BookingRequest{StartTime: "10:00", EndTime: "12:00"}, "Please select a date first."},
		{"no times", service.BookingRequest{Date: "2026-03-25"}, "Please select start and end times."},
		{"too many guests", service.BookingRequest{Date: "2026-03-25", StartTime: "10:00", EndTime: "12:00", Guests: 5}, "Your tier allows maximum 4 guests."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/v1/bookings", "p1", tt.req)
			assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
			assert.Equal(t, tt.message, decodeBody[map[string]string](t, rr)["error"])
		})
	}
}

func TestCalendarRejectsBadMonth(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "member@torch.com", "DEMO2026")

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/calendar?month=13", "p1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/calendar?year=abc", "p1", nil).Code)
}

func TestGuestFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "derrick@example.com", "TORCH2026")

	rr := ts.do(t, http.MethodPost, "/api/v1/guests", "p1", guestRequest{SessionID: "S002", Name: "Ava Reed", Email: "ava@example.com"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	guest := decodeBody[models.Guest](t, rr)
	assert.Equal(t, "G011", guest.ID)

	rr = ts.do(t, http.MethodPost, "/api/v1/guests", "p1", guestRequest{SessionID: "S999", Name: "Nobody"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/v1/guests", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]service.GuestView](t, rr), 3)

	rr = ts.do(t, http.MethodDelete, "/api/v1/guests?id=G011", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, rr)["removed"])

	rr = ts.do(t, http.MethodDelete, "/api/v1/guests?name=Marcus+Thompson&session=S001", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, rr)["removed"])

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodDelete, "/api/v1/guests", "p1", nil).Code)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "joi@torchatl.com", "JOI2026")

	rr := ts.do(t, http.MethodGet, "/api/v1/history", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestStatementDownload(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "derrick@example.com", "TORCH2026")

	rr := ts.do(t, http.MethodGet, "/api/v1/me/statement", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "torch_statement_TM001_")
	// xlsx is a zip archive
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("PK")))
}

func TestStatementExportFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "derrick@example.com", "TORCH2026")
	ts.srv.writeStatement = func(w io.Writer, _ *models.Member, _ models.Tier, _ time.Time) error {
		_, _ = w.Write([]byte("PK partial"))
		return errors.New("disk full")
	}

	rr := ts.do(t, http.MethodGet, "/api/v1/me/statement", "p1", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotContains(t, rr.Body.String(), "PK partial")
}

func TestInquiryEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/site/inquiries", "", models.Inquiry{Name: "Kim", Email: "kim@", Role: "artist"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/v1/site/inquiries", "", models.Inquiry{Name: "Kim", Email: "kim@example.com", Role: "artist"})
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, models.StatusPending, decodeBody[models.Inquiry](t, rr).Status)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/inquiries", http.NoBody)
	req.Header.Set("x-api-key", "ops")
	req.Header.Set("x-api-extra", "ops-extra")
	admin := httptest.NewRecorder()
	ts.handler.ServeHTTP(admin, req)
	require.Equal(t, http.StatusOK, admin.Code)
	assert.Len(t, decodeBody[[]models.Inquiry](t, admin), 1)
}

func TestRejectsUnknownFields(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/login", strings.NewReader(`{"email":"a","bogus":1}`))
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBillingWithoutProvider(t *testing.T) {
	ts := newTestServer(t)
	ts.login(t, "p1", "member@torch.com", "DEMO2026")

	rr := ts.do(t, http.MethodGet, "/api/v1/billing", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decodeBody[service.BillingSummary](t, rr)
	assert.Equal(t, 2975, summary.MonthlyAmount)

	rr = ts.do(t, http.MethodGet, "/api/v1/billing/config", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[service.BillingClientConfig](t, rr).Enabled)

	rr = ts.do(t, http.MethodPost, "/api/v1/billing/cards", "p1", cardRequest{SourceID: "cnon:card-nonce-ok"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "Square not configured.", decodeBody[map[string]string](t, rr)["error"])

	rr = ts.do(t, http.MethodGet, "/api/v1/billing/cards", "p1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestConciergeAndTiers(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/v1/concierge", "", conciergeRequest{Message: "what does membership cost?"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, decodeBody[map[string]string](t, rr)["reply"])

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/concierge", "", conciergeRequest{}).Code)

	rr = ts.do(t, http.MethodGet, "/api/v1/tiers", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Tier](t, rr), 4)
}

func adminRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.Header.Set("x-api-key", "ops")
	req.Header.Set("x-api-extra", "ops-extra")
	return req
}

func TestAdminMembersMasksCodes(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, adminRequest(http.MethodGet, "/api/v1/admin/members"))
	require.Equal(t, http.StatusOK, rr.Code)

	members := decodeBody[[]adminMember](t, rr)
	require.Len(t, members, 4)
	assert.Equal(t, "TM000", members[0].ID)
	assert.NotContains(t, rr.Body.String(), "TORCH2026")
}

func TestAdminExports(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, adminRequest(http.MethodPost, "/api/v1/admin/exports"))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	files := decodeBody[map[string][]string](t, rr)["files"]
	require.Len(t, files, 4)
	for _, f := range files {
		_, err := os.Stat(f)
		assert.NoError(t, err)
	}
}

func TestAdminSheetsSync(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, adminRequest(http.MethodPost, "/api/v1/admin/sheets/sync"))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 1, ts.syncer.calls)

	ts.syncer.err = errors.New("queue full")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, adminRequest(http.MethodPost, "/api/v1/admin/sheets/sync"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestAdminFailedSyncTasks(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, adminRequest(http.MethodGet, "/api/v1/admin/sheets/failed"))
	require.Equal(t, http.StatusOK, rr.Code)

	var tasks []models.SyncTask
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "S101", tasks[0].RefID)
}
