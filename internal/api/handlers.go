package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"torch/internal/export"
	"torch/internal/models"
	"torch/internal/service"
)

type loginRequest struct {
	Email      string `json:"email"`
	AccessCode string `json:"code"`
}

type guestRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type conciergeRequest struct {
	Message string `json:"message"`
}

type cardRequest struct {
	SourceID string `json:"source_id"`
}

// memberView is the member as shown to the browser: the access code is masked.
type memberView struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	FirstName         string                `json:"first_name"`
	Initials          string                `json:"initials"`
	Email             string                `json:"email"`
	AccessCode        string                `json:"access_code"`
	Tier              models.Tier           `json:"tier"`
	Founding          bool                  `json:"founding"`
	JoinDate          string                `json:"join_date"`
	Phone             string                `json:"phone,omitempty"`
	Company           string                `json:"company,omitempty"`
	Hours             *service.HoursSummary `json:"hours"`
	Sessions          []models.Session      `json:"sessions"`
	NextSession       *models.Session       `json:"next_session,omitempty"`
	GuestCount        int                   `json:"guest_count"`
	HasSquareCustomer bool                  `json:"has_square_customer"`
}

func (s *HTTPServer) memberView(member *models.Member) (*memberView, error) {
	tier, err := s.deps.Catalog.Tier(member.Tier)
	if err != nil {
		return nil, err
	}
	hours, err := s.deps.Bookings.HoursBreakdown(member)
	if err != nil {
		return nil, err
	}
	view := &memberView{
		ID:                member.ID,
		Name:              member.Name,
		FirstName:         member.FirstName(),
		Initials:          member.Initials(),
		Email:             member.Email,
		AccessCode:        member.MaskedAccessCode(),
		Tier:              tier,
		Founding:          member.Founding,
		JoinDate:          member.JoinDate,
		Phone:             member.Phone,
		Company:           member.Company,
		Hours:             hours,
		Sessions:          nonNilSessions(member.Sessions),
		GuestCount:        len(member.Guests),
		HasSquareCustomer: member.SquareCustomerID != "",
	}
	if next, ok := member.NextSession(s.deps.Today()); ok {
		view.NextSession = &next
	}
	return view, nil
}

func nonNilSessions(in []models.Session) []models.Session {
	if in == nil {
		return []models.Session{}
	}
	return in
}

// memberContext resolves the signed-in member or writes a 401.
func (s *HTTPServer) memberContext(w http.ResponseWriter, r *http.Request) (*models.MemberContext, bool) {
	profile := profileFromRequest(r)
	if profile == "" {
		s.writeServiceError(w, r, service.ErrNotLoggedIn)
		return nil, false
	}
	mc, err := s.deps.Sessions.Context(r.Context(), profile)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	return mc, true
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile := ensureProfile(w, r)

	member, err := s.deps.Sessions.Login(r.Context(), profile, req.Email, req.AccessCode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	view, err := s.memberView(member)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	profile := profileFromRequest(r)
	if profile != "" {
		if err := s.deps.Sessions.Clear(r.Context(), profile); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSession reports whether the profile is signed in, consuming a pending site handoff.
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	profile := profileFromRequest(r)
	if profile == "" {
		writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}
	member, err := s.deps.Sessions.Current(r.Context(), profile)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if member == nil {
		writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}
	view, err := s.memberView(member)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": true, "member": view})
}

func (s *HTTPServer) handleSiteLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	profile := ensureProfile(w, r)

	token, err := s.deps.Sessions.IssueExternalLogin(r.Context(), profile, req.Email, req.AccessCode)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"redirect":     "/portal",
		"email":        token.Email,
		"issued_at_ms": token.IssuedAtMs,
	})
}

func (s *HTTPServer) handleInquiry(w http.ResponseWriter, r *http.Request) {
	var in models.Inquiry
	if !decodeJSON(w, r, &in) {
		return
	}
	saved, err := s.deps.Inquiries.Submit(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	view, err := s.memberView(mc.Member)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleStatement(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	tier, err := s.deps.Catalog.Tier(mc.Member.Tier)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	now := time.Now()
	// собираем файл целиком, чтобы при ошибке не отдать обрезанный xlsx со статусом 200
	var buf bytes.Buffer
	if err := s.writeStatement(&buf, mc.Member, tier, now); err != nil {
		requestLogger(r, s.logger).Error().Err(err).Str("member_id", mc.Member.ID).Msg("statement export failed")
		writeError(w, http.StatusInternalServerError, "statement export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(mc.Member, now)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

type calendarResponse struct {
	Title string                `json:"title"`
	Year  int                   `json:"year"`
	Month int                   `json:"month"`
	Prev  string                `json:"prev"`
	Next  string                `json:"next"`
	Cells []models.CalendarCell `json:"cells"`
}

// handleCalendar renders ?year=&month=&selected= for the signed-in member, defaulting to the current month.
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}

	today := s.deps.Today()
	year, month := today.Year(), today.Month()
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		year = y
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		month = time.Month(m)
	}

	py, pm := service.ShiftMonth(year, month, -1)
	ny, nm := service.ShiftMonth(year, month, 1)
	writeJSON(w, http.StatusOK, calendarResponse{
		Title: service.MonthTitle(year, month),
		Year:  year,
		Month: int(month),
		Prev:  monthKey(py, pm),
		Next:  monthKey(ny, nm),
		Cells: service.RenderCalendar(year, month, today, mc.Member.Sessions, strings.TrimSpace(q.Get("selected"))),
	})
}

func monthKey(year int, month time.Month) string {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	var req service.BookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.deps.Bookings.Submit(r.Context(), mc, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleBookingPreview(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	preview, err := s.deps.Bookings.Preview(mc, q.Get("start"), q.Get("end"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *HTTPServer) handleListGuests(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	guests := s.deps.Guests.List(mc)
	if guests == nil {
		guests = []service.GuestView{}
	}
	writeJSON(w, http.StatusOK, guests)
}

func (s *HTTPServer) handleRegisterGuest(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	var req guestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	guest, err := s.deps.Guests.Register(r.Context(), mc, req.SessionID, req.Name, req.Email, req.Phone)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, guest)
}

// handleRemoveGuest deletes by ?id= or, for legacy clients, by ?name=&session=.
func (s *HTTPServer) handleRemoveGuest(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var (
		removed int
		err     error
	)
	if id := strings.TrimSpace(q.Get("id")); id != "" {
		removed, err = s.deps.Guests.RemoveByID(r.Context(), mc, id)
	} else {
		name, session := strings.TrimSpace(q.Get("name")), strings.TrimSpace(q.Get("session"))
		if name == "" || session == "" {
			writeError(w, http.StatusBadRequest, "id or name and session are required")
			return
		}
		removed, err = s.deps.Guests.Remove(r.Context(), mc, name, session)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	history := mc.Member.History
	if history == nil {
		history = []models.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *HTTPServer) handleBillingSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing disabled")
		return
	}
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	summary, err := s.deps.Billing.Summary(mc.Member)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) handleBillingConfig(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Billing == nil {
		writeJSON(w, http.StatusOK, service.BillingClientConfig{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Billing.ClientConfig())
}

func (s *HTTPServer) handleListCards(w http.ResponseWriter, r *http.Request) {
	if s.deps.Billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing disabled")
		return
	}
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	cards, err := s.deps.Billing.ListCards(r.Context(), mc.Member)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if cards == nil {
		cards = []models.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *HTTPServer) handleSaveCard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Billing == nil {
		writeError(w, http.StatusServiceUnavailable, "billing disabled")
		return
	}
	mc, ok := s.memberContext(w, r)
	if !ok {
		return
	}
	var req cardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	card, err := s.deps.Billing.SavePaymentMethod(r.Context(), mc, req.SourceID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *HTTPServer) handleConcierge(w http.ResponseWriter, r *http.Request) {
	var req conciergeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": s.deps.Concierge.Respond(req.Message)})
}

func (s *HTTPServer) handleTiers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.All())
}
