package service

import (
	"context"
	"time"

	"torch/internal/catalog"
	"torch/internal/domain"
	"torch/internal/events"
	"torch/internal/metrics"
	"torch/internal/models"

	"github.com/rs/zerolog"
)

const defaultSessionType = "recording"

// MemberUpdater runs a read-modify-write of a profile's member record.
// fn sees the latest stored copy; returning an error leaves the record as it was.
type MemberUpdater interface {
	Update(ctx context.Context, profile string, fn func(*models.Member) error) (*models.Member, error)
}

type BookingRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Type      string `json:"type"`
	Guests    int    `json:"guests"`
	Notes     string `json:"notes"`
}

// BookingPreview is the live summary shown while a member picks times.
type BookingPreview struct {
	Hours          int `json:"hours"`
	RemainingAfter int `json:"remaining_after"`
}

// HoursSummary breaks down a member's monthly allocation.
type HoursSummary struct {
	Allocated int `json:"allocated"`
	Used      int `json:"used"`
	Scheduled int `json:"scheduled"`
	Available int `json:"available"`
	// UsedPercent drives the dashboard progress ring.
	UsedPercent float64 `json:"used_percent"`
}

type BookingEngine struct {
	catalog      *catalog.Catalog
	store        MemberUpdater
	ids          domain.IDGenerator
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	logger       *zerolog.Logger
}

func NewBookingEngine(
	cat *catalog.Catalog,
	store MemberUpdater,
	ids domain.IDGenerator,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	logger *zerolog.Logger,
) *BookingEngine {
	if ids == nil {
		ids = UUIDGenerator{Prefix: "S-"}
	}
	return &BookingEngine{
		catalog:      cat,
		store:        store,
		ids:          ids,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		logger:       logger,
	}
}

// SessionHours returns the whole hours between start and end ("HH:MM").
// Only the hour component counts; an end before the start wraps past midnight.
func SessionHours(start, end string) (int, error) {
	if start == "" || end == "" {
		return 0, ErrMissingTimeRange
	}
	s, err := time.Parse(models.TimeLayout, start)
	if err != nil {
		return 0, ErrInvalidTimeRange
	}
	e, err := time.Parse(models.TimeLayout, end)
	if err != nil {
		return 0, ErrInvalidTimeRange
	}

	startHour, endHour := s.Hour(), e.Hour()
	if endHour < startHour {
		endHour += 24
	}
	hours := endHour - startHour
	if hours <= 0 {
		return 0, ErrInvalidTimeRange
	}
	return hours, nil
}

// Submit validates a booking against the member's tier and commits it.
// Checks run in a fixed order and the first failure wins; a rejected booking leaves the member untouched.
func (e *BookingEngine) Submit(ctx context.Context, mc *models.MemberContext, req BookingRequest) (*models.Session, error) {
	if mc == nil || mc.Member == nil {
		return nil, ErrNotLoggedIn
	}
	member := mc.Member

	if req.Date == "" {
		return nil, e.reject(ErrNoDateSelected, "no_date")
	}
	if _, err := time.Parse(models.DateLayout, req.Date); err != nil {
		return nil, e.reject(ErrInvalidDate, "invalid_date")
	}
	if req.StartTime == "" || req.EndTime == "" {
		return nil, e.reject(ErrMissingTimeRange, "missing_time")
	}
	hours, err := SessionHours(req.StartTime, req.EndTime)
	if err != nil {
		return nil, e.reject(err, "invalid_time")
	}

	guests := req.Guests
	if guests < 0 {
		guests = 0
	}
	sessionType := req.Type
	if sessionType == "" {
		sessionType = defaultSessionType
	}

	var (
		session models.Session
		tier    models.Tier
	)
	// лимиты проверяются по свежей копии, иначе параллельные запросы затрут друг друга
	updated, err := e.store.Update(ctx, mc.Profile, func(m *models.Member) error {
		if err := sameMember(m, member); err != nil {
			return err
		}
		var err error
		tier, err = e.catalog.Tier(m.Tier)
		if err != nil {
			return err
		}
		if guests > tier.GuestLimit {
			return e.reject(&GuestLimitError{Limit: tier.GuestLimit}, "guest_limit")
		}
		remaining := m.HoursRemaining(tier)
		if hours > remaining {
			return e.reject(&InsufficientHoursError{Remaining: remaining}, "insufficient_hours")
		}

		session = models.Session{
			ID:        e.ids.NewID(),
			Date:      req.Date,
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Type:      sessionType,
			Hours:     hours,
			Guests:    guests,
			Notes:     req.Notes,
			Status:    models.StatusConfirmed,
		}
		m.Sessions = append(m.Sessions, session)
		m.HoursScheduled += hours
		return nil
	})
	if err != nil {
		return nil, err
	}
	*member = *updated

	e.logger.Info().
		Str("member_id", member.ID).
		Str("session_id", session.ID).
		Str("date", session.Date).
		Int("hours", hours).
		Msg("session booked")

	metrics.AddHoursBooked(string(tier.ID), hours)
	e.publishEvent(events.EventBookingCreated, mc, session)
	e.enqueueSync(ctx, member, session)

	return &session, nil
}

// sameMember rejects an update when the profile signed in as someone else mid-request.
func sameMember(stored, requested *models.Member) error {
	if stored.ID != requested.ID {
		return ErrNotLoggedIn
	}
	return nil
}

// Preview computes the duration and the balance left after booking it.
func (e *BookingEngine) Preview(mc *models.MemberContext, start, end string) (*BookingPreview, error) {
	if mc == nil || mc.Member == nil {
		return nil, ErrNotLoggedIn
	}
	hours, err := SessionHours(start, end)
	if err != nil {
		return nil, err
	}
	tier, err := e.catalog.Tier(mc.Member.Tier)
	if err != nil {
		return nil, err
	}
	return &BookingPreview{Hours: hours, RemainingAfter: mc.Member.HoursRemaining(tier) - hours}, nil
}

func (e *BookingEngine) HoursBreakdown(member *models.Member) (*HoursSummary, error) {
	tier, err := e.catalog.Tier(member.Tier)
	if err != nil {
		return nil, err
	}
	summary := &HoursSummary{
		Allocated: tier.Hours,
		Used:      member.HoursUsed,
		Scheduled: member.HoursScheduled,
		Available: member.HoursRemaining(tier),
	}
	if tier.Hours > 0 {
		summary.UsedPercent = float64(member.HoursUsed) / float64(tier.Hours) * 100
	}
	return summary, nil
}

func (e *BookingEngine) reject(err error, reason string) error {
	metrics.IncBookingRejection(reason)
	e.logger.Debug().Err(err).Str("reason", reason).Msg("booking rejected")
	return err
}

func (e *BookingEngine) publishEvent(eventType string, mc *models.MemberContext, session models.Session) {
	if e.eventBus == nil {
		return
	}

	payload := events.MemberEventPayload{
		MemberID:  mc.Member.ID,
		Email:     mc.Member.Email,
		Profile:   mc.Profile,
		SessionID: session.ID,
		Date:      session.Date,
		Hours:     session.Hours,
		Detail:    session.Type,
	}

	if err := e.eventBus.PublishJSON(eventType, payload); err != nil {
		e.logger.Error().Err(err).Str("event_type", eventType).Str("session_id", session.ID).Msg("publish event error")
	}
}

// SessionSyncPayload is what the Sheets worker needs to append a booking row.
type SessionSyncPayload struct {
	Member  models.Member  `json:"member"`
	Session models.Session `json:"session"`
}

func (e *BookingEngine) enqueueSync(ctx context.Context, member *models.Member, session models.Session) {
	if e.sheetsWorker == nil {
		return
	}

	payload := SessionSyncPayload{Member: *member, Session: session}
	payload.Member.Sessions, payload.Member.Guests, payload.Member.History = nil, nil, nil
	payload.Member.AccessCode = ""

	if err := e.sheetsWorker.EnqueueTask(ctx, models.SyncTaskAppendSession, session.ID, payload); err != nil {
		e.logger.Error().Err(err).Str("session_id", session.ID).Msg("sheets enqueue error")
	}
}
