package service

import (
	"context"
	"strings"

	"torch/internal/catalog"
	"torch/internal/domain"
	"torch/internal/events"
	"torch/internal/models"

	"github.com/rs/zerolog"
)

// GuestView is a registered guest with its session resolved for display.
type GuestView struct {
	models.Guest
	SessionDate  string `json:"session_date"`
	SessionStart string `json:"session_start,omitempty"`
	SessionLabel string `json:"session_label"`
}

type GuestRegistrar struct {
	catalog  *catalog.Catalog
	store    MemberUpdater
	ids      domain.IDGenerator
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewGuestRegistrar(cat *catalog.Catalog, store MemberUpdater, ids domain.IDGenerator, eventBus domain.EventPublisher, logger *zerolog.Logger) *GuestRegistrar {
	if ids == nil {
		ids = UUIDGenerator{Prefix: "G-"}
	}
	return &GuestRegistrar{
		catalog:  cat,
		store:    store,
		ids:      ids,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Register adds a guest to one of the member's sessions within the tier's per-session cap.
func (r *GuestRegistrar) Register(ctx context.Context, mc *models.MemberContext, sessionID, name, email, phone string) (*models.Guest, error) {
	if mc == nil || mc.Member == nil {
		return nil, ErrNotLoggedIn
	}
	member := mc.Member

	name = strings.TrimSpace(name)
	if sessionID == "" || name == "" {
		return nil, ErrMissingGuestDetails
	}
	guest := models.Guest{
		Name:    name,
		Email:   strings.TrimSpace(email),
		Phone:   strings.TrimSpace(phone),
		Session: sessionID,
	}

	updated, err := r.store.Update(ctx, mc.Profile, func(m *models.Member) error {
		if err := sameMember(m, member); err != nil {
			return err
		}
		if _, ok := m.FindSession(sessionID); !ok {
			return ErrUnknownSession
		}
		tier, err := r.catalog.Tier(m.Tier)
		if err != nil {
			return err
		}
		if len(m.GuestsForSession(sessionID)) >= tier.GuestLimit {
			return &GuestLimitError{Limit: tier.GuestLimit, Registration: true}
		}
		guest.ID = r.ids.NewID()
		m.Guests = append(m.Guests, guest)
		return nil
	})
	if err != nil {
		return nil, err
	}
	*member = *updated

	r.logger.Info().Str("member_id", member.ID).Str("session_id", sessionID).Str("guest_id", guest.ID).Msg("guest registered")
	r.publish(events.EventGuestRegistered, mc, guest)
	return &guest, nil
}

// Remove deletes every guest with this exact name on this session. No match is not an error.
func (r *GuestRegistrar) Remove(ctx context.Context, mc *models.MemberContext, name, sessionID string) (int, error) {
	return r.removeWhere(ctx, mc, func(g models.Guest) bool {
		return g.Name == name && g.Session == sessionID
	})
}

// RemoveByID deletes the guest with the given id. No match is not an error.
func (r *GuestRegistrar) RemoveByID(ctx context.Context, mc *models.MemberContext, guestID string) (int, error) {
	if guestID == "" {
		return 0, nil
	}
	return r.removeWhere(ctx, mc, func(g models.Guest) bool {
		return g.ID == guestID
	})
}

func (r *GuestRegistrar) removeWhere(ctx context.Context, mc *models.MemberContext, match func(models.Guest) bool) (int, error) {
	if mc == nil || mc.Member == nil {
		return 0, ErrNotLoggedIn
	}
	member := mc.Member

	var removed []models.Guest
	updated, err := r.store.Update(ctx, mc.Profile, func(m *models.Member) error {
		if err := sameMember(m, member); err != nil {
			return err
		}
		removed = nil
		kept := make([]models.Guest, 0, len(m.Guests))
		for _, g := range m.Guests {
			if match(g) {
				removed = append(removed, g)
				continue
			}
			kept = append(kept, g)
		}
		m.Guests = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	*member = *updated

	for _, g := range removed {
		r.publish(events.EventGuestRemoved, mc, g)
	}
	return len(removed), nil
}

// List returns the member's guests with their session dates resolved.
func (r *GuestRegistrar) List(mc *models.MemberContext) []GuestView {
	if mc == nil || mc.Member == nil {
		return nil
	}
	out := make([]GuestView, 0, len(mc.Member.Guests))
	for _, g := range mc.Member.Guests {
		view := GuestView{Guest: g, SessionLabel: models.UnknownSessionLabel}
		if s, ok := mc.Member.FindSession(g.Session); ok {
			view.SessionDate = s.Date
			view.SessionStart = s.StartTime
			view.SessionLabel = s.Date + " " + s.StartTime
		}
		out = append(out, view)
	}
	return out
}

func (r *GuestRegistrar) publish(eventType string, mc *models.MemberContext, guest models.Guest) {
	if r.eventBus == nil {
		return
	}
	payload := events.MemberEventPayload{
		MemberID:  mc.Member.ID,
		Profile:   mc.Profile,
		SessionID: guest.Session,
		GuestName: guest.Name,
	}
	if err := r.eventBus.PublishJSON(eventType, payload); err != nil {
		r.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
