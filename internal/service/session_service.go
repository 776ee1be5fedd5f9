package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"torch/internal/domain"
	"torch/internal/events"
	"torch/internal/models"

	"github.com/rs/zerolog"
)

const keyPrefix = "torch:"

// InquiriesKey holds the append-only inquiry log shared by every profile.
const InquiriesKey = keyPrefix + "inquiries"

func CurrentMemberKey(profile string) string {
	return keyPrefix + profile + ":current_member"
}

func LoginHandoffKey(profile string) string {
	return keyPrefix + profile + ":login_handoff"
}

// SessionStore owns the per-profile "current member" slot and the login lifecycle.
type SessionStore struct {
	kv         domain.KVStore
	members    domain.MemberRepository
	eventBus   domain.EventPublisher
	handoffTTL time.Duration
	now        Clock
	locks      *profileLocks
	logger     *zerolog.Logger
}

func NewSessionStore(kv domain.KVStore, members domain.MemberRepository, eventBus domain.EventPublisher, handoffTTL time.Duration, logger *zerolog.Logger) *SessionStore {
	if handoffTTL <= 0 {
		handoffTTL = models.LoginHandoffTTL
	}
	return &SessionStore{
		kv:         kv,
		members:    members,
		eventBus:   eventBus,
		handoffTTL: handoffTTL,
		now:        time.Now,
		locks:      newProfileLocks(),
		logger:     logger,
	}
}

// SetClock overrides the time source.
func (s *SessionStore) SetClock(now Clock) {
	s.now = now
}

// Load returns the profile's current member, or nil when there is none.
// Unreadable or corrupt records count as "no session".
func (s *SessionStore) Load(ctx context.Context, profile string) (*models.Member, error) {
	key := CurrentMemberKey(profile)
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("profile", profile).Msg("failed to read current member")
		return nil, nil
	}
	if data == nil {
		return nil, nil
	}

	var member models.Member
	if err := json.Unmarshal(data, &member); err != nil {
		s.logger.Warn().Err(err).Str("profile", profile).Msg("discarding malformed member record")
		if delErr := s.kv.Delete(ctx, key); delErr != nil {
			s.logger.Error().Err(delErr).Str("profile", profile).Msg("failed to clear malformed member record")
		}
		return nil, nil
	}
	return &member, nil
}

// Save overwrites the profile's slot with the full member record and writes it through to the directory.
func (s *SessionStore) Save(ctx context.Context, profile string, member *models.Member) error {
	unlock := s.locks.lock(profile)
	defer unlock()
	return s.save(ctx, profile, member)
}

func (s *SessionStore) save(ctx context.Context, profile string, member *models.Member) error {
	if member == nil {
		return fmt.Errorf("member is nil")
	}
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("encode member: %w", err)
	}
	if err := s.kv.Set(ctx, CurrentMemberKey(profile), data, models.DefaultSessionTTL); err != nil {
		return fmt.Errorf("save current member: %w", err)
	}

	if s.members != nil {
		if err := s.members.Save(ctx, member); err != nil {
			s.logger.Error().Err(err).Str("member_id", member.ID).Msg("directory write-through failed")
		}
	}
	return nil
}

// Update applies fn to the freshest stored copy of the profile's member and saves the result.
// Updates for one profile run one at a time; an error from fn discards the change.
func (s *SessionStore) Update(ctx context.Context, profile string, fn func(*models.Member) error) (*models.Member, error) {
	unlock := s.locks.lock(profile)
	defer unlock()

	current, err := s.Load(ctx, profile)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotLoggedIn
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}
	if err := s.save(ctx, profile, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// Clear signs the profile out.
func (s *SessionStore) Clear(ctx context.Context, profile string) error {
	unlock := s.locks.lock(profile)
	defer unlock()

	member, _ := s.Load(ctx, profile)
	if err := s.kv.Delete(ctx, CurrentMemberKey(profile)); err != nil {
		return fmt.Errorf("clear current member: %w", err)
	}
	if member != nil {
		s.publish(events.EventMemberLoggedOut, profile, member)
	}
	return nil
}

// Authenticate checks an email/access code pair against the directory.
func (s *SessionStore) Authenticate(ctx context.Context, email, code string) (*models.Member, error) {
	if strings.TrimSpace(email) == "" || code == "" {
		return nil, ErrInvalidCredentials
	}
	member, err := s.members.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member.AccessCode != code {
		return nil, ErrInvalidCredentials
	}
	return member, nil
}

// Login authenticates and stores the member as the profile's current member.
func (s *SessionStore) Login(ctx context.Context, profile, email, code string) (*models.Member, error) {
	member, err := s.Authenticate(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, profile, member); err != nil {
		return nil, err
	}
	s.logger.Info().Str("profile", profile).Str("member_id", member.ID).Msg("member logged in")
	s.publish(events.EventMemberLoggedIn, profile, member)
	return member, nil
}

// IssueExternalLogin is the marketing-site sign in. It tells an unknown email apart
// from a wrong access code and leaves a short-lived handoff token for the portal.
func (s *SessionStore) IssueExternalLogin(ctx context.Context, profile, email, code string) (*models.LoginToken, error) {
	email = models.NormalizeEmail(email)
	member, err := s.members.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return nil, ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member.AccessCode != strings.TrimSpace(code) {
		return nil, ErrInvalidAccessCode
	}

	token := &models.LoginToken{Email: email, IssuedAtMs: s.now().UnixMilli()}
	data, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("encode login token: %w", err)
	}
	if err := s.kv.Set(ctx, LoginHandoffKey(profile), data, s.handoffTTL); err != nil {
		return nil, fmt.Errorf("save login token: %w", err)
	}
	s.logger.Info().Str("profile", profile).Str("member_id", member.ID).Msg("login handoff issued")
	return token, nil
}

// ConsumeExternalLogin accepts a handoff token younger than the handoff TTL.
// The stored token is discarded whatever the outcome; a stale token or unknown email yields nil, nil.
func (s *SessionStore) ConsumeExternalLogin(ctx context.Context, profile string, token models.LoginToken) (*models.Member, error) {
	if err := s.kv.Delete(ctx, LoginHandoffKey(profile)); err != nil {
		s.logger.Warn().Err(err).Str("profile", profile).Msg("failed to discard login token")
	}

	elapsed := s.now().Sub(time.UnixMilli(token.IssuedAtMs))
	if elapsed >= s.handoffTTL {
		s.logger.Debug().Str("profile", profile).Dur("elapsed", elapsed).Msg("login token expired")
		return nil, nil
	}

	member, err := s.members.FindByEmail(ctx, token.Email)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}

	if err := s.Save(ctx, profile, member); err != nil {
		return nil, err
	}
	s.logger.Info().Str("profile", profile).Str("member_id", member.ID).Msg("member logged in via handoff")
	s.publish(events.EventMemberLoggedIn, profile, member)
	return member, nil
}

// ConsumePendingLogin reads the profile's handoff token, if any, and consumes it.
func (s *SessionStore) ConsumePendingLogin(ctx context.Context, profile string) (*models.Member, error) {
	key := LoginHandoffKey(profile)
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("profile", profile).Msg("failed to read login token")
		return nil, nil
	}
	if data == nil {
		return nil, nil
	}

	var token models.LoginToken
	if err := json.Unmarshal(data, &token); err != nil || token.Email == "" {
		s.logger.Warn().Str("profile", profile).Msg("discarding malformed login token")
		_ = s.kv.Delete(ctx, key)
		return nil, nil
	}
	return s.ConsumeExternalLogin(ctx, profile, token)
}

// Current resolves the member for a request: a pending handoff wins over the stored slot.
func (s *SessionStore) Current(ctx context.Context, profile string) (*models.Member, error) {
	member, err := s.ConsumePendingLogin(ctx, profile)
	if err != nil || member != nil {
		return member, err
	}
	return s.Load(ctx, profile)
}

// Context builds the explicit session context for a signed-in profile.
func (s *SessionStore) Context(ctx context.Context, profile string) (*models.MemberContext, error) {
	member, err := s.Current(ctx, profile)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrNotLoggedIn
	}
	return &models.MemberContext{Profile: profile, Member: member}, nil
}

func (s *SessionStore) publish(eventType, profile string, member *models.Member) {
	if s.eventBus == nil {
		return
	}
	payload := events.MemberEventPayload{MemberID: member.ID, Email: member.Email, Profile: profile}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
