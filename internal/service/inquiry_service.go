package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"torch/internal/domain"
	"torch/internal/events"
	"torch/internal/models"

	"github.com/rs/zerolog"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// InquiryService records membership inquiries from the marketing site.
// The log is unbounded and append-only.
type InquiryService struct {
	kv           domain.KVStore
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	now          Clock
	logger       *zerolog.Logger
	mu           sync.Mutex
}

func NewInquiryService(kv domain.KVStore, eventBus domain.EventPublisher, sheetsWorker domain.SyncWorker, logger *zerolog.Logger) *InquiryService {
	return &InquiryService{
		kv:           kv,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		now:          time.Now,
		logger:       logger,
	}
}

func (s *InquiryService) SetClock(now Clock) {
	s.now = now
}

func (s *InquiryService) Submit(ctx context.Context, in models.Inquiry) (*models.Inquiry, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	if in.Name == "" || in.Email == "" || in.Role == "" {
		return nil, ErrMissingInquiryFields
	}
	if !emailPattern.MatchString(in.Email) {
		return nil, ErrInvalidEmail
	}
	in.Timestamp = s.now().UTC().Format(time.RFC3339Nano)
	in.Status = models.StatusPending

	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.loadForAppend(ctx)
	if err != nil {
		return nil, err
	}
	log = append(log, in)

	data, err := json.Marshal(log)
	if err != nil {
		return nil, fmt.Errorf("encode inquiries: %w", err)
	}
	if err := s.kv.Set(ctx, InquiriesKey, data, 0); err != nil {
		return nil, fmt.Errorf("save inquiries: %w", err)
	}

	s.logger.Info().Str("email", in.Email).Str("role", in.Role).Msg("inquiry submitted")

	if s.eventBus != nil {
		payload := events.MemberEventPayload{Email: in.Email, Detail: in.Role}
		if err := s.eventBus.PublishJSON(events.EventInquirySubmitted, payload); err != nil {
			s.logger.Error().Err(err).Msg("publish event error")
		}
	}
	if s.sheetsWorker != nil {
		if err := s.sheetsWorker.EnqueueTask(ctx, models.SyncTaskAppendInquiry, in.Email, in); err != nil {
			s.logger.Error().Err(err).Msg("sheets enqueue error")
		}
	}
	return &in, nil
}

// CorruptInquiriesKey is where an unreadable log is parked before a new one is started.
func CorruptInquiriesKey(at time.Time) string {
	return fmt.Sprintf("%s:corrupt:%d", InquiriesKey, at.UnixNano())
}

// List returns every inquiry in submission order. A corrupt log reads as empty.
func (s *InquiryService) List(ctx context.Context) ([]models.Inquiry, error) {
	log, _, err := s.read(ctx)
	return log, err
}

// loadForAppend parks a corrupt log under a side key so the next write cannot destroy it.
func (s *InquiryService) loadForAppend(ctx context.Context) ([]models.Inquiry, error) {
	log, corrupt, err := s.read(ctx)
	if err != nil || corrupt == nil {
		return log, err
	}
	key := CorruptInquiriesKey(s.now())
	if err := s.kv.Set(ctx, key, corrupt, 0); err != nil {
		return nil, fmt.Errorf("park corrupt inquiries: %w", err)
	}
	s.logger.Warn().Str("key", key).Msg("inquiry log is malformed, moved aside and starting over")
	return []models.Inquiry{}, nil
}

func (s *InquiryService) read(ctx context.Context) ([]models.Inquiry, []byte, error) {
	data, err := s.kv.Get(ctx, InquiriesKey)
	if err != nil {
		return nil, nil, fmt.Errorf("read inquiries: %w", err)
	}
	if data == nil {
		return []models.Inquiry{}, nil, nil
	}
	var log []models.Inquiry
	if err := json.Unmarshal(data, &log); err != nil {
		s.logger.Warn().Err(err).Msg("inquiry log is malformed")
		return []models.Inquiry{}, data, nil
	}
	return log, nil, nil
}
