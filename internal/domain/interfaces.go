package domain

import (
	"context"
	"time"

	"torch/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// KVStore is the durable per-profile slot storage. Get returns nil, nil for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type MemberRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Member, error)
	Save(ctx context.Context, member *models.Member) error
	List(ctx context.Context) ([]*models.Member, error)
}

type PaymentProvider interface {
	SearchCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	CreateCustomer(ctx context.Context, req models.CustomerRequest) (*models.Customer, error)
	SaveCard(ctx context.Context, customerID, sourceID string) (*models.Card, error)
	ListCards(ctx context.Context, customerID string) ([]models.Card, error)
}

type Concierge interface {
	Respond(text string) string
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType, refID string, payload interface{}) error
}

type SheetsWriter interface {
	AppendSession(ctx context.Context, member *models.Member, session *models.Session) error
	AppendInquiry(ctx context.Context, inquiry *models.Inquiry) error
}

type IDGenerator interface {
	NewID() string
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
