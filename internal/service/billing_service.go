package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"torch/internal/catalog"
	"torch/internal/config"
	"torch/internal/domain"
	"torch/internal/events"
	"torch/internal/metrics"
	"torch/internal/models"

	"github.com/rs/zerolog"
)

const (
	msgCustomerFailed = "Failed to create customer profile."
	msgSaveCardFailed = "Failed to save card."
	msgNetworkError   = "Network error. Please try again."
	msgNotConfigured  = "Square not configured."
)

// BillingClientConfig is what the browser card widget needs. The access token never leaves the server.
type BillingClientConfig struct {
	Enabled       bool   `json:"enabled"`
	ApplicationID string `json:"application_id"`
	LocationID    string `json:"location_id"`
	Environment   string `json:"environment"`
}

type BillingSummary struct {
	TierName      string `json:"tier_name"`
	MonthlyAmount int    `json:"monthly_amount"`
	Founding      bool   `json:"founding"`
	MemberSince   string `json:"member_since"`
	HasCard       bool   `json:"has_card"`
}

type BillingService struct {
	provider domain.PaymentProvider
	store    MemberUpdater
	catalog  *catalog.Catalog
	square   config.SquareConfig
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

// NewBillingService builds the billing flow. A nil provider disables card operations.
func NewBillingService(
	provider domain.PaymentProvider,
	store MemberUpdater,
	cat *catalog.Catalog,
	square config.SquareConfig,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BillingService {
	return &BillingService{
		provider: provider,
		store:    store,
		catalog:  cat,
		square:   square,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *BillingService) ClientConfig() BillingClientConfig {
	return BillingClientConfig{
		Enabled:       s.provider != nil && s.square.ApplicationID != "",
		ApplicationID: s.square.ApplicationID,
		LocationID:    s.square.LocationID,
		Environment:   s.square.Environment,
	}
}

// Summary is the billing card: tier, monthly amount and member-since date.
func (s *BillingService) Summary(member *models.Member) (*BillingSummary, error) {
	tier, err := s.catalog.Tier(member.Tier)
	if err != nil {
		return nil, err
	}
	return &BillingSummary{
		TierName:      tier.Name + " Membership",
		MonthlyAmount: tier.Rate(member.Founding),
		Founding:      member.Founding,
		MemberSince:   member.JoinDate,
		HasCard:       member.SquareCustomerID != "",
	}, nil
}

// SavePaymentMethod attaches a tokenized card to the member's provider customer,
// creating the customer on first use. The member is only updated after the card is saved.
func (s *BillingService) SavePaymentMethod(ctx context.Context, mc *models.MemberContext, sourceToken string) (*models.Card, error) {
	if mc == nil || mc.Member == nil {
		return nil, ErrNotLoggedIn
	}
	if strings.TrimSpace(sourceToken) == "" {
		return nil, ErrMissingCardToken
	}
	if s.provider == nil {
		return nil, &ProviderError{Message: msgNotConfigured}
	}
	member := mc.Member

	customer, err := s.getOrCreateCustomer(ctx, member)
	if err != nil {
		metrics.IncProviderError("customer")
		s.logger.Error().Err(err).Str("member_id", member.ID).Msg("customer operation failed")
		return nil, &ProviderError{Message: msgCustomerFailed, Err: err}
	}

	card, err := s.provider.SaveCard(ctx, customer.ID, sourceToken)
	if err != nil {
		metrics.IncProviderError("save_card")
		s.logger.Error().Err(err).Str("member_id", member.ID).Msg("save card failed")
		return nil, &ProviderError{Message: saveCardMessage(err), Err: err}
	}

	updated, err := s.store.Update(ctx, mc.Profile, func(m *models.Member) error {
		if err := sameMember(m, member); err != nil {
			return err
		}
		m.SquareCustomerID = customer.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	*member = *updated

	s.logger.Info().Str("member_id", member.ID).Str("card_id", card.ID).Msg("card saved")
	if s.eventBus != nil {
		payload := events.MemberEventPayload{MemberID: member.ID, Profile: mc.Profile, Detail: card.CardBrand + " " + card.Last4}
		if err := s.eventBus.PublishJSON(events.EventCardSaved, payload); err != nil {
			s.logger.Error().Err(err).Msg("publish event error")
		}
	}
	return card, nil
}

// ListCards returns the member's cards on file; empty when no customer exists yet.
func (s *BillingService) ListCards(ctx context.Context, member *models.Member) ([]models.Card, error) {
	if member == nil {
		return nil, ErrNotLoggedIn
	}
	if s.provider == nil || member.SquareCustomerID == "" {
		return []models.Card{}, nil
	}
	cards, err := s.provider.ListCards(ctx, member.SquareCustomerID)
	if err != nil {
		metrics.IncProviderError("list_cards")
		s.logger.Warn().Err(err).Str("member_id", member.ID).Msg("list cards failed")
		return []models.Card{}, nil
	}
	return cards, nil
}

func (s *BillingService) getOrCreateCustomer(ctx context.Context, member *models.Member) (*models.Customer, error) {
	existing, err := s.provider.SearchCustomerByEmail(ctx, member.Email)
	if err != nil {
		return nil, fmt.Errorf("search customer: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	founding := "No"
	if member.Founding {
		founding = "Yes"
	}
	created, err := s.provider.CreateCustomer(ctx, models.CustomerRequest{
		GivenName:    member.FirstName(),
		FamilyName:   member.LastName(),
		EmailAddress: member.Email,
		PhoneNumber:  member.Phone,
		ReferenceID:  "TORCH-" + member.ID,
		Note:         fmt.Sprintf("Tier: %s | Founding: %s", member.Tier, founding),
	})
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}

func saveCardMessage(err error) string {
	var apiErr *domain.ProviderAPIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return apiErr.Detail
	case errors.Is(err, domain.ErrProviderUnavailable):
		return msgNetworkError
	default:
		return msgSaveCardFailed
	}
}
