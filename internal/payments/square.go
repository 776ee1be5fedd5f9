// Package payments talks to the Square REST API for customer profiles and cards on file.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"torch/internal/config"
	"torch/internal/domain"
	"torch/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	productionBaseURL = "https://connect.squareup.com/v2"
	sandboxBaseURL    = "https://connect.squareupsandbox.com/v2"
)

// SquareClient implements domain.PaymentProvider over HTTP.
type SquareClient struct {
	baseURL     string
	accessToken string
	apiVersion  string
	httpClient  *http.Client
	logger      *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

var _ domain.PaymentProvider = (*SquareClient)(nil)

func NewSquareClient(cfg config.SquareConfig, logger *zerolog.Logger) *SquareClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sandboxBaseURL
		if cfg.Environment == "production" {
			baseURL = productionBaseURL
		}
	}
	return &SquareClient{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		apiVersion:  cfg.APIVersion,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// UseRedisCache enables caching of card lists. SaveCard invalidates the customer's entry.
func (c *SquareClient) UseRedisCache(client *redis.Client, ttl time.Duration) {
	c.redis = client
	c.cacheTTL = ttl
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type createCustomerRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	GivenName      string `json:"given_name,omitempty"`
	FamilyName     string `json:"family_name,omitempty"`
	EmailAddress   string `json:"email_address,omitempty"`
	PhoneNumber    string `json:"phone_number,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
	Note           string `json:"note,omitempty"`
}

type errorEnvelope struct {
	Errors []squareError `json:"errors"`
}

func (c *SquareClient) SearchCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	body := map[string]any{
		"query": map[string]any{
			"filter": map[string]any{
				"email_address": map[string]string{"exact": email},
			},
		},
		"limit": 1,
	}
	var resp struct {
		Customers []models.Customer `json:"customers"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/customers/search", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Customers) == 0 {
		return nil, nil
	}
	return &resp.Customers[0], nil
}

func (c *SquareClient) CreateCustomer(ctx context.Context, req models.CustomerRequest) (*models.Customer, error) {
	body := createCustomerRequest{
		IdempotencyKey: uuid.NewString(),
		GivenName:      req.GivenName,
		FamilyName:     req.FamilyName,
		EmailAddress:   req.EmailAddress,
		PhoneNumber:    req.PhoneNumber,
		ReferenceID:    req.ReferenceID,
		Note:           req.Note,
	}
	var resp struct {
		Customer models.Customer `json:"customer"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/customers", body, &resp); err != nil {
		return nil, err
	}
	c.logger.Info().Str("customer_id", resp.Customer.ID).Str("reference_id", req.ReferenceID).Msg("square customer created")
	return &resp.Customer, nil
}

func (c *SquareClient) SaveCard(ctx context.Context, customerID, sourceID string) (*models.Card, error) {
	body := map[string]any{
		"idempotency_key": uuid.NewString(),
		"source_id":       sourceID,
		"card":            map[string]string{"customer_id": customerID},
	}
	var resp struct {
		Card models.Card `json:"card"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/cards", body, &resp); err != nil {
		return nil, err
	}
	c.dropCache(ctx, cardsCacheKey(customerID))
	return &resp.Card, nil
}

func (c *SquareClient) ListCards(ctx context.Context, customerID string) ([]models.Card, error) {
	cacheKey := cardsCacheKey(customerID)
	var resp struct {
		Cards []models.Card `json:"cards"`
	}
	if c.readCache(ctx, cacheKey, &resp.Cards) {
		return resp.Cards, nil
	}

	path := "/cards?customer_id=" + url.QueryEscape(customerID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Cards == nil {
		resp.Cards = []models.Card{}
	}
	c.writeCache(ctx, cacheKey, resp.Cards)
	return resp.Cards, nil
}

func cardsCacheKey(customerID string) string {
	return "square:cards:" + customerID
}

func (c *SquareClient) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *SquareClient) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("square cache write failed")
	}
}

func (c *SquareClient) dropCache(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func (c *SquareClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode square request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrProviderUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode square response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &domain.ProviderAPIError{Status: resp.StatusCode}
	var env errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && len(env.Errors) > 0 {
		apiErr.Code = env.Errors[0].Code
		apiErr.Detail = env.Errors[0].Detail
		apiErr.Category = env.Errors[0].Category
	}
	return apiErr
}

func (c *SquareClient) addHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("Square-Version", c.apiVersion)
	}
}
