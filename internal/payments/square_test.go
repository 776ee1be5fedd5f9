package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"torch/internal/config"
	"torch/internal/domain"
	"torch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *SquareClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	return NewSquareClient(config.SquareConfig{
		AccessToken: "sq-token",
		APIVersion:  "2024-01-18",
		BaseURL:     srv.URL,
	}, &logger)
}

func TestNewSquareClient_BaseURL(t *testing.T) {
	logger := zerolog.Nop()
	assert.Equal(t, sandboxBaseURL, NewSquareClient(config.SquareConfig{Environment: "sandbox"}, &logger).baseURL)
	assert.Equal(t, productionBaseURL, NewSquareClient(config.SquareConfig{Environment: "production"}, &logger).baseURL)
	assert.Equal(t, "http://local", NewSquareClient(config.SquareConfig{BaseURL: "http://local"}, &logger).baseURL)
}

func TestSearchCustomerByEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/search", r.URL.Path)
		assert.Equal(t, "Bearer sq-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-01-18", r.Header.Get("Square-Version"))

		var body struct {
			Query struct {
				Filter struct {
					EmailAddress struct {
						Exact string `json:"exact"`
					} `json:"email_address"`
				} `json:"filter"`
			} `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body.Query.Filter.EmailAddress.Exact == "known@torch.com" {
			_, _ = w.Write([]byte(`{"customers":[{"id":"CUST1","email_address":"known@torch.com"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	c, err := client.SearchCustomerByEmail(context.Background(), "known@torch.com")
	require.NoError(t, err)
	assert.Equal(t, "CUST1", c.ID)

	c, err = client.SearchCustomerByEmail(context.Background(), "new@torch.com")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestCreateCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/customers", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["idempotency_key"])
		assert.Equal(t, "TORCH-TM001", body["reference_id"])
		assert.Equal(t, "Tier: Ambassador | Founding: Yes", body["note"])
		_, hasID := body["id"]
		assert.False(t, hasID)

		_, _ = w.Write([]byte(`{"customer":{"id":"CUST2","reference_id":"TORCH-TM001"}}`))
	})

	c, err := client.CreateCustomer(context.Background(), models.CustomerRequest{
		GivenName:    "Derrick",
		FamilyName:   "Milano",
		EmailAddress: "derrick@example.com",
		ReferenceID:  "TORCH-TM001",
		Note:         "Tier: Ambassador | Founding: Yes",
	})
	require.NoError(t, err)
	assert.Equal(t, "CUST2", c.ID)
}

func TestSaveCard_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"CARD_DECLINED","detail":"Card declined."}]}`))
	})

	_, err := client.SaveCard(context.Background(), "CUST1", "cnon:bad")
	var apiErr *domain.ProviderAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "CARD_DECLINED", apiErr.Code)
	assert.Equal(t, "Card declined.", apiErr.Detail)
}

func TestSaveCard_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	logger := zerolog.Nop()
	client := NewSquareClient(config.SquareConfig{BaseURL: srv.URL}, &logger)

	_, err := client.SaveCard(context.Background(), "CUST1", "cnon:ok")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestListCards_CachedUntilSave(t *testing.T) {
	var listCalls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/cards":
			listCalls.Add(1)
			assert.Equal(t, "CUST1", r.URL.Query().Get("customer_id"))
			_, _ = w.Write([]byte(`{"cards":[{"id":"ccof:1","card_brand":"VISA","last_4":"1111","exp_month":12,"exp_year":2030}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/cards":
			_, _ = w.Write([]byte(`{"card":{"id":"ccof:2","card_brand":"MASTERCARD","last_4":"4444"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client.UseRedisCache(rdb, time.Minute)
	ctx := context.Background()

	cards, err := client.ListCards(ctx, "CUST1")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "1111", cards[0].Last4)

	_, err = client.ListCards(ctx, "CUST1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, listCalls.Load())
	assert.True(t, mr.Exists(cardsCacheKey("CUST1")))

	_, err = client.SaveCard(ctx, "CUST1", "cnon:ok")
	require.NoError(t, err)
	assert.False(t, mr.Exists(cardsCacheKey("CUST1")))

	_, err = client.ListCards(ctx, "CUST1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, listCalls.Load())
}

func TestListCards_EmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	cards, err := client.ListCards(context.Background(), "CUST9")
	require.NoError(t, err)
	assert.NotNil(t, cards)
	assert.Empty(t, cards)
}
