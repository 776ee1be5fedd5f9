package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"torch/internal/config"
	"torch/internal/logging"
	"torch/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	profileCookie = "torch_profile"
	profileHeader = "X-Profile-ID"
	adminPrefix   = "/api/v1/admin/"

	permReadInquiries = "read:inquiries"
	permReadMembers   = "read:members"
	permWriteExports  = "write:exports"
)

// HTTPAuth guards admin endpoints with API keys and rate limits every client.
type HTTPAuth struct {
	cfg     *config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg *config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m, limiter: newRateLimiter(cfg)}
}

var (
	errPermissionDenied = errors.New("permission denied")
	errAdminDisabled    = errors.New("admin api requires api keys")
)

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, adminPrefix) {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) || errors.Is(err, errAdminDisabled) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.allow(r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	if !a.cfg.Auth.Enabled {
		return errAdminDisabled
	}

	apiKey := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault)))
	extra := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderExtra, apiExtraHeaderDefault)))
	if apiKey == "" || extra == "" {
		return errors.New("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errors.New("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errors.New("invalid extra header")
	}

	return checkPermission(client, requiredPermissionHTTP(r), errPermissionDenied)
}

// checkPermission treats an empty permission list as allow-all.
func checkPermission(client config.APIClientKey, required string, denied error) error {
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return denied
}

func requiredPermissionHTTP(r *http.Request) string {
	switch r.URL.Path {
	case adminPrefix + "inquiries":
		return permReadInquiries
	case adminPrefix + "members", adminPrefix + "sheets/sync", adminPrefix + "sheets/failed":
		return permReadMembers
	case adminPrefix + "exports":
		return permWriteExports
	default:
		return ""
	}
}

func (a *HTTPAuth) allow(r *http.Request) bool {
	if a.cfg.RateLimit.RPS <= 0 {
		return true
	}
	return a.limiter.getLimiter(a.clientKey(r)).Allow()
}

// clientKey identifies the caller: API key, then portal profile, then remote host.
func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(headerOrDefault(a.cfg.Auth.HeaderAPIKey, apiKeyHeaderDefault))); apiKey != "" {
		return "key:" + apiKey
	}
	if profile := profileFromRequest(r); profile != "" {
		return "profile:" + profile
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func headerOrDefault(name, def string) string {
	if h := strings.TrimSpace(name); h != "" {
		return h
	}
	return def
}

// profileFromRequest returns the browser profile id from the cookie or header, or "".
func profileFromRequest(r *http.Request) string {
	if c, err := r.Cookie(profileCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	return strings.TrimSpace(r.Header.Get(profileHeader))
}

// ensureProfile returns the caller's profile id, issuing a new one in a cookie when absent.
func ensureProfile(w http.ResponseWriter, r *http.Request) string {
	if profile := profileFromRequest(r); profile != "" {
		return profile
	}
	profile := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     profileCookie,
		Value:    profile,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().AddDate(1, 0, 0),
	})
	w.Header().Set(profileHeader, profile)
	return profile
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if profile := profileFromRequest(r); profile != "" {
			r = r.WithContext(logging.WithProfile(r.Context(), logger, profile))
		}
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))

		requestLogger(r, logger).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// requestLogger prefers the profile-scoped logger stored in the request context.
func requestLogger(r *http.Request, fallback *zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return fallback
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
