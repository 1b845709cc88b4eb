package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"studiodesk/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	actorHeader           = "x-actor-id"
	clientKeyUnknown      = "unknown"

	permReadAvailability = "read:availability"
	permReadBookings     = "read:bookings"
	permWriteBookings    = "write:bookings"
	permWriteInventory   = "write:inventory"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

// authenticator validates API keys for both transports.
type authenticator struct {
	cfg          config.APIConfig
	clients      map[string]config.APIClientKey
	apiKeyHeader string
	extraHeader  string
	limiter      *rateLimiter
}

func newAuthenticator(cfg config.APIConfig) *authenticator {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}

	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &authenticator{
		cfg:          cfg,
		clients:      m,
		apiKeyHeader: apiKeyHeader,
		extraHeader:  extraHeader,
		limiter:      newRateLimiter(cfg.RateLimit),
	}
}

// authenticate resolves the client for a key pair and checks it holds the
// required permission. An empty permission list allows everything.
func (a *authenticator) authenticate(apiKey, extra, required string) (config.APIClientKey, error) {
	apiKey = strings.TrimSpace(apiKey)
	extra = strings.TrimSpace(extra)
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}

	if required == "" || len(client.Permissions) == 0 {
		return client, nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return client, nil
		}
	}
	return config.APIClientKey{}, errPermissionDenied
}

type actorKey struct{}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFromContext returns the staff id the request acts as.
func actorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}

// clientActor prefers the linked staff id over the key name.
func clientActor(client config.APIClientKey) string {
	if client.StaffID != "" {
		return client.StaffID
	}
	return client.Name
}
