// Package config reads process configuration from the environment and
// declared provider state from a declarations file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
)

var (
	ErrMissingDomain      = errors.New("config: IDP_DOMAIN is required")
	ErrMissingCredentials = errors.New("config: IDP_CLIENT_ID and IDP_CLIENT_SECRET are required")
	ErrInvalidValue       = errors.New("config: invalid value")
)

// ProviderConfig describes the identity provider tenant and how hard to poll it.
type ProviderConfig struct {
	// Domain is the tenant host. A scheme may be given for local endpoints;
	// https is assumed otherwise.
	Domain       string
	Audience     string
	ClientID     string
	ClientSecret string
	TokenTTL     time.Duration
	PageSize     int
	Connection   string
	EmailDomain  string

	PollInterval time.Duration
	PollTimeout  time.Duration

	UserMetadataNamespace string
	AppMetadataNamespace  string

	DeclarationsFile string
	HTTPAddr         string
}

// ProviderConfigFromEnv reads IDP_* variables. Malformed numbers and
// durations are reported; missing ones fall back to defaults.
func ProviderConfigFromEnv() (ProviderConfig, error) {
	cfg := ProviderConfig{
		Domain:                strings.TrimSpace(os.Getenv("IDP_DOMAIN")),
		Audience:              os.Getenv("IDP_AUDIENCE"),
		ClientID:              os.Getenv("IDP_CLIENT_ID"),
		ClientSecret:          os.Getenv("IDP_CLIENT_SECRET"),
		Connection:            envOr("IDP_CONNECTION", "Username-Password-Authentication"),
		EmailDomain:           envOr("IDP_SEED_EMAIL_DOMAIN", "example.com"),
		UserMetadataNamespace: os.Getenv("IDP_USER_METADATA_NAMESPACE"),
		AppMetadataNamespace:  os.Getenv("IDP_APP_METADATA_NAMESPACE"),
		DeclarationsFile:      envOr("IDP_DECLARATIONS", "idpsync.toml"),
		HTTPAddr:              envOr("IDP_HTTP_ADDR", "0.0.0.0:8431"),
	}
	var err error
	if cfg.TokenTTL, err = envDuration("IDP_TOKEN_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = envDuration("IDP_POLL_INTERVAL", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.PollTimeout, err = envDuration("IDP_POLL_TIMEOUT", 300*time.Second); err != nil {
		return cfg, err
	}
	if cfg.PageSize, err = envInt("IDP_PAGE_SIZE", paging.DefaultPageSize); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields needed to reach the management API.
func (c ProviderConfig) Validate() error {
	if c.Domain == "" {
		return ErrMissingDomain
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c ProviderConfig) baseURL() string {
	d := strings.TrimRight(c.Domain, "/")
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		return d
	}
	return "https://" + d
}

// TokenURL is the client-credentials endpoint.
func (c ProviderConfig) TokenURL() string { return c.baseURL() + "/oauth/token" }

// ManagementURL is the management API root.
func (c ProviderConfig) ManagementURL() string { return c.baseURL() + "/api/v2" }

// ManagementAudience is Audience, or the management API identifier when unset.
func (c ProviderConfig) ManagementAudience() string {
	if c.Audience != "" {
		return c.Audience
	}
	return c.ManagementURL() + "/"
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
	}
	return n, nil
}
