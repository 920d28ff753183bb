// Package claims reads user and app metadata out of id_token payloads.
// Providers that enforce OIDC conformance only pass custom claims under a
// namespaced key, so lookups try that key first.
package claims

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
)

const (
	DefaultUserMetadataKey = "user_metadata"
	DefaultAppMetadataKey  = "app_metadata"
)

var ErrMalformedToken = errors.New("claims: malformed id_token")

// Resolver looks a claim up by NamespacedKey when configured and present,
// else by DefaultKey.
type Resolver struct {
	NamespacedKey string
	DefaultKey    string
}

// Lookup returns the resolved claim and whether either key was present.
func (r Resolver) Lookup(payload map[string]any) (any, bool) {
	if r.NamespacedKey != "" {
		if v, ok := payload[r.NamespacedKey]; ok {
			return v, true
		}
	}
	if r.DefaultKey != "" {
		if v, ok := payload[r.DefaultKey]; ok {
			return v, true
		}
	}
	return nil, false
}

// Metadata is Lookup narrowed to a JSON object. Absent or non-object claims
// yield nil.
func (r Resolver) Metadata(payload map[string]any) entity.Metadata {
	v, ok := r.Lookup(payload)
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return entity.Metadata(m)
}

type Config struct {
	// UserMetadataNamespace is the namespaced claim a rule copies
	// user_metadata into, e.g. https://example.com/user_metadata.
	UserMetadataNamespace string
	AppMetadataNamespace  string
}

// Profile is the metadata carried by one id_token.
type Profile struct {
	Subject      string          `json:"sub"`
	Email        string          `json:"email,omitempty"`
	UserMetadata entity.Metadata `json:"user_metadata"`
	AppMetadata  entity.Metadata `json:"app_metadata"`
}

type Reader struct {
	user Resolver
	app  Resolver
}

func NewReader(cfg Config) *Reader {
	return &Reader{
		user: Resolver{NamespacedKey: cfg.UserMetadataNamespace, DefaultKey: DefaultUserMetadataKey},
		app:  Resolver{NamespacedKey: cfg.AppMetadataNamespace, DefaultKey: DefaultAppMetadataKey},
	}
}

// Profile resolves both metadata maps from an already decoded payload.
func (r *Reader) Profile(payload map[string]any) Profile {
	p := Profile{
		UserMetadata: r.user.Metadata(payload),
		AppMetadata:  r.app.Metadata(payload),
	}
	p.Subject, _ = payload["sub"].(string)
	p.Email, _ = payload["email"].(string)
	return p
}

// ProfileFromIDToken decodes raw without verifying its signature and resolves
// its metadata. The token must already have been verified by whoever
// received it from the provider.
func (r *Reader) ProfileFromIDToken(raw string) (Profile, error) {
	payload, err := ParseIDToken(raw)
	if err != nil {
		return Profile{}, err
	}
	return r.Profile(payload), nil
}

// ParseIDToken decodes an id_token payload without signature verification.
func ParseIDToken(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return claims, nil
}
