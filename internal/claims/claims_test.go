package claims

import (
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

const ns = "https://example.com/user_metadata"

func TestResolverLookupOrder(t *testing.T) {
	r := Resolver{NamespacedKey: ns, DefaultKey: DefaultUserMetadataKey}
	cases := []struct {
		name    string
		payload map[string]any
		want    any
		found   bool
	}{
		{"namespaced wins", map[string]any{ns: "n", "user_metadata": "d"}, "n", true},
		{"falls back to default", map[string]any{"user_metadata": "d"}, "d", true},
		{"absent", map[string]any{"sub": "x"}, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.Lookup(tc.payload)
			if ok != tc.found || got != tc.want {
				t.Errorf("Lookup = %v,%v want %v,%v", got, ok, tc.want, tc.found)
			}
		})
	}
}

func TestResolverWithoutNamespaceUsesDefault(t *testing.T) {
	r := Resolver{DefaultKey: DefaultAppMetadataKey}
	got, ok := r.Lookup(map[string]any{ns: "n", "app_metadata": "d"})
	if !ok || got != "d" {
		t.Errorf("Lookup = %v,%v", got, ok)
	}
}

func TestMetadataShouldIgnoreNonObjects(t *testing.T) {
	r := Resolver{DefaultKey: DefaultUserMetadataKey}
	if m := r.Metadata(map[string]any{"user_metadata": "oops"}); m != nil {
		t.Errorf("expected nil, got %v", m)
	}
}

func TestProfileFromIDToken(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":          "auth0|42",
		"email":        "a@example.com",
		ns:             map[string]any{"plan": "pro"},
		"app_metadata": map[string]any{"role": "admin"},
	})
	raw, err := tok.SignedString([]byte("not-checked"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p, err := NewReader(Config{UserMetadataNamespace: ns}).ProfileFromIDToken(raw)
	if err != nil {
		t.Fatalf("ProfileFromIDToken: %v", err)
	}
	if p.Subject != "auth0|42" || p.Email != "a@example.com" {
		t.Errorf("unexpected identity %+v", p)
	}
	if p.UserMetadata["plan"] != "pro" {
		t.Errorf("user_metadata = %v", p.UserMetadata)
	}
	if p.AppMetadata["role"] != "admin" {
		t.Errorf("app_metadata = %v", p.AppMetadata)
	}
}

func TestParseIDTokenShouldRejectGarbage(t *testing.T) {
	if _, err := ParseIDToken("not.a.jwt"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected ErrMalformedToken, got %v", err)
	}
}
