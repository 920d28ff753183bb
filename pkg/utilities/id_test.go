package utilities

import (
	"strings"
	"testing"
)

func TestNewSeedEmailShouldBeUniqueAndUseDomain(t *testing.T) {
	a := NewSeedEmail("@example.org")
	b := NewSeedEmail("example.org")
	if a == b {
		t.Fatalf("expected unique emails, got %s twice", a)
	}
	for _, e := range []string{a, b} {
		if !strings.HasSuffix(e, "@example.org") {
			t.Errorf("unexpected domain in %s", e)
		}
		if !strings.HasPrefix(e, "seed-") {
			t.Errorf("unexpected prefix in %s", e)
		}
	}
	if got := NewSeedEmail(""); !strings.HasSuffix(got, "@example.com") {
		t.Errorf("expected default domain, got %s", got)
	}
}

func TestNewSeedPasswordShouldMeetPolicy(t *testing.T) {
	pw, err := NewSeedPassword()
	if err != nil {
		t.Fatalf("NewSeedPassword: %v", err)
	}
	if len(pw) < 8 {
		t.Fatalf("password too short: %d", len(pw))
	}
	if !strings.ContainsAny(pw, "!") || !strings.ContainsAny(pw, "0123456789") {
		t.Errorf("password missing symbol or digit: %s", pw)
	}
}

func TestNewRunIDShouldBeKSUIDLength(t *testing.T) {
	if got := len(NewRunID()); got != 27 {
		t.Errorf("expected 27 character ksuid, got %d", got)
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]string{
		"debug":   "debug",
		"warning": "warn",
		"error":   "error",
		"bogus":   "info",
	}
	for in, want := range cases {
		if got := levelFromString(in).String(); got != want {
			t.Errorf("levelFromString(%q) = %s, want %s", in, got, want)
		}
	}
}
