package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Credential is a management API bearer token and the wall-clock time the
// supplier stops handing it out. It is replaced whole, never mutated.
type Credential struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ObtainedAt  time.Time `json:"obtained_at"`
	Expiry      time.Time `json:"expiry"`
}

// Fresh reports whether the credential can still be used at now, keeping
// margin in reserve.
func (c Credential) Fresh(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" {
		return false
	}
	return now.Before(c.Expiry.Add(-margin))
}

// OAuth2 converts the credential for use with an oauth2.Transport.
func (c Credential) OAuth2() *oauth2.Token {
	typ := c.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return &oauth2.Token{AccessToken: c.AccessToken, TokenType: typ, Expiry: c.Expiry}
}

// CredentialExchangeError wraps a failed client-credentials exchange.
type CredentialExchangeError struct {
	StatusCode int
	Code       string
	Err        error
}

func (e *CredentialExchangeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("credential exchange failed: status=%d code=%s: %v", e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("credential exchange failed: %v", e.Err)
}

func (e *CredentialExchangeError) Unwrap() error { return e.Err }

func exchangeError(err error) *CredentialExchangeError {
	out := &CredentialExchangeError{Err: err}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		out.Code = re.ErrorCode
		if re.Response != nil {
			out.StatusCode = re.Response.StatusCode
		}
	}
	return out
}

// declaredExpiry returns the expiry the provider granted, from the token
// response or, failing that, from the exp claim of a JWT access token.
func declaredExpiry(tok *oauth2.Token) (time.Time, bool) {
	if !tok.Expiry.IsZero() {
		return tok.Expiry, true
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
