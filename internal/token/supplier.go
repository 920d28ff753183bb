// Package token supplies the management API bearer credential.
package token

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a credential is reused, regardless of the
	// (usually 24h) lifetime the provider grants.
	DefaultTTL          = time.Hour
	DefaultSafetyMargin = time.Minute

	exchangeTimeout = 30 * time.Second
	storeTimeout    = 2 * time.Second
)

var ErrMissingClientCredentials = errors.New("token: client id, client secret and token url are required")

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string
	TTL          time.Duration
	SafetyMargin time.Duration
}

// Exchanger performs one client-credentials grant.
type Exchanger interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// Store is an optional cache shared with other processes.
type Store interface {
	Load(ctx context.Context) (Credential, bool, error)
	Save(ctx context.Context, cred Credential) error
	Delete(ctx context.Context) error
}

// Supplier caches one credential and refreshes it single-flight.
type Supplier struct {
	cfg       Config
	exchanger Exchanger
	store     Store
	clock     clockwork.Clock
	logger    *zap.SugaredLogger

	mu     sync.RWMutex
	cached Credential

	// rejected is the last access token dropped by Invalidate; the shared
	// store may still hold it if its delete failed.
	rejected string
	group    singleflight.Group
}

type Option func(*Supplier)

// WithExchanger replaces the client-credentials exchange (tests, custom grants).
func WithExchanger(e Exchanger) Option { return func(s *Supplier) { s.exchanger = e } }

// WithStore shares the credential through an external cache.
func WithStore(st Store) Option { return func(s *Supplier) { s.store = st } }

func WithClock(c clockwork.Clock) Option { return func(s *Supplier) { s.clock = c } }

// NewSupplier validates cfg and builds a supplier backed by a
// clientcredentials exchange against cfg.TokenURL.
func NewSupplier(cfg Config, logger *zap.SugaredLogger, opts ...Option) (*Supplier, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SafetyMargin < 0 || cfg.SafetyMargin >= cfg.TTL {
		cfg.SafetyMargin = DefaultSafetyMargin
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Supplier{cfg: cfg, clock: clockwork.NewRealClock(), logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.exchanger == nil {
		if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" || strings.TrimSpace(cfg.TokenURL) == "" {
			return nil, ErrMissingClientCredentials
		}
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		if cfg.Audience != "" {
			cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
		}
		s.exchanger = cc
	}
	return s, nil
}

// Get returns the cached credential while it is fresh, otherwise exchanges a
// new one. Concurrent callers share one exchange and observe the same result.
func (s *Supplier) Get(ctx context.Context) (Credential, error) {
	if cred, ok := s.current(); ok {
		return cred, nil
	}
	v, err, shared := s.group.Do("credential", func() (any, error) {
		// joined callers must not inherit the first caller's cancellation
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()
		return s.refresh(rctx)
	})
	if err != nil {
		return Credential{}, err
	}
	if shared {
		s.logger.Debugw("joined in-flight credential exchange")
	}
	return v.(Credential), nil
}

// AccessToken returns only the bearer string.
func (s *Supplier) AccessToken(ctx context.Context) (string, error) {
	cred, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Token implements oauth2.TokenSource.
func (s *Supplier) Token() (*oauth2.Token, error) {
	cred, err := s.Get(context.Background())
	if err != nil {
		return nil, err
	}
	return cred.OAuth2(), nil
}

// Invalidate drops the cached credential, locally and in the shared store,
// so the next Get exchanges again.
func (s *Supplier) Invalidate() {
	s.mu.Lock()
	if s.cached.AccessToken != "" {
		s.rejected = s.cached.AccessToken
	}
	s.cached = Credential{}
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Delete(ctx); err != nil {
		s.logger.Warnw("shared credential cache delete failed", "err", err)
	}
}

func (s *Supplier) current() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached.Fresh(s.clock.Now(), s.margin(s.cached)) {
		return s.cached, true
	}
	return Credential{}, false
}

// margin is the safety margin for cred, clamped to half its lifetime so a
// short-lived token is still used for a while.
func (s *Supplier) margin(cred Credential) time.Duration {
	if cred.ObtainedAt.IsZero() {
		return s.cfg.SafetyMargin
	}
	if half := cred.Expiry.Sub(cred.ObtainedAt) / 2; half < s.cfg.SafetyMargin {
		return max(half, 0)
	}
	return s.cfg.SafetyMargin
}

func (s *Supplier) isRejected(cred Credential) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected != "" && cred.AccessToken == s.rejected
}

func (s *Supplier) refresh(ctx context.Context) (Credential, error) {
	// another caller may have refreshed between the read and the flight
	if cred, ok := s.current(); ok {
		return cred, nil
	}
	if s.store != nil {
		cred, ok, err := s.store.Load(ctx)
		if err != nil {
			s.logger.Warnw("shared credential cache load failed", "err", err)
		} else if ok && !s.isRejected(cred) && cred.Fresh(s.clock.Now(), s.margin(cred)) {
			s.set(cred)
			s.logger.Debugw("using shared cached management api credential", "expiry", cred.Expiry)
			return cred, nil
		}
	}

	s.logger.Infow("no cached management api credential, exchanging client credentials", "client_id", s.cfg.ClientID)
	tok, err := s.exchanger.Token(ctx)
	if err != nil {
		s.logger.Warnw("credential exchange failed", "err", err)
		return Credential{}, exchangeError(err)
	}
	if tok == nil || tok.AccessToken == "" {
		return Credential{}, exchangeError(errors.New("token endpoint returned no access_token"))
	}

	now := s.clock.Now()
	expiry := now.Add(s.cfg.TTL)
	if granted, ok := declaredExpiry(tok); ok && granted.Before(expiry) {
		// never hand out a token past the provider's own expiry
		expiry = granted
	}
	cred := Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ObtainedAt:  now,
		Expiry:      expiry,
	}
	s.set(cred)
	if s.store != nil {
		if err := s.store.Save(ctx, cred); err != nil {
			s.logger.Warnw("shared credential cache save failed", "err", err)
		}
	}
	s.logger.Infow("obtained management api credential", "expiry", cred.Expiry)
	return cred, nil
}

func (s *Supplier) set(cred Credential) {
	s.mu.Lock()
	s.cached = cred
	s.mu.Unlock()
}
