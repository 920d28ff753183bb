// Package cache shares the management API credential between processes
// through Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/token"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// ConfigFromEnv reads REDIS_ADDR and REDIS_PASSWORD; an empty Addr disables the cache.
func ConfigFromEnv() Config {
	return Config{Addr: os.Getenv("REDIS_ADDR"), Password: os.Getenv("REDIS_PASSWORD")}
}

type Client struct {
	*goredis.Client
}

// New connects and pings Redis.
func New(ctx context.Context, cfg Config) (*Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{Client: client}, nil
}

// TokenStore implements token.Store. One key per management client id.
type TokenStore struct {
	client *Client
	key    string
}

func NewTokenStore(client *Client, clientID string) *TokenStore {
	return &TokenStore{client: client, key: "idpsync:mgmt-token:" + clientID}
}

func (s *TokenStore) Load(ctx context.Context) (token.Credential, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return token.Credential{}, false, nil
		}
		return token.Credential{}, false, err
	}
	var cred token.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return token.Credential{}, false, fmt.Errorf("decode cached credential: %w", err)
	}
	return cred, true, nil
}

// Save stores the credential until its expiry.
func (s *TokenStore) Save(ctx context.Context, cred token.Credential) error {
	ttl := time.Until(cred.Expiry)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, raw, ttl).Err()
}

// Delete removes the shared credential, e.g. after the API rejected it.
func (s *TokenStore) Delete(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
