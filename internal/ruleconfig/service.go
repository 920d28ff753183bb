// Package ruleconfig keeps declared rule-config keys set on the provider.
// Values are write-only remotely, so keys are compared for presence only.
package ruleconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/ruleconfig/entity"
)

var (
	ErrKeyNotFound = errors.New("ruleconfig: declared key not found on provider")
	ErrEmptyKey    = errors.New("ruleconfig: key is required")
	ErrInvalidJSON = errors.New("ruleconfig: value is not JSON serializable")
)

// Remote is the provider's rule-config endpoint.
type Remote interface {
	ListRuleConfigs(ctx context.Context) ([]entity.Entry, error)
	SetRuleConfig(ctx context.Context, key string, value any) error
	UnsetRuleConfig(ctx context.Context, key string) error
}

// Plan compares declared keys with remote keys. Lists are sorted.
type Plan struct {
	// New keys are declared but absent remotely.
	New []string `json:"new"`
	// Reset keys exist remotely and will be overwritten.
	Reset []string `json:"reset"`
	// Undeclared keys exist remotely only and are left alone.
	Undeclared []string `json:"undeclared"`
}

// Diff partitions declared against the remote key listing.
func Diff(declared map[string]any, remote []entity.Entry) Plan {
	have := keyIndex(remote)
	plan := Plan{New: []string{}, Reset: []string{}, Undeclared: []string{}}
	for _, k := range sortedKeys(declared) {
		if _, ok := have[k]; ok {
			plan.Reset = append(plan.Reset, k)
		} else {
			plan.New = append(plan.New, k)
		}
	}
	for k := range have {
		if _, ok := declared[k]; !ok {
			plan.Undeclared = append(plan.Undeclared, k)
		}
	}
	sort.Strings(plan.Undeclared)
	return plan
}

// keyIndex maps each remote key to the identifier used to unset it. The
// listing exposes no separate id, so the key is its own identifier.
func keyIndex(remote []entity.Entry) map[string]string {
	out := make(map[string]string, len(remote))
	for _, e := range remote {
		out[e.Key] = e.Key
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Service struct {
	remote Remote
	logger *zap.SugaredLogger
}

func NewService(remote Remote, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{remote: remote, logger: logger}
}

func (s *Service) Plan(ctx context.Context, declared map[string]any) (Plan, error) {
	remote, err := s.remote.ListRuleConfigs(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("list rule configs: %w", err)
	}
	return Diff(declared, remote), nil
}

// Apply sets every declared key. Setting is an upsert, so keys that already
// exist are simply overwritten. With dryRun set nothing is written.
func (s *Service) Apply(ctx context.Context, declared map[string]any, dryRun bool) (Plan, error) {
	for k, v := range declared {
		if k == "" {
			return Plan{}, ErrEmptyKey
		}
		if _, err := json.Marshal(v); err != nil {
			return Plan{}, fmt.Errorf("%w: %s: %v", ErrInvalidJSON, k, err)
		}
	}
	plan, err := s.Plan(ctx, declared)
	if err != nil {
		return Plan{}, err
	}
	s.logger.Infow("rule config plan", "dry_run", dryRun, "new", plan.New, "reset", plan.Reset, "undeclared", len(plan.Undeclared))
	if dryRun {
		return plan, nil
	}
	for _, k := range sortedKeys(declared) {
		if err := s.remote.SetRuleConfig(ctx, k, declared[k]); err != nil {
			return plan, fmt.Errorf("set rule config %q: %w", k, err)
		}
		s.logger.Debugw("set rule config", "key", k)
	}
	return plan, nil
}

// Teardown unsets the given keys. A key that is not set remotely fails the
// teardown with ErrKeyNotFound before anything is unset.
func (s *Service) Teardown(ctx context.Context, keys []string, dryRun bool) ([]string, error) {
	remote, err := s.remote.ListRuleConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rule configs: %w", err)
	}
	ids := keyIndex(remote)
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		if _, ok := ids[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, k)
		}
	}
	removed := make([]string, 0, len(sorted))
	for _, k := range sorted {
		if dryRun {
			s.logger.Infow("would unset rule config", "key", k)
			removed = append(removed, k)
			continue
		}
		if err := s.remote.UnsetRuleConfig(ctx, ids[k]); err != nil {
			return removed, fmt.Errorf("unset rule config %q: %w", k, err)
		}
		s.logger.Infow("unset rule config", "key", k)
		removed = append(removed, k)
	}
	return removed, nil
}
