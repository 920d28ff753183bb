// Package rule reconciles declared rule scripts against the provider's rules.
// Declared rules are created or updated; rules the declarations do not name
// are left alone.
package rule

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule/entity"
)

var ErrRuleNotFound = errors.New("rule: declared rule not found on provider")

// Remote is the provider's rules endpoint.
type Remote interface {
	ListRules(ctx context.Context, offset, limit int) (paging.Page[entity.Rule], error)
	CreateRule(ctx context.Context, r entity.Rule) (*entity.Rule, error)
	UpdateRule(ctx context.Context, id string, patch entity.RulePatch) (*entity.Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

type State string

const (
	NeedsCreate State = "needs_create"
	NeedsUpdate State = "needs_update"
	UpToDate    State = "up_to_date"
	Ignored     State = "ignored"
)

// Plan is the outcome of comparing declared rules with remote rules. Every
// list is sorted by name.
type Plan struct {
	ToCreate []string `json:"to_create"`
	ToUpdate []string `json:"to_update"`
	UpToDate []string `json:"up_to_date"`
	// OrderDrift lists declared rules whose remote order differs. They are
	// also in ToUpdate; the provider may refuse to move them.
	OrderDrift []string `json:"order_drift"`
	// Ignored lists remote rules that are not declared.
	Ignored []string `json:"ignored"`
}

// Changes reports whether applying the plan would issue any mutating call.
func (p Plan) Changes() bool {
	return len(p.ToCreate) > 0 || len(p.ToUpdate) > 0
}

// StateOf returns the state name ended up in.
func (p Plan) StateOf(name string) State {
	switch {
	case contains(p.ToCreate, name):
		return NeedsCreate
	case contains(p.ToUpdate, name):
		return NeedsUpdate
	case contains(p.UpToDate, name):
		return UpToDate
	}
	return Ignored
}

func contains(names []string, name string) bool {
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}

// Diff partitions declared against remote by rule name. A rule is up to date
// when enabled, script and (if declared) order all match.
func Diff(declared map[string]entity.DesiredRule, remote []entity.Rule) Plan {
	byName := indexByName(remote)
	plan := Plan{
		ToCreate:   []string{},
		ToUpdate:   []string{},
		UpToDate:   []string{},
		OrderDrift: []string{},
		Ignored:    []string{},
	}
	for _, name := range sortedNames(declared) {
		want := declared[name]
		have, ok := byName[name]
		if !ok {
			plan.ToCreate = append(plan.ToCreate, name)
			continue
		}
		drift := orderDrifted(want.Order, have.Order)
		if drift {
			plan.OrderDrift = append(plan.OrderDrift, name)
		}
		if drift || want.Enabled != have.Enabled || want.Script != have.Script {
			plan.ToUpdate = append(plan.ToUpdate, name)
			continue
		}
		plan.UpToDate = append(plan.UpToDate, name)
	}
	for name := range byName {
		if _, ok := declared[name]; !ok {
			plan.Ignored = append(plan.Ignored, name)
		}
	}
	sort.Strings(plan.Ignored)
	return plan
}

func orderDrifted(want, have *int) bool {
	if want == nil {
		return false
	}
	return have == nil || *have != *want
}

// indexByName keeps the first remote rule seen for each name.
func indexByName(remote []entity.Rule) map[string]entity.Rule {
	out := make(map[string]entity.Rule, len(remote))
	for _, r := range remote {
		if _, dup := out[r.Name]; !dup {
			out[r.Name] = r
		}
	}
	return out
}

func sortedNames(declared map[string]entity.DesiredRule) []string {
	names := make([]string, 0, len(declared))
	for name := range declared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Result reports what Reconcile decided and, unless DryRun, what it changed.
type Result struct {
	Plan    Plan          `json:"plan"`
	DryRun  bool          `json:"dry_run"`
	Created []entity.Rule `json:"created"`
	Updated []entity.Rule `json:"updated"`
}

type TeardownResult struct {
	DryRun  bool     `json:"dry_run"`
	Deleted []string `json:"deleted"`
}

type Service struct {
	remote   Remote
	pageSize int
	logger   *zap.SugaredLogger
}

func NewService(remote Remote, pageSize int, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{remote: remote, pageSize: pageSize, logger: logger}
}

// List returns every remote rule.
func (s *Service) List(ctx context.Context) ([]entity.Rule, error) {
	return paging.Collect(ctx, s.remote.ListRules, s.pageSize)
}

// Plan fetches the remote rules and diffs declared against them.
func (s *Service) Plan(ctx context.Context, declared map[string]entity.DesiredRule) (Plan, error) {
	remote, err := s.List(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("list rules: %w", err)
	}
	return Diff(declared, remote), nil
}

// Reconcile creates missing declared rules and patches drifted ones. With
// dryRun set it only computes and logs the plan.
func (s *Service) Reconcile(ctx context.Context, declared map[string]entity.DesiredRule, dryRun bool) (Result, error) {
	remote, err := s.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list rules: %w", err)
	}
	plan := Diff(declared, remote)
	res := Result{Plan: plan, DryRun: dryRun, Created: []entity.Rule{}, Updated: []entity.Rule{}}
	s.logger.Infow("rule plan",
		"dry_run", dryRun,
		"to_create", plan.ToCreate,
		"to_update", plan.ToUpdate,
		"up_to_date", len(plan.UpToDate),
		"ignored", len(plan.Ignored),
	)
	for _, name := range plan.OrderDrift {
		s.logger.Warnw("rule order differs from declaration; provider may not reorder in place", "rule", name)
	}
	if dryRun {
		return res, nil
	}

	for _, name := range plan.ToCreate {
		created, err := s.remote.CreateRule(ctx, declared[name].ToRule(name))
		if err != nil {
			return res, fmt.Errorf("create rule %q: %w", name, err)
		}
		s.logger.Infow("created rule", "rule", name, "id", created.ID)
		res.Created = append(res.Created, *created)
	}

	byName := indexByName(remote)
	for _, name := range plan.ToUpdate {
		want := declared[name]
		patch := entity.RulePatch{Enabled: want.Enabled, Order: want.Order, Script: want.Script}
		updated, err := s.remote.UpdateRule(ctx, byName[name].ID, patch)
		if err != nil {
			return res, fmt.Errorf("update rule %q: %w", name, err)
		}
		s.logger.Infow("updated rule", "rule", name, "id", updated.ID)
		res.Updated = append(res.Updated, *updated)
	}
	return res, nil
}

// Teardown deletes the named rules. Every name must exist remotely; a missing
// one fails the whole teardown with ErrRuleNotFound before anything is deleted.
func (s *Service) Teardown(ctx context.Context, names []string, dryRun bool) (TeardownResult, error) {
	remote, err := s.List(ctx)
	if err != nil {
		return TeardownResult{}, fmt.Errorf("list rules: %w", err)
	}
	byName := indexByName(remote)
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if _, ok := byName[name]; !ok {
			return TeardownResult{}, fmt.Errorf("%w: %s", ErrRuleNotFound, name)
		}
	}

	res := TeardownResult{DryRun: dryRun, Deleted: []string{}}
	for _, name := range sorted {
		if dryRun {
			s.logger.Infow("would delete rule", "rule", name, "id", byName[name].ID)
			res.Deleted = append(res.Deleted, name)
			continue
		}
		if err := s.remote.DeleteRule(ctx, byName[name].ID); err != nil {
			return res, fmt.Errorf("delete rule %q: %w", name, err)
		}
		s.logger.Infow("deleted rule", "rule", name, "id", byName[name].ID)
		res.Deleted = append(res.Deleted, name)
	}
	return res, nil
}
