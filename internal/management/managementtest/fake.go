// Package managementtest provides an in-memory management API for tests.
package managementtest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/management"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/paging"
	rentity "github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/rule/entity"
	cfgentity "github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/ruleconfig/entity"
	uentity "github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/user/entity"
)

// Fake is a test-only management API. It stores users, rules and rule
// configs in memory and exposes error fields for behavior injection.
type Fake struct {
	mu sync.Mutex

	users   []uentity.RemoteUser
	rules   []rentity.Rule
	configs map[string]any
	nextID  int

	// PageCap caps the page size the fake applies (0 = no cap).
	PageCap int
	// GetLag is how many GetUser calls keep returning a deleted user, and how
	// many return not found for a freshly created one.
	GetLag int
	lag    map[string]int

	CreateErr error
	DeleteErr error
	GetErr    error
	ListErr   error

	Creates      int
	Deletes      int
	Gets         int
	Lists        int
	RuleCreates  int
	RuleUpdates  int
	RuleDeletes  int
	ConfigSets   int
	ConfigUnsets int
}

func New() *Fake {
	return &Fake{configs: map[string]any{}, lag: map[string]int{}}
}

// Mutations counts every mutating call received.
func (f *Fake) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Creates + f.Deletes + f.RuleCreates + f.RuleUpdates + f.RuleDeletes + f.ConfigSets + f.ConfigUnsets
}

func notFound(msg string) error {
	return &management.APIError{StatusCode: http.StatusNotFound, Status: "Not Found", Message: msg, ErrorCode: "inexistent_user"}
}

// SeedUsers adds n users without counting them as creates.
func (f *Fake) SeedUsers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.users = append(f.users, f.newUser(fmt.Sprintf("seed%d@example.com", i)))
	}
}

func (f *Fake) newUser(email string) uentity.RemoteUser {
	f.nextID++
	return uentity.RemoteUser{
		UserID:     fmt.Sprintf("auth0|%06d", f.nextID),
		Email:      email,
		Connection: "Username-Password-Authentication",
	}
}

// UserIDs returns the ids of the stored users in listing order.
func (f *Fake) UserIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.users))
	for _, u := range f.users {
		ids = append(ids, u.UserID)
	}
	return ids
}

func window[T any](items []T, offset, limit, capSize int) paging.Page[T] {
	if limit <= 0 {
		limit = paging.DefaultPageSize
	}
	if capSize > 0 && limit > capSize {
		limit = capSize
	}
	start := (offset / limit) * limit
	page := paging.Page[T]{Total: len(items), Limit: limit}
	if start >= len(items) {
		return page
	}
	end := min(start+limit, len(items))
	page.Items = append([]T(nil), items[start:end]...)
	return page
}

func (f *Fake) ListUsers(_ context.Context, offset, limit int) (paging.Page[uentity.RemoteUser], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if f.ListErr != nil {
		return paging.Page[uentity.RemoteUser]{}, f.ListErr
	}
	return window(f.users, offset, limit, f.PageCap), nil
}

func (f *Fake) GetUser(_ context.Context, userID string) (*uentity.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	if n := f.lag[userID]; n > 0 {
		f.lag[userID] = n - 1
		for _, u := range f.users {
			if u.UserID == userID {
				// freshly created: not visible yet
				return nil, notFound("The user does not exist.")
			}
		}
		// freshly deleted: still visible
		return &uentity.RemoteUser{UserID: userID}, nil
	}
	for _, u := range f.users {
		if u.UserID == userID {
			cp := u
			return &cp, nil
		}
	}
	return nil, notFound("The user does not exist.")
}

func (f *Fake) CreateUser(_ context.Context, spec uentity.UserSpec) (*uentity.RemoteUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creates++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	u := f.newUser(spec.Email)
	u.Connection = spec.Connection
	u.EmailVerified = spec.EmailVerified
	f.users = append(f.users, u)
	if f.GetLag > 0 {
		f.lag[u.UserID] = f.GetLag
	}
	return &u, nil
}

func (f *Fake) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes++
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i, u := range f.users {
		if u.UserID == userID {
			f.users = append(f.users[:i], f.users[i+1:]...)
			if f.GetLag > 0 {
				f.lag[userID] = f.GetLag
			}
			return nil
		}
	}
	return notFound("The user does not exist.")
}

// SeedRule stores r and returns it with an assigned id.
func (f *Fake) SeedRule(r rentity.Rule) rentity.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r.ID = fmt.Sprintf("rul_%d", f.nextID)
	f.rules = append(f.rules, r)
	return r
}

// Rules returns a copy of the stored rules.
func (f *Fake) Rules() []rentity.Rule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rentity.Rule(nil), f.rules...)
}

func (f *Fake) ListRules(_ context.Context, offset, limit int) (paging.Page[rentity.Rule], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if f.ListErr != nil {
		return paging.Page[rentity.Rule]{}, f.ListErr
	}
	return window(f.rules, offset, limit, f.PageCap), nil
}

func (f *Fake) CreateRule(_ context.Context, r rentity.Rule) (*rentity.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RuleCreates++
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.nextID++
	r.ID = fmt.Sprintf("rul_%d", f.nextID)
	f.rules = append(f.rules, r)
	return &r, nil
}

func (f *Fake) UpdateRule(_ context.Context, id string, patch rentity.RulePatch) (*rentity.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RuleUpdates++
	for i := range f.rules {
		if f.rules[i].ID != id {
			continue
		}
		if patch.Name != "" {
			f.rules[i].Name = patch.Name
		}
		f.rules[i].Enabled = patch.Enabled
		f.rules[i].Script = patch.Script
		if patch.Order != nil {
			o := *patch.Order
			f.rules[i].Order = &o
		}
		cp := f.rules[i]
		return &cp, nil
	}
	return nil, notFound("The rule does not exist.")
}

func (f *Fake) DeleteRule(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RuleDeletes++
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return notFound("The rule does not exist.")
}

// SeedConfig stores key without counting it as a set.
func (f *Fake) SeedConfig(key string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[key] = value
}

// Config returns the stored value for key.
func (f *Fake) Config(key string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.configs[key]
	return v, ok
}

func (f *Fake) ListRuleConfigs(context.Context) ([]cfgentity.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	keys := make([]string, 0, len(f.configs))
	for k := range f.configs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]cfgentity.Entry, 0, len(keys))
	for _, k := range keys {
		out = append(out, cfgentity.Entry{Key: k})
	}
	return out, nil
}

func (f *Fake) SetRuleConfig(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConfigSets++
	f.configs[key] = value
	return nil
}

func (f *Fake) UnsetRuleConfig(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConfigUnsets++
	if _, ok := f.configs[key]; !ok {
		return notFound("The rules config does not exist.")
	}
	delete(f.configs, key)
	return nil
}
