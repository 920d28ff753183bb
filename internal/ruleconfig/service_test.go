package ruleconfig

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/management/managementtest"
	"github.com/ovaphlow/pitchfork/service-idp-sync-go/internal/ruleconfig/entity"
)

func TestDiffShouldCompareKeysOnly(t *testing.T) {
	remote := []entity.Entry{{Key: "API_URL"}, {Key: "LEGACY"}}
	plan := Diff(map[string]any{"API_URL": "https://new", "SECRET": "s"}, remote)

	if !reflect.DeepEqual(plan.New, []string{"SECRET"}) {
		t.Errorf("new = %v", plan.New)
	}
	if !reflect.DeepEqual(plan.Reset, []string{"API_URL"}) {
		t.Errorf("reset = %v", plan.Reset)
	}
	if !reflect.DeepEqual(plan.Undeclared, []string{"LEGACY"}) {
		t.Errorf("undeclared = %v", plan.Undeclared)
	}
}

func TestApplyShouldUpsertEveryDeclaredKey(t *testing.T) {
	fake := managementtest.New()
	fake.SeedConfig("API_URL", "https://old")
	svc := NewService(fake, zaptest.NewLogger(t).Sugar())

	plan, err := svc.Apply(context.Background(), map[string]any{
		"API_URL": "https://new",
		"LIMITS":  map[string]any{"max": 3},
	}, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if fake.ConfigSets != 2 {
		t.Errorf("expected 2 sets, got %d", fake.ConfigSets)
	}
	if v, _ := fake.Config("API_URL"); v != "https://new" {
		t.Errorf("API_URL = %v", v)
	}
	if !reflect.DeepEqual(plan.New, []string{"LIMITS"}) {
		t.Errorf("new = %v", plan.New)
	}
}

func TestApplyDryRunShouldNotMutate(t *testing.T) {
	fake := managementtest.New()
	svc := NewService(fake, zaptest.NewLogger(t).Sugar())

	plan, err := svc.Apply(context.Background(), map[string]any{"A": 1, "B": true}, true)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if fake.Mutations() != 0 {
		t.Fatalf("dry run issued %d mutating calls", fake.Mutations())
	}
	if len(plan.New) != 2 {
		t.Errorf("new = %v", plan.New)
	}
}

func TestApplyShouldRejectInvalidDeclarations(t *testing.T) {
	fake := managementtest.New()
	svc := NewService(fake, zaptest.NewLogger(t).Sugar())

	if _, err := svc.Apply(context.Background(), map[string]any{"": 1}, false); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if _, err := svc.Apply(context.Background(), map[string]any{"F": func() {}}, false); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("expected ErrInvalidJSON, got %v", err)
	}
	if fake.Mutations() != 0 {
		t.Errorf("invalid declarations must not be applied")
	}
}

func TestTeardownShouldFailOnMissingKey(t *testing.T) {
	fake := managementtest.New()
	fake.SeedConfig("A", 1)
	svc := NewService(fake, zaptest.NewLogger(t).Sugar())

	_, err := svc.Teardown(context.Background(), []string{"A", "B"}, false)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if fake.ConfigUnsets != 0 {
		t.Errorf("expected no unsets, got %d", fake.ConfigUnsets)
	}
}

func TestTeardownShouldUnsetDeclaredKeys(t *testing.T) {
	fake := managementtest.New()
	fake.SeedConfig("A", 1)
	fake.SeedConfig("B", 2)
	svc := NewService(fake, zaptest.NewLogger(t).Sugar())

	if _, err := svc.Teardown(context.Background(), []string{"A"}, true); err != nil || fake.Mutations() != 0 {
		t.Fatalf("dry run: err=%v mutations=%d", err, fake.Mutations())
	}
	removed, err := svc.Teardown(context.Background(), []string{"A"}, false)
	if err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{"A"}) {
		t.Errorf("removed = %v", removed)
	}
	if _, ok := fake.Config("A"); ok {
		t.Error("A should be unset")
	}
	if _, ok := fake.Config("B"); !ok {
		t.Error("B should be untouched")
	}
}
