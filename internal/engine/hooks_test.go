package engine

import (
	"context"
	"errors"
	"testing"
)

func hookCtx(op Operation) *HookContext {
	return &HookContext{
		Entity:    testEntity(),
		Operation: op,
		Security:  secCtx(),
		Record:    map[string]any{"title": "x"},
	}
}

func TestHookRegistry_BeforeRunsInOrder(t *testing.T) {
	r := NewHookRegistry()
	var order []int
	r.RegisterBefore("test_entities", OpCreate, func(ctx context.Context, hc *HookContext) Decision {
		order = append(order, 1)
		return ContinueDecision()
	})
	r.RegisterBefore("test_entities", OpCreate, func(ctx context.Context, hc *HookContext) Decision {
		order = append(order, 2)
		return ContinueDecision()
	})

	d := r.ExecuteBefore(context.Background(), hookCtx(OpCreate))
	if !d.Continue {
		t.Fatalf("expected continue, got veto: %s", d.Reason)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("hooks ran out of order: %v", order)
	}
}

func TestHookRegistry_FirstVetoWinsAndShortCircuits(t *testing.T) {
	r := NewHookRegistry()
	var secondRan bool
	r.RegisterBefore("test_entities", OpDelete, func(ctx context.Context, hc *HookContext) Decision {
		return AbortDecision("record is locked")
	})
	r.RegisterBefore("test_entities", OpDelete, func(ctx context.Context, hc *HookContext) Decision {
		secondRan = true
		return ContinueDecision()
	})

	d := r.ExecuteBefore(context.Background(), hookCtx(OpDelete))
	if d.Continue {
		t.Fatal("expected veto")
	}
	if d.Reason != "record is locked" {
		t.Errorf("reason = %q", d.Reason)
	}
	if secondRan {
		t.Error("hooks after a veto must not run")
	}
}

func TestHookRegistry_ScopedToEntityAndOperation(t *testing.T) {
	r := NewHookRegistry()
	r.RegisterBefore("other_entities", OpCreate, func(ctx context.Context, hc *HookContext) Decision {
		return AbortDecision("wrong entity")
	})
	r.RegisterBefore("test_entities", OpUpdate, func(ctx context.Context, hc *HookContext) Decision {
		return AbortDecision("wrong operation")
	})

	if d := r.ExecuteBefore(context.Background(), hookCtx(OpCreate)); !d.Continue {
		t.Fatalf("hook leaked across entity/operation: %s", d.Reason)
	}
}

func TestHookRegistry_AfterHookFailuresAreSwallowed(t *testing.T) {
	r := NewHookRegistry()
	var ran []string
	r.RegisterAfter("test_entities", OpCreate, func(ctx context.Context, hc *HookContext) error {
		ran = append(ran, "failing")
		return errors.New("delivery refused")
	})
	r.RegisterAfter("test_entities", OpCreate, func(ctx context.Context, hc *HookContext) error {
		ran = append(ran, "panicking")
		panic("boom")
	})
	r.RegisterAfter("test_entities", OpCreate, func(ctx context.Context, hc *HookContext) error {
		ran = append(ran, "ok")
		return nil
	})

	// Must not panic and must run every hook despite earlier failures.
	r.ExecuteAfter(context.Background(), hookCtx(OpCreate))
	if len(ran) != 3 {
		t.Fatalf("expected all after-hooks to run, got %v", ran)
	}
}

func TestHookRegistry_EmptyRegistryContinues(t *testing.T) {
	r := NewHookRegistry()
	if d := r.ExecuteBefore(context.Background(), hookCtx(OpUpdate)); !d.Continue {
		t.Fatal("empty registry must allow the mutation")
	}
	r.ExecuteAfter(context.Background(), hookCtx(OpUpdate))
}
