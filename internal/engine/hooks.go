package engine

import (
	"context"
	"log"
	"sync"

	"anchor-backend/internal/registry"
)

// Operation names a mutation the hook system can observe.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Decision is a before-hook's verdict. Vetoes are values, not errors, so
// control flow stays explicit.
type Decision struct {
	Continue bool
	Reason   string
}

// ContinueDecision allows the mutation to proceed.
func ContinueDecision() Decision { return Decision{Continue: true} }

// AbortDecision vetoes the mutation with a caller-visible reason.
func AbortDecision(reason string) Decision { return Decision{Continue: false, Reason: reason} }

// HookContext carries everything a hook may inspect. Record is the incoming
// payload for create/update and the pre-delete row for delete; Old is the
// previous row on update.
type HookContext struct {
	Entity    *registry.Entity
	Operation Operation
	Security  registry.SecurityContext
	Record    map[string]any
	Old       map[string]any
}

// BeforeHook runs ahead of the mutation and may veto it.
type BeforeHook func(ctx context.Context, hc *HookContext) Decision

// AfterHook runs after the mutation committed. Failures are logged, never
// surfaced: they must not undo a committed write.
type AfterHook func(ctx context.Context, hc *HookContext) error

type hookKey struct {
	entity    string
	operation Operation
}

// HookRegistry keeps ordered before/after hook lists per (entity, operation).
type HookRegistry struct {
	mu     sync.RWMutex
	before map[hookKey][]BeforeHook
	after  map[hookKey][]AfterHook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		before: make(map[hookKey][]BeforeHook),
		after:  make(map[hookKey][]AfterHook),
	}
}

// RegisterBefore appends a before-hook for the given entity slug and operation.
func (r *HookRegistry) RegisterBefore(slug string, op Operation, h BeforeHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := hookKey{entity: slug, operation: op}
	r.before[k] = append(r.before[k], h)
}

// RegisterAfter appends an after-hook for the given entity slug and operation.
func (r *HookRegistry) RegisterAfter(slug string, op Operation, h AfterHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := hookKey{entity: slug, operation: op}
	r.after[k] = append(r.after[k], h)
}

// ExecuteBefore runs the before-hooks in registration order and returns the
// first veto, if any.
func (r *HookRegistry) ExecuteBefore(ctx context.Context, hc *HookContext) Decision {
	r.mu.RLock()
	hooks := r.before[hookKey{entity: hc.Entity.Slug, operation: hc.Operation}]
	r.mu.RUnlock()

	for _, h := range hooks {
		if d := h(ctx, hc); !d.Continue {
			return d
		}
	}
	return ContinueDecision()
}

// ExecuteAfter runs the after-hooks in registration order. Fire-and-forget:
// errors and panics are logged and swallowed.
func (r *HookRegistry) ExecuteAfter(ctx context.Context, hc *HookContext) {
	r.mu.RLock()
	hooks := r.after[hookKey{entity: hc.Entity.Slug, operation: hc.Operation}]
	r.mu.RUnlock()

	for _, h := range hooks {
		runAfterHook(ctx, h, hc)
	}
}

func runAfterHook(ctx context.Context, h AfterHook, hc *HookContext) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("ERROR: after-hook panic on %s.%s: %v", hc.Entity.Slug, hc.Operation, rec)
		}
	}()
	if err := h(ctx, hc); err != nil {
		log.Printf("ERROR: after-hook on %s.%s: %v", hc.Entity.Slug, hc.Operation, err)
	}
}
