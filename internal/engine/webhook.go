package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"anchor-backend/internal/store"
)

var webhookHTTPClient = &http.Client{Timeout: 30 * time.Second}

// Webhook is a declarative after-hook: an HTTP endpoint notified whenever
// the named entity operation commits, optionally gated by an expr condition.
type Webhook struct {
	ID        string            `json:"id"`
	Entity    string            `json:"entity"`
	Operation Operation         `json:"operation"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Condition string            `json:"condition,omitempty"`

	compiled *vm.Program
}

// WebhookPayload is the JSON body sent to webhook endpoints.
type WebhookPayload struct {
	Entity         string         `json:"entity"`
	Operation      string         `json:"operation"`
	Record         map[string]any `json:"record"`
	Old            map[string]any `json:"old,omitempty"`
	UserID         string         `json:"user_id"`
	TeamID         string         `json:"team_id,omitempty"`
	Timestamp      string         `json:"timestamp"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// Compile compiles the condition expression. Must be called before the
// webhook is registered as a hook: the hook runs on request goroutines, and
// the compiled program is the only state they share.
func (w *Webhook) Compile() error {
	if w.Condition == "" {
		return nil
	}
	prog, err := expr.Compile(w.Condition, expr.AsBool())
	if err != nil {
		return fmt.Errorf("compile webhook condition: %w", err)
	}
	w.compiled = prog
	return nil
}

// shouldFire evaluates the precompiled condition against the hook context.
// An empty condition always fires. Read-only: safe for concurrent hooks.
func (w *Webhook) shouldFire(hc *HookContext) (bool, error) {
	if w.Condition == "" {
		return true, nil
	}
	if w.compiled == nil {
		return false, fmt.Errorf("webhook %s condition was never compiled", w.ID)
	}

	env := map[string]any{
		"record":    hc.Record,
		"old":       hc.Old,
		"operation": string(hc.Operation),
		"entity":    hc.Entity.Slug,
		"user_id":   hc.Security.UserID,
		"team_id":   hc.Security.TeamID,
	}
	result, err := expr.Run(w.compiled, env)
	if err != nil {
		return false, fmt.Errorf("evaluate webhook condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("webhook condition did not return bool")
	}
	return b, nil
}

// AfterHook adapts the webhook into the engine's after-hook shape.
// Dispatch errors are returned so the hook runner can log them; they never
// reach the mutation caller.
func (w *Webhook) AfterHook(s *store.Store) AfterHook {
	return func(ctx context.Context, hc *HookContext) error {
		ok, err := w.shouldFire(hc)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		payload := &WebhookPayload{
			Entity:         hc.Entity.Slug,
			Operation:      string(hc.Operation),
			Record:         hc.Record,
			Old:            hc.Old,
			UserID:         hc.Security.UserID,
			TeamID:         hc.Security.TeamID,
			Timestamp:      time.Now().UTC().Format(time.RFC3339),
			IdempotencyKey: "wh_" + uuid.New().String(),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal webhook payload: %w", err)
		}

		status, dispatchErr := w.dispatch(ctx, body)
		w.logDelivery(ctx, s, payload, body, status, dispatchErr)
		return dispatchErr
	}
}

func (w *Webhook) dispatch(ctx context.Context, body []byte) (int, error) {
	method := w.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, w.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}

	resp, err := webhookHTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook %s returned HTTP %d", w.ID, resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (w *Webhook) logDelivery(ctx context.Context, s *store.Store, payload *WebhookPayload, body []byte, status int, dispatchErr error) {
	state := "delivered"
	errMsg := ""
	if dispatchErr != nil {
		state = "failed"
		errMsg = dispatchErr.Error()
	}

	pb := s.Dialect.NewParamBuilder()
	_, err := store.Exec(ctx, s.DB, fmt.Sprintf(
		`INSERT INTO _webhook_logs (id, webhook_id, entity, operation, url, request_body, response_status, status, error, idempotency_key)
		 VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(store.GenerateUUID()), pb.Add(w.ID), pb.Add(payload.Entity), pb.Add(payload.Operation),
		pb.Add(w.URL), pb.Add(string(body)), pb.Add(status), pb.Add(state), pb.Add(errMsg),
		pb.Add(payload.IdempotencyKey)),
		pb.Params()...)
	if err != nil {
		log.Printf("ERROR: failed to log webhook delivery for %s: %v", w.ID, err)
	}
}

// LoadWebhooks reads active webhooks from the _webhooks system table,
// compiles their conditions, and registers each as an after-hook. Webhooks
// with uncompilable conditions are skipped with a warning.
func LoadWebhooks(ctx context.Context, s *store.Store, hooks *HookRegistry) error {
	rows, err := store.QueryRows(ctx, s.DB,
		`SELECT id, entity, operation, url, method, headers, condition FROM _webhooks WHERE active = `+s.Dialect.Placeholder(1),
		activeValue(s))
	if err != nil {
		return fmt.Errorf("load webhooks: %w", err)
	}

	count := 0
	for _, row := range rows {
		wh := &Webhook{
			ID:        asString(row["id"]),
			Entity:    asString(row["entity"]),
			Operation: Operation(asString(row["operation"])),
			URL:       asString(row["url"]),
			Method:    asString(row["method"]),
			Condition: asString(row["condition"]),
		}
		if h := asString(row["headers"]); h != "" && h != "{}" {
			if err := json.Unmarshal([]byte(h), &wh.Headers); err != nil {
				log.Printf("WARN: webhook %s has invalid headers JSON: %v", wh.ID, err)
			}
		}
		if err := wh.Compile(); err != nil {
			log.Printf("WARN: skipping webhook %s: %v", wh.ID, err)
			continue
		}
		hooks.RegisterAfter(wh.Entity, wh.Operation, wh.AfterHook(s))
		count++
	}
	log.Printf("Registered %d webhooks", count)
	return nil
}

// activeValue returns the driver-appropriate boolean literal for the
// active flag (SQLite stores booleans as integers).
func activeValue(s *store.Store) any {
	if s.Dialect.NeedsBoolFix() {
		return 1
	}
	return true
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
