package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestWebhook_CompileRejectsBadCondition(t *testing.T) {
	wh := &Webhook{ID: "wh1", Condition: `record.status ==`}
	if err := wh.Compile(); err == nil {
		t.Fatal("expected compile error for malformed condition")
	}

	// A condition that does not evaluate to bool is also a config error
	wh = &Webhook{ID: "wh2", Condition: `1 + 1`}
	if err := wh.Compile(); err == nil {
		t.Fatal("expected compile error for non-bool condition")
	}
}

func TestWebhook_ShouldFireRequiresCompile(t *testing.T) {
	wh := &Webhook{ID: "wh1", Condition: `operation == "create"`}
	if _, err := wh.shouldFire(hookCtx(OpCreate)); err == nil {
		t.Fatal("uncompiled condition must error, not evaluate")
	}
}

func TestWebhook_ConditionGating(t *testing.T) {
	wh := &Webhook{ID: "wh1", Condition: `record.status == "active"`}
	if err := wh.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	hc := hookCtx(OpCreate)
	hc.Record = map[string]any{"status": "active"}
	ok, err := wh.shouldFire(hc)
	if err != nil {
		t.Fatalf("shouldFire: %v", err)
	}
	if !ok {
		t.Error("matching record should fire")
	}

	hc.Record = map[string]any{"status": "archived"}
	ok, err = wh.shouldFire(hc)
	if err != nil {
		t.Fatalf("shouldFire: %v", err)
	}
	if ok {
		t.Error("non-matching record should not fire")
	}

	// No condition means always fire, no compile needed
	unconditional := &Webhook{ID: "wh2"}
	ok, err = unconditional.shouldFire(hc)
	if err != nil || !ok {
		t.Fatalf("empty condition: ok=%v err=%v", ok, err)
	}
}

func TestWebhook_ShouldFireSharedAcrossGoroutines(t *testing.T) {
	wh := &Webhook{ID: "wh1", Condition: `operation == "create" && user_id == "u1"`}
	if err := wh.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}

	// One webhook instance serves every request goroutine; evaluation must
	// be read-only on the shared state.
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := wh.shouldFire(hookCtx(OpCreate))
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- errors.New("condition did not fire")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent shouldFire: %v", err)
	}
}

func TestWebhook_Dispatch(t *testing.T) {
	var (
		gotMethod      string
		gotContentType string
		gotHeader      string
		gotBody        []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	wh := &Webhook{ID: "wh1", URL: srv.URL, Headers: map[string]string{"X-Signature": "s3cr3t"}}
	status, err := wh.dispatch(context.Background(), []byte(`{"entity":"test_entities"}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST default", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("content type = %s", gotContentType)
	}
	if gotHeader != "s3cr3t" {
		t.Errorf("custom header = %q", gotHeader)
	}
	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil || payload["entity"] != "test_entities" {
		t.Errorf("body = %s", gotBody)
	}
}

func TestWebhook_DispatchNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := &Webhook{ID: "wh1", URL: srv.URL}
	status, err := wh.dispatch(context.Background(), []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for HTTP 502")
	}
	if status != http.StatusBadGateway {
		t.Errorf("status = %d", status)
	}
}
