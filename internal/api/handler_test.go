package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/forexcompass/compass/internal/a2a"
)

type fakeResponder struct {
	mu       sync.Mutex
	answer   string
	degraded bool
	prompts  []string
	ctxIDs   []string
	hists    []string
}

func (r *fakeResponder) Respond(_ context.Context, contextID, prompt, inlineHistory string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, prompt)
	r.ctxIDs = append(r.ctxIDs, contextID)
	r.hists = append(r.hists, inlineHistory)
	return r.answer, !r.degraded
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []*a2a.Response
	cfgs      []*a2a.PushNotificationConfig
}

func (d *fakeDeliverer) Deliver(_ context.Context, cfg *a2a.PushNotificationConfig, resp *a2a.Response) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfgs = append(d.cfgs, cfg)
	d.delivered = append(d.delivered, resp)
	return nil
}

func newTestHandler(t *testing.T, responder *fakeResponder, deliverer *fakeDeliverer) *A2AHandler {
	t.Helper()
	h, err := NewA2AHandler("forex-compass", responder, deliverer, nil)
	if err != nil {
		t.Fatalf("NewA2AHandler: %v", err)
	}
	return h
}

func newTestServer(t *testing.T, h *A2AHandler) *httptest.Server {
	t.Helper()
	s, err := NewServer(h, NewHealthHandler(nil, nil), nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func validEnvelope() string {
	return `{
		"jsonrpc": "2.0",
		"id": "req-1",
		"method": "message/send",
		"params": {
			"message": {
				"role": "user",
				"parts": [{"kind": "text", "text": "What is a pip?"}]
			},
			"contextId": "ctx-42"
		}
	}`
}

func postJSON(t *testing.T, url, body string) (*http.Response, a2a.Response) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var envelope a2a.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, envelope
}

func TestBlockingRequest(t *testing.T) {
	responder := &fakeResponder{answer: "A pip is the smallest price move."}
	h := newTestHandler(t, responder, &fakeDeliverer{})
	srv := newTestServer(t, h)

	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", validEnvelope())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Error != nil {
		t.Fatalf("unexpected error: %+v", envelope.Error)
	}
	if envelope.ID != "req-1" {
		t.Errorf("response id = %q", envelope.ID)
	}
	if envelope.Result.Status.State != a2a.StateCompleted {
		t.Errorf("state = %q", envelope.Result.Status.State)
	}
	if envelope.Result.ContextID != "ctx-42" {
		t.Errorf("context id = %q", envelope.Result.ContextID)
	}
	got := envelope.Result.Status.Message.Parts[0].Text
	if got != "A pip is the smallest price move." {
		t.Errorf("answer = %q", got)
	}
	if responder.prompts[0] != "What is a pip?" {
		t.Errorf("prompt = %q", responder.prompts[0])
	}
}

func TestUnknownAgent(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, &fakeDeliverer{})
	srv := newTestServer(t, h)

	resp, envelope := postJSON(t, srv.URL+"/a2a/other-agent", validEnvelope())
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != a2a.CodeMethodNotFound {
		t.Errorf("error = %+v, want code %d", envelope.Error, a2a.CodeMethodNotFound)
	}
}

func TestMalformedJSON(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, &fakeDeliverer{})
	srv := newTestServer(t, h)

	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != a2a.CodeInvalidRequest {
		t.Errorf("error = %+v, want code %d", envelope.Error, a2a.CodeInvalidRequest)
	}
}

func TestInvalidEnvelope(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, &fakeDeliverer{})
	srv := newTestServer(t, h)

	body := `{"jsonrpc":"2.0","id":"req-2","method":"message/send","params":{"message":{"role":"agent","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if envelope.Error == nil || envelope.Error.Code != a2a.CodeInvalidParams {
		t.Fatalf("error = %+v, want code %d", envelope.Error, a2a.CodeInvalidParams)
	}
	if envelope.ID != "req-2" {
		t.Errorf("response id = %q, validation errors must echo the request id", envelope.ID)
	}
}

func TestAsyncRequestDeliversWebhook(t *testing.T) {
	responder := &fakeResponder{answer: "async answer"}
	deliverer := &fakeDeliverer{}
	h := newTestHandler(t, responder, deliverer)
	srv := newTestServer(t, h)

	body := `{
		"jsonrpc": "2.0",
		"id": "req-3",
		"method": "message/send",
		"params": {
			"message": {"role": "user", "parts": [{"kind": "text", "text": "news?"}]},
			"configuration": {
				"blocking": false,
				"pushNotificationConfig": {"url": "https://example.com/hook", "token": "tok"}
			}
		}
	}`
	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if envelope.Result.Status.State != a2a.StateWorking {
		t.Errorf("immediate state = %q, want working", envelope.Result.Status.State)
	}

	done := make(chan struct{})
	go func() { h.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async delivery did not finish")
	}

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	if len(deliverer.delivered) != 1 {
		t.Fatalf("delivered %d webhooks, want 1", len(deliverer.delivered))
	}
	final := deliverer.delivered[0]
	if final.Result.Status.State != a2a.StateCompleted {
		t.Errorf("delivered state = %q", final.Result.Status.State)
	}
	if got := final.Result.Status.Message.Parts[0].Text; got != "async answer" {
		t.Errorf("delivered answer = %q", got)
	}
	if deliverer.cfgs[0].Token != "tok" {
		t.Errorf("webhook token = %q", deliverer.cfgs[0].Token)
	}
	if final.Result.ID != envelope.Result.ID {
		t.Errorf("task id changed between ack %q and delivery %q", envelope.Result.ID, final.Result.ID)
	}
}

func TestDegradedAnswerMarksTaskFailed(t *testing.T) {
	responder := &fakeResponder{answer: "I'm sorry, please try again.", degraded: true}
	h := newTestHandler(t, responder, &fakeDeliverer{})
	srv := newTestServer(t, h)

	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", validEnvelope())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if envelope.Result.Status.State != a2a.StateFailed {
		t.Errorf("state = %q, want failed", envelope.Result.Status.State)
	}
	if got := envelope.Result.Status.Message.Parts[0].Text; got != "I'm sorry, please try again." {
		t.Errorf("answer = %q, apology text must still reach the caller", got)
	}
}

func TestDegradedAsyncAnswerDeliversFailed(t *testing.T) {
	responder := &fakeResponder{answer: "I'm sorry, please try again.", degraded: true}
	deliverer := &fakeDeliverer{}
	h := newTestHandler(t, responder, deliverer)
	srv := newTestServer(t, h)

	body := `{
		"jsonrpc": "2.0",
		"id": "req-7",
		"method": "message/send",
		"params": {
			"message": {"role": "user", "parts": [{"kind": "text", "text": "news?"}]},
			"configuration": {
				"blocking": false,
				"pushNotificationConfig": {"url": "https://example.com/hook"}
			}
		}
	}`
	resp, _ := postJSON(t, srv.URL+"/a2a/forex-compass", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	done := make(chan struct{})
	go func() { h.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async delivery did not finish")
	}

	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	if len(deliverer.delivered) != 1 {
		t.Fatalf("delivered %d webhooks, want 1", len(deliverer.delivered))
	}
	if got := deliverer.delivered[0].Result.Status.State; got != a2a.StateFailed {
		t.Errorf("delivered state = %q, want failed", got)
	}
}

func TestNonBlockingWithoutWebhookIsSynchronous(t *testing.T) {
	responder := &fakeResponder{answer: "sync anyway"}
	h := newTestHandler(t, responder, &fakeDeliverer{})
	srv := newTestServer(t, h)

	body := `{
		"jsonrpc": "2.0",
		"id": "req-4",
		"method": "message/send",
		"params": {
			"message": {"role": "user", "parts": [{"kind": "text", "text": "hi"}]},
			"configuration": {"blocking": false}
		}
	}`
	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 without a webhook to deliver to", resp.StatusCode)
	}
	if envelope.Result.Status.State != a2a.StateCompleted {
		t.Errorf("state = %q", envelope.Result.Status.State)
	}
}

func TestInlineHistoryReachesResponder(t *testing.T) {
	responder := &fakeResponder{answer: "ok"}
	h := newTestHandler(t, responder, &fakeDeliverer{})
	srv := newTestServer(t, h)

	body := `{
		"jsonrpc": "2.0",
		"id": "req-5",
		"method": "message/send",
		"params": {
			"message": {"role": "user", "parts": [
				{"kind": "text", "text": "and lots?"},
				{"kind": "data", "data": [{"text": "what is a pip?"}, {"text": "the smallest move"}]}
			]}
		}
	}`
	resp, _ := postJSON(t, srv.URL+"/a2a/forex-compass", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	want := "User: what is a pip?\nYou: the smallest move"
	if responder.hists[0] != want {
		t.Errorf("history = %q, want %q", responder.hists[0], want)
	}
}

func TestGeneratedIDsWhenAbsent(t *testing.T) {
	responder := &fakeResponder{answer: "ok"}
	h := newTestHandler(t, responder, &fakeDeliverer{})
	srv := newTestServer(t, h)

	body := `{"jsonrpc":"2.0","id":"req-6","method":"message/send","params":{"message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, envelope := postJSON(t, srv.URL+"/a2a/forex-compass", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if envelope.Result.ID == "" || envelope.Result.ContextID == "" {
		t.Errorf("task/context ids must be generated: %+v", envelope.Result)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, &fakeDeliverer{})
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestReadyWithoutPool(t *testing.T) {
	h := newTestHandler(t, &fakeResponder{}, &fakeDeliverer{})
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503 without a pool", resp.StatusCode)
	}
}
