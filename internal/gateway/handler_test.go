package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	extratelimit "github.com/vnmchuo/ratelimiter"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vnmchuo/whatspay/internal/state"
	"github.com/vnmchuo/whatspay/pkg/ratelimit"
)

type mockBot struct {
	reply string
	err   error
	calls int
}

func (m *mockBot) HandleMessage(ctx context.Context, sender, body string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type mockSender struct {
	sent []string
	err  error
}

func (m *mockSender) Send(ctx context.Context, to, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, body)
	return nil
}

func newTestHandler(t *testing.T, bot *mockBot, sender *mockSender) (*Handler, *state.Store) {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"), zerolog.Nop())
	tracer := noop.NewTracerProvider().Tracer("test")
	h := NewHandler(bot, sender, nil, store, nil, tracer, "1.0.0", zerolog.Nop())
	return h, store
}

func postWebhook(h *Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.HandleWebhook(w, req)
	return w
}

func TestHandleWebhook(t *testing.T) {
	bot := &mockBot{reply: "42"}
	sender := &mockSender{}
	h, _ := newTestHandler(t, bot, sender)

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	form.Set("Body", "what is the answer?")
	w := postWebhook(h, form)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("Expected body OK, got %q", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}
	if bot.calls != 1 {
		t.Errorf("Expected 1 bot call, got %d", bot.calls)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "42" {
		t.Errorf("Expected reply sent back, got %v", sender.sent)
	}
}

func TestHandleWebhook_StripsWhatsappPrefix(t *testing.T) {
	var gotSender string
	bot := &mockBot{reply: "ok"}
	sender := &mockSender{}
	h, store := newTestHandler(t, bot, sender)
	store.Credit("+15551234", 1.0)

	inspect := &inspectBot{inner: bot, onCall: func(s string) { gotSender = s }}
	h.bot = inspect

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	form.Set("Body", "hi")
	postWebhook(h, form)

	if gotSender != "+15551234" {
		t.Errorf("Expected prefix stripped, got %q", gotSender)
	}
}

type inspectBot struct {
	inner  MessageHandler
	onCall func(sender string)
}

func (i *inspectBot) HandleMessage(ctx context.Context, sender, body string) (string, error) {
	i.onCall(sender)
	return i.inner.HandleMessage(ctx, sender, body)
}

func TestHandleWebhook_MissingFields(t *testing.T) {
	bot := &mockBot{reply: "ok"}
	sender := &mockSender{}
	h, _ := newTestHandler(t, bot, sender)

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	w := postWebhook(h, form)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for missing Body, got %d", w.Code)
	}
	if w.Body.String() != "Error" {
		t.Errorf("Expected body Error, got %q", w.Body.String())
	}
	if bot.calls != 0 {
		t.Error("Expected no bot call for malformed webhook")
	}
}

func TestHandleWebhook_BotErrorSendsApology(t *testing.T) {
	bot := &mockBot{err: errors.New("boom")}
	sender := &mockSender{}
	h, _ := newTestHandler(t, bot, sender)

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	form.Set("Body", "hi")
	w := postWebhook(h, form)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on handler failure, got %d", w.Code)
	}
	if len(sender.sent) != 1 || sender.sent[0] != apologyText {
		t.Errorf("Expected apology sent, got %v", sender.sent)
	}
}

func TestHandleWebhook_RateLimited(t *testing.T) {
	bot := &mockBot{reply: "hello"}
	sender := &mockSender{}
	h, _ := newTestHandler(t, bot, sender)
	h.limiter = ratelimit.NewTestLimiter(&mockLimiterStore{allowed: false})

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	form.Set("Body", "hi")
	w := postWebhook(h, form)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for rate-limited sender, got %d", w.Code)
	}
	if bot.calls != 0 {
		t.Error("Expected no bot call when rate limited")
	}
	if len(sender.sent) != 1 || sender.sent[0] != rateLimitText {
		t.Errorf("Expected rate limit notice sent, got %v", sender.sent)
	}
}

type mockLimiterStore struct {
	allowed bool
	err     error
}

func (m *mockLimiterStore) Allow(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) AllowN(ctx context.Context, key string, n int) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func (m *mockLimiterStore) Status(ctx context.Context, key string) (*extratelimit.Result, error) {
	return &extratelimit.Result{Allowed: m.allowed}, m.err
}

func TestHandleWebhook_SendFailureStillOK(t *testing.T) {
	bot := &mockBot{reply: "hello"}
	sender := &mockSender{err: errors.New("twilio down")}
	h, _ := newTestHandler(t, bot, sender)

	form := url.Values{}
	form.Set("From", "whatsapp:+15551234")
	form.Set("Body", "hi")
	w := postWebhook(h, form)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 even when the reply send fails, got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler(t, &mockBot{}, &mockSender{})

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "whatspay is running" {
		t.Errorf("Unexpected status: %q", body["status"])
	}
	if body["version"] != "1.0.0" {
		t.Errorf("Unexpected version: %q", body["version"])
	}
}

func TestHandleStats(t *testing.T) {
	h, store := newTestHandler(t, &mockBot{}, &mockSender{})
	store.Credit("a", 1.5)
	store.Credit("b", 0.5)
	store.AppendUsage("a", state.UsageEntry{Kind: "ai_query"})

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	h.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode stats response: %v", err)
	}
	if body["total_users"].(float64) != 2 {
		t.Errorf("Unexpected total_users: %v", body["total_users"])
	}
	if body["total_balance"].(float64) != 2.0 {
		t.Errorf("Unexpected total_balance: %v", body["total_balance"])
	}
	if body["total_queries"].(float64) != 1 {
		t.Errorf("Unexpected total_queries: %v", body["total_queries"])
	}
	if _, ok := body["archived_entries"]; ok {
		t.Error("Expected no archived_entries without an archive")
	}
}
