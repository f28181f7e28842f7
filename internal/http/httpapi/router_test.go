package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/http/handlers"
	"wordbento/internal/middleware"
	"wordbento/internal/orchestrator"
	"wordbento/internal/pipeline"
	"wordbento/internal/providers"
	"wordbento/internal/quota"
	"wordbento/internal/realtime"
	"wordbento/internal/tasks"
	"wordbento/internal/tasks/taskstest"
)

const testSecret = "router-secret"

type envResolver struct{}

func (envResolver) Resolve(_ context.Context, platform, _ string) (*domain.Credential, error) {
	return &domain.Credential{Platform: platform, Endpoint: "https://llm.example", Token: "sk-test", Active: true}, nil
}

type cannedText struct {
	mu      sync.Mutex
	prompts []string
	reply   string
}

func (c *cannedText) GenerateText(_ context.Context, _ domain.Credential, req providers.TextRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, req.Prompt)
	return c.reply, nil
}

// heldDispatcher parks dispatched ids until released so the client can
// observe the pending state first.
type heldDispatcher struct {
	next *pipeline.Dispatcher
	mu   sync.Mutex
	held []string
}

func (h *heldDispatcher) Dispatch(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.held = append(h.held, id)
}

func (h *heldDispatcher) release() {
	h.mu.Lock()
	ids := h.held
	h.held = nil
	h.mu.Unlock()
	for _, id := range ids {
		h.next.Dispatch(id)
	}
}

type stack struct {
	server     *httptest.Server
	dispatcher *heldDispatcher
	inner      *pipeline.Dispatcher
	text       *cannedText
}

func newStack(t *testing.T) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zerolog.Nop()
	bus := realtime.NewBus(rdb, &logger)
	manager := tasks.NewManager(tasks.Options{Repo: taskstest.NewRepository(), Publisher: bus})

	text := &cannedText{reply: "```json\n[\"Ephemeral\", \"ubiquitous\", \"ephemeral\", 7]\n```"}
	orch := orchestrator.New(orchestrator.Options{
		Resolver:      envResolver{},
		TextAdapters:  map[string]providers.TextAdapter{"deepseek": text},
		TextPlatforms: []string{"deepseek"},
		Timeout:       time.Second,
	})
	runner := pipeline.NewRunner(pipeline.Options{Tasks: manager, Text: orch})
	inner := pipeline.NewDispatcher(runner, 2, nil)
	held := &heldDispatcher{next: inner}

	gate := quota.NewGate(quota.Options{Client: rdb, Limit: 3, Window: 24 * time.Hour})
	bridge := realtime.NewBridge(realtime.BridgeOptions{Tasks: manager, Bus: bus, PollInterval: 50 * time.Millisecond})

	app := handlers.NewApp(handlers.Options{
		Tasks:      manager,
		Quota:      gate,
		Bridge:     bridge,
		Dispatcher: held,
		Platforms:  []string{"deepseek", "gemini"},
	})
	srv := httptest.NewServer(NewRouter(app, RouterOptions{JWTSecret: testSecret, Logger: logger}))
	t.Cleanup(srv.Close)
	t.Cleanup(inner.Wait)
	return &stack{server: srv, dispatcher: held, inner: inner, text: text}
}

func (s *stack) submit(t *testing.T, content, token string) *http.Response {
	t.Helper()
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	body := `{"workKind":"extract-vocabulary","content":` + quote(content) + `,"contentSubtype":"TOEFL"}`
	return s.post(t, body, headers)
}

func (s *stack) post(t *testing.T, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/v1/tasks", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/tasks: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestExtractVocabularyEndToEnd(t *testing.T) {
	s := newStack(t)

	resp := s.submit(t, "An ephemeral trend became ubiquitous.", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit status = %d, want 201", resp.StatusCode)
	}
	if got := resp.Header.Get(handlers.FreeCallsHeader); got != "2" {
		t.Fatalf("%s = %q, want 2", handlers.FreeCallsHeader, got)
	}
	var created struct {
		TaskID string `json:"taskId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/v1/tasks/" + created.TaskID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first realtime.Message
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first message: %v", err)
	}
	if first.Status != domain.TaskPending || first.TaskID != created.TaskID {
		t.Fatalf("first message = %+v, want pending", first)
	}

	s.dispatcher.release()

	var last realtime.Message
	for {
		var msg realtime.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if msg.Status.Terminal() {
			last = msg
			break
		}
	}
	if last.Status != domain.TaskCompleted {
		t.Fatalf("terminal message = %+v, want completed", last)
	}
	var words []string
	if err := json.Unmarshal(last.Result, &words); err != nil {
		t.Fatalf("result is not a string array: %s", last.Result)
	}
	if strings.Join(words, ",") != "ephemeral,ubiquitous" {
		t.Fatalf("words = %v", words)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close after terminal status, got %v", err)
	}

	// The same article again is served from the completed task.
	again := s.submit(t, "An ephemeral trend became ubiquitous.", "")
	if again.StatusCode != http.StatusOK {
		t.Fatalf("duplicate submit status = %d, want 200", again.StatusCode)
	}
}

func TestAnonymousQuotaAndAuthenticatedBypass(t *testing.T) {
	s := newStack(t)

	for i := 0; i < 3; i++ {
		resp := s.submit(t, "article number "+string(rune('a'+i)), "")
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("call %d status = %d, want 201", i+1, resp.StatusCode)
		}
	}
	resp := s.submit(t, "one too many", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("fourth call status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get(handlers.FreeCallsHeader) != "0" {
		t.Fatalf("remaining header = %q, want 0", resp.Header.Get(handlers.FreeCallsHeader))
	}

	token, err := middleware.IssueToken(testSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	resp = s.submit(t, "signed in article", token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("authenticated status = %d, want 201", resp.StatusCode)
	}

	resp = s.submit(t, "bad token article", "not-a-jwt")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestForwardingHeadersDoNotResetQuota(t *testing.T) {
	s := newStack(t)

	accepted := 0
	for i := 0; i < 10; i++ {
		spoofed := "203.0.113." + strconv.Itoa(i+1)
		body := `{"workKind":"extract-vocabulary","content":"article ` + strconv.Itoa(i) + `","contentSubtype":"TOEFL"}`
		resp := s.post(t, body, map[string]string{
			"X-Forwarded-For":  spoofed,
			"X-Real-IP":        spoofed,
			"CF-Connecting-IP": spoofed,
		})
		if resp.StatusCode == http.StatusCreated {
			accepted++
		}
	}
	if accepted != 3 {
		t.Fatalf("accepted %d anonymous submissions, want 3", accepted)
	}
}

func TestRejectedSubmissionsKeepFreeCalls(t *testing.T) {
	s := newStack(t)

	for i := 0; i < 3; i++ {
		resp := s.post(t, `{"workKind":"bogus","content":"apple","contentSubtype":"TOEFL"}`, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("invalid submission status = %d, want 400", resp.StatusCode)
		}
	}
	resp := s.submit(t, "a valid article", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("valid submission status = %d, want 201", resp.StatusCode)
	}
	if got := resp.Header.Get(handlers.FreeCallsHeader); got != "2" {
		t.Fatalf("remaining = %q, want 2", got)
	}
}

func TestRoutes(t *testing.T) {
	s := newStack(t)

	resp, err := http.Get(s.server.URL + "/v1/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(s.server.URL + "/v1/tasks/00000000-0000-0000-0000-000000000000/ws")
	if err != nil {
		t.Fatalf("GET ws: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("plain ws status = %d, want 426", resp.StatusCode)
	}

	resp, err = http.Get(s.server.URL + "/v1/credentials")
	if err != nil {
		t.Fatalf("GET credentials: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous credentials status = %d, want 401", resp.StatusCode)
	}
}
