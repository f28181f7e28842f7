package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "test-secret"

func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func TestOptionalAuthAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	rr := httptest.NewRecorder()

	OptionalAuth(testSecret)(callerEcho()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "" {
		t.Fatalf("expected anonymous caller, got %q", rr.Body.String())
	}
}

func TestOptionalAuthValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	OptionalAuth(testSecret)(callerEcho()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "user-42" {
		t.Fatalf("got %d %q, want 200 user-42", rr.Code, rr.Body.String())
	}
}

func TestOptionalAuthRejectsBadTokens(t *testing.T) {
	expired, err := IssueToken(testSecret, "user-42", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	foreign, err := IssueToken("other-secret", "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	cases := map[string]string{
		"expired":      "Bearer " + expired,
		"wrong secret": "Bearer " + foreign,
		"garbage":      "Bearer not.a.token",
		"wrong scheme": "Basic dXNlcjpwYXNz",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/history", nil)
			req.Header.Set("Authorization", header)
			rr := httptest.NewRecorder()

			OptionalAuth(testSecret)(callerEcho()).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestOptionalAuthQueryTokenOnlyForWebsocket(t *testing.T) {
	token, err := IssueToken(testSecret, "user-7", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/tasks/abc/ws?token="+token, nil)
	OptionalAuth(testSecret)(callerEcho()).ServeHTTP(rr, req)
	if rr.Body.String() != "user-7" {
		t.Fatalf("ws caller = %q, want user-7", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/history?token="+token, nil)
	OptionalAuth(testSecret)(callerEcho()).ServeHTTP(rr, req)
	if rr.Body.String() != "" {
		t.Fatalf("query token accepted outside ws: %q", rr.Body.String())
	}
}
