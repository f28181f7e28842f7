package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubCountries map[string]string

func (s stubCountries) CountryCode(ip string) (string, error) {
	code, ok := s[ip]
	if !ok {
		return "", errors.New("unknown ip")
	}
	return code, nil
}

func TestCountryTagsContext(t *testing.T) {
	var got string
	h := Country(stubCountries{"203.0.113.9": "ID"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "ID" {
		t.Fatalf("country = %q, want ID", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "" {
		t.Fatalf("lookup failure should leave country empty, got %q", got)
	}
}

func TestCountryNilResolverPassesThrough(t *testing.T) {
	called := false
	h := Country(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatal("next handler not called")
	}
}

func TestCORSExposesQuotaHeader(t *testing.T) {
	h := CORS([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/tasks", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("origin not allowed: %v", rr.Header())
	}
	if rr.Header().Get("Access-Control-Expose-Headers") == "" {
		t.Fatal("expose headers missing")
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unknown origin must not be allowed")
	}
}
