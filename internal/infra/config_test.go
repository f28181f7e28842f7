package infra

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("PUBLIC_BASE_URL", "")
	t.Setenv("TEXT_PLATFORMS", "")
	t.Setenv("DISPATCH_MODE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PublicBaseURL != "http://localhost:8080" {
		t.Fatalf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
	if cfg.FreeCallsLimit != 3 {
		t.Fatalf("FreeCallsLimit = %d, want 3", cfg.FreeCallsLimit)
	}
	if cfg.FreeCallsWindow != 24*time.Hour {
		t.Fatalf("FreeCallsWindow = %s, want 24h", cfg.FreeCallsWindow)
	}
	if cfg.QuotaFailOpen {
		t.Fatalf("quota should fail closed by default")
	}
	if cfg.StatusPollInterval != 5*time.Second {
		t.Fatalf("StatusPollInterval = %s, want 5s", cfg.StatusPollInterval)
	}
	if len(cfg.TextPlatforms) != 2 || cfg.TextPlatforms[0] != "deepseek" || cfg.TextPlatforms[1] != "gemini" {
		t.Fatalf("TextPlatforms = %#v", cfg.TextPlatforms)
	}
	if cfg.DispatchMode != DispatchInline {
		t.Fatalf("DispatchMode = %q", cfg.DispatchMode)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadConfigPlatformLists(t *testing.T) {
	setRequired(t)
	t.Setenv("IMAGE_PLATFORMS", " Seedream, ,GEMINI ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"seedream", "gemini"}
	if len(cfg.ImagePlatforms) != len(want) {
		t.Fatalf("ImagePlatforms = %#v, want %#v", cfg.ImagePlatforms, want)
	}
	for i := range want {
		if cfg.ImagePlatforms[i] != want[i] {
			t.Fatalf("ImagePlatforms[%d] = %q, want %q", i, cfg.ImagePlatforms[i], want[i])
		}
	}
}

func TestLoadConfigProviderDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("DEEPSEEK_ENDPOINT", "https://api.deepseek.com/v1")
	t.Setenv("DEEPSEEK_API_KEY", " sk-test ")
	t.Setenv("DEEPSEEK_MODEL", "deepseek-chat")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_ENDPOINT", "https://api.openai.com/v1")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	ds, ok := cfg.ProviderDefaults["deepseek"]
	if !ok || ds.Token != "sk-test" || ds.Model != "deepseek-chat" {
		t.Fatalf("deepseek default = %#v (present=%v)", ds, ok)
	}
	gm, ok := cfg.ProviderDefaults["gemini"]
	if !ok || gm.Endpoint != "https://generativelanguage.googleapis.com/v1beta" {
		t.Fatalf("gemini default should use the builtin endpoint, got %#v", gm)
	}
	if _, ok := cfg.ProviderDefaults["openai"]; ok {
		t.Fatalf("openai without key must not produce a default")
	}
}

func TestLoadConfigRejectsGCSWithoutBucket(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("GCS_BUCKET", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for gcs backend without bucket")
	}
}

func TestLoadConfigTrustedProxies(t *testing.T) {
	setRequired(t)
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7 ,2001:db8::/32")
	t.Setenv("TRUST_CLOUDFLARE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.TrustedProxies) != 3 {
		t.Fatalf("TrustedProxies = %v", cfg.TrustedProxies)
	}
	if got := cfg.TrustedProxies[1].String(); got != "192.168.1.7/32" {
		t.Fatalf("bare address parsed as %q", got)
	}
	if !cfg.TrustCloudflare {
		t.Fatal("TrustCloudflare not set")
	}

	t.Setenv("TRUSTED_PROXIES", "not-an-ip")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for malformed TRUSTED_PROXIES")
	}
}

func TestLoadConfigTrustsNoProxiesByDefault(t *testing.T) {
	setRequired(t)
	t.Setenv("TRUSTED_PROXIES", "")
	t.Setenv("TRUST_CLOUDFLARE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if len(cfg.TrustedProxies) != 0 || cfg.TrustCloudflare {
		t.Fatalf("forwarding headers trusted by default: %v %v", cfg.TrustedProxies, cfg.TrustCloudflare)
	}
}
