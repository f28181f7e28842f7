package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
)

type stubResolver struct {
	creds map[string]*domain.Credential
	err   error
}

func (s stubResolver) Resolve(ctx context.Context, platform, callerID string) (*domain.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.creds[platform], nil
}

type stubText struct {
	calls int
	text  string
	err   error
	block bool
}

func (s *stubText) GenerateText(ctx context.Context, cred domain.Credential, req providers.TextRequest) (string, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.err
}

type stubImages struct {
	calls  int
	images []providers.Image
	err    error
}

func (s *stubImages) GenerateImages(ctx context.Context, cred domain.Credential, req providers.ImageRequest) ([]providers.Image, error) {
	s.calls++
	return s.images, s.err
}

func configured(platforms ...string) stubResolver {
	creds := map[string]*domain.Credential{}
	for _, p := range platforms {
		creds[p] = &domain.Credential{Platform: p, Endpoint: "https://" + p, Token: "t"}
	}
	return stubResolver{creds: creds}
}

func TestGenerateTextFallsBackToSecondPlatform(t *testing.T) {
	first := &stubText{err: providers.Unavailable("alpha", "http_500", errors.New("boom"))}
	second := &stubText{text: "```json\n[\"abate\",\"zeal\"]\n```"}
	o := New(Options{
		Resolver:      configured("alpha", "beta"),
		TextAdapters:  map[string]providers.TextAdapter{"alpha": first, "beta": second},
		TextPlatforms: []string{"alpha", "beta"},
	})

	value, platform, err := o.GenerateText(context.Background(), "", providers.TextRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if platform != "beta" {
		t.Fatalf("platform = %q, want beta", platform)
	}
	if !reflect.DeepEqual(value, []any{"abate", "zeal"}) {
		t.Fatalf("value = %#v", value)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", first.calls, second.calls)
	}
}

func TestGenerateTextStopsAtFirstSuccess(t *testing.T) {
	first := &stubText{text: `{"ok":true}`}
	second := &stubText{text: `{"ok":false}`}
	o := New(Options{
		Resolver:      configured("alpha", "beta"),
		TextAdapters:  map[string]providers.TextAdapter{"alpha": first, "beta": second},
		TextPlatforms: []string{"alpha", "beta"},
	})
	if _, _, err := o.GenerateText(context.Background(), "", providers.TextRequest{}); err != nil {
		t.Fatalf("GenerateText returned error: %v", err)
	}
	if second.calls != 0 {
		t.Fatalf("second platform called %d times", second.calls)
	}
}

func TestGenerateTextExhaustion(t *testing.T) {
	alpha := &stubText{err: providers.Unavailable("alpha", "http_429", nil)}
	beta := &stubText{text: "I am sorry, I cannot help with that."}
	gamma := &stubText{text: "[]"}
	o := New(Options{
		Resolver:      configured("alpha", "beta"),
		TextAdapters:  map[string]providers.TextAdapter{"alpha": alpha, "beta": beta, "gamma": gamma},
		TextPlatforms: []string{"alpha", "beta", "gamma"},
	})

	_, _, err := o.GenerateText(context.Background(), "", providers.TextRequest{})
	if !errors.Is(err, domain.ErrAllProvidersExhausted) {
		t.Fatalf("expected ErrAllProvidersExhausted, got %v", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %T", err)
	}
	want := []Attempt{
		{Platform: "alpha", Reason: "http_429"},
		{Platform: "beta", Reason: "unparseable response"},
		{Platform: "gamma", Reason: ReasonNotConfigured},
	}
	if !reflect.DeepEqual(exhausted.Attempts, want) {
		t.Fatalf("attempts = %+v, want %+v", exhausted.Attempts, want)
	}
	if gamma.calls != 0 {
		t.Fatalf("unconfigured platform was called")
	}
	if !strings.Contains(exhausted.Summary(), "alpha: http_429") {
		t.Fatalf("summary = %q", exhausted.Summary())
	}
}

func TestGenerateTextTimeoutAdvances(t *testing.T) {
	slow := &stubText{block: true}
	fast := &stubText{text: `["x"]`}
	o := New(Options{
		Resolver:      configured("slow", "fast"),
		TextAdapters:  map[string]providers.TextAdapter{"slow": slow, "fast": fast},
		TextPlatforms: []string{"slow", "fast"},
		Timeout:       20 * time.Millisecond,
	})
	_, platform, err := o.GenerateText(context.Background(), "", providers.TextRequest{})
	if err != nil || platform != "fast" {
		t.Fatalf("platform=%q err=%v, want fast", platform, err)
	}
}

func TestGenerateTextResolverErrorSkipsPlatform(t *testing.T) {
	o := New(Options{
		Resolver:      stubResolver{err: errors.New("db down")},
		TextAdapters:  map[string]providers.TextAdapter{"alpha": &stubText{text: "[]"}},
		TextPlatforms: []string{"alpha"},
	})
	_, _, err := o.GenerateText(context.Background(), "caller", providers.TextRequest{})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts[0].Reason != "credential lookup failed" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestGenerateImagesTreatsEmptyAsFailure(t *testing.T) {
	empty := &stubImages{}
	good := &stubImages{images: []providers.Image{{Data: []byte("png"), MIMEType: "image/png"}}}
	o := New(Options{
		Resolver:       configured("jimeng", "gemini"),
		ImageAdapters:  map[string]providers.ImageAdapter{"jimeng": empty, "gemini": good},
		ImagePlatforms: []string{"jimeng", "gemini"},
	})
	images, platform, err := o.GenerateImages(context.Background(), "", providers.ImageRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("GenerateImages returned error: %v", err)
	}
	if platform != "gemini" || len(images) != 1 || empty.calls != 1 {
		t.Fatalf("platform=%q images=%d emptyCalls=%d", platform, len(images), empty.calls)
	}
}

func TestGenerateImagesExhaustion(t *testing.T) {
	o := New(Options{
		Resolver: configured("jimeng", "seedream"),
		ImageAdapters: map[string]providers.ImageAdapter{
			"jimeng":   &stubImages{err: providers.Unavailable("jimeng", "no_image_links", nil)},
			"seedream": &stubImages{},
		},
		ImagePlatforms: []string{"jimeng", "seedream", "gemini"},
	})
	_, _, err := o.GenerateImages(context.Background(), "", providers.ImageRequest{})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedError, got %v", err)
	}
	want := []Attempt{
		{Platform: "jimeng", Reason: "no_image_links"},
		{Platform: "seedream", Reason: "no images returned"},
		{Platform: "gemini", Reason: "no adapter"},
	}
	if !reflect.DeepEqual(exhausted.Attempts, want) {
		t.Fatalf("attempts = %+v", exhausted.Attempts)
	}
	if exhausted.Capability != CapabilityImage {
		t.Fatalf("capability = %q", exhausted.Capability)
	}
}
