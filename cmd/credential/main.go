package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"wordbento/internal/domain"
	"wordbento/internal/infra"
	"wordbento/internal/infra/credentials"
	"wordbento/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	var (
		callerFlag   string
		platformFlag string
		endpointFlag string
		tokenFlag    string
		modelFlag    string
		disableFlag  bool
		issueFlag    time.Duration
	)
	flag.StringVar(&callerFlag, "caller", "", "caller id the credential belongs to")
	flag.StringVar(&platformFlag, "platform", "", "platform identifier, one of "+strings.Join(infra.KnownPlatforms, ", "))
	flag.StringVar(&endpointFlag, "endpoint", "", "provider endpoint (falls back to <PLATFORM>_ENDPOINT)")
	flag.StringVar(&tokenFlag, "token", "", "provider token (falls back to <PLATFORM>_API_KEY)")
	flag.StringVar(&modelFlag, "model", "", "model override")
	flag.BoolVar(&disableFlag, "disable", false, "store the credential as inactive")
	flag.DurationVar(&issueFlag, "issue-token", 0, "also print a bearer token for the caller valid this long")
	flag.Parse()

	caller := strings.TrimSpace(callerFlag)
	platform := strings.ToLower(strings.TrimSpace(platformFlag))
	if caller == "" {
		fail("-caller is required")
	}
	if !slices.Contains(infra.KnownPlatforms, platform) {
		fail(fmt.Sprintf("unsupported platform %q", platformFlag))
	}

	prefix := strings.ToUpper(platform)
	endpoint := firstNonEmpty(endpointFlag, os.Getenv(prefix+"_ENDPOINT"))
	token := firstNonEmpty(tokenFlag, os.Getenv(prefix+"_API_KEY"))
	if endpoint == "" || token == "" {
		fail(fmt.Sprintf("%s endpoint and token are required via flags or environment", prefix))
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fail(err.Error())
	}
	logger := infra.NewLogger("cli", "").With().Str("cmd", "credential").Str("platform", platform).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		fail(fmt.Sprintf("failed to connect database: %v", err))
	}
	defer pool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		// The cache is refreshed on the next read-through.
		logger.Warn().Err(err).Msg("credential: redis unavailable, cache not primed")
	}
	opts := credentials.ResolverOptions{
		Repo:     credentials.NewStore(infra.NewSQLRunner(pool, logger)),
		Defaults: cfg.ProviderDefaults,
		Logger:   &logger,
	}
	if rdb != nil {
		defer rdb.Close()
		opts.Cache = rdb
	}
	resolver := credentials.NewResolver(opts)

	cred := domain.Credential{
		CallerID: caller,
		Platform: platform,
		Endpoint: endpoint,
		Token:    token,
		Model:    strings.TrimSpace(modelFlag),
		Active:   !disableFlag,
	}
	if err := resolver.Save(ctx, cred); err != nil {
		fail(fmt.Sprintf("failed to persist %s credential: %v", platform, err))
	}
	fmt.Printf("%s credential stored for %s (%s)\n", prefix, caller, cred.MaskedToken())

	if issueFlag > 0 {
		bearer, err := middleware.IssueToken(cfg.JWTSecret, caller, issueFlag)
		if err != nil {
			fail(fmt.Sprintf("failed to issue token: %v", err))
		}
		fmt.Println(bearer)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
