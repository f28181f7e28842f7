package middleware

import (
	"context"
	"net/http"

	"wordbento/internal/infra/geoip"
)

type geoKey string

const countryKey geoKey = "country"

// Country stores the caller's ISO country code in the request context. A nil
// resolver makes it a pass-through.
func Country(resolver geoip.CountryResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if resolver == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code, err := resolver.CountryCode(ClientFingerprint(r))
			if err != nil || code == "" {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), countryKey, code)))
		})
	}
}

func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(countryKey).(string); ok {
		return v
	}
	return ""
}
