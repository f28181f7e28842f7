package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const clientIPKey contextKey = "client_ip"

// ProxyTrust says which peers may name the client through forwarding headers.
// With no proxies configured only the connection's remote host is used.
// Cloudflare honours CF-Connecting-IP from trusted peers; list the Cloudflare
// ranges (or the local tunnel address) in Proxies.
type ProxyTrust struct {
	Proxies    []netip.Prefix
	Cloudflare bool
}

func (t ProxyTrust) trusted(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, p := range t.Proxies {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolve returns the client address for r. Forwarding headers are only read
// when the direct peer is trusted, and X-Forwarded-For is walked from the
// right so entries a client prepended are never reached.
func (t ProxyTrust) Resolve(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	peerIP, err := netip.ParseAddr(peer)
	if err != nil || !t.trusted(peerIP) {
		return peer
	}

	if t.Cloudflare {
		if cf, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("CF-Connecting-IP"))); err == nil {
			return cf.Unmap().String()
		}
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		ip, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		client = ip.Unmap().String()
		if !t.trusted(ip) {
			break
		}
	}
	return client
}

// ClientIP resolves the caller address once per request and stores it for
// ClientFingerprint.
func ClientIP(trust ProxyTrust) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPKey, trust.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientFingerprint identifies an anonymous caller for quota accounting. It is
// the address stored by ClientIP, or the remote host when ClientIP did not run.
func ClientFingerprint(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r.RemoteAddr)
}

func remoteHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return remoteAddr
}
