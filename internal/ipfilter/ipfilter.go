// Package ipfilter restricts the dashboard API and the metrics endpoint to
// configured client networks.
package ipfilter

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter matches client addresses against allowed networks. A filter with
// no networks allows every client.
type Filter struct {
	prefixes []netip.Prefix
	logger   *slog.Logger
}

// ParsePrefix parses a single IP or a CIDR. A bare IP becomes a host prefix.
func ParsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
		}
		return p.Masked(), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid IP %q: %w", s, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// New builds a filter from allowed IPs and CIDRs. Invalid entries are
// logged and skipped; config validation rejects them before this point.
func New(allowed []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Filter{logger: logger}

	for _, s := range allowed {
		if strings.TrimSpace(s) == "" {
			continue
		}
		p, err := ParsePrefix(s)
		if err != nil {
			logger.Warn("skipping allowed_ips entry", "entry", s, "error", err)
			continue
		}
		f.prefixes = append(f.prefixes, p)
	}

	return f
}

// Enabled reports whether any network is configured
func (f *Filter) Enabled() bool {
	return len(f.prefixes) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.prefixes)
}

// Allows reports whether addr is inside an allowed network
func (f *Filter) Allows(addr netip.Addr) bool {
	if !f.Enabled() {
		return true
	}
	if !addr.IsValid() {
		return false
	}

	addr = addr.Unmap()
	for _, p := range f.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AllowsRemote checks a host or host:port string
func (f *Filter) AllowsRemote(remote string) bool {
	return f.Allows(parseRemote(remote))
}

// ClientAddr returns the request's client address. X-Forwarded-For and
// X-Real-IP win over RemoteAddr.
func ClientAddr(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}
	return parseRemote(r.RemoteAddr)
}

func parseRemote(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr
}

// HTTPMiddleware rejects requests from clients outside the allowed networks
// with 403
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	if !f.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := ClientAddr(r)
		if !f.Allows(addr) {
			f.logger.Warn("access denied by IP filter",
				"client", addr.String(),
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"Forbidden"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
