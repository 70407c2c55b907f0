package utils

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the host part of the socket address. Forwarding headers
// are only trusted once middleware.RealIP has rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// TrustedProxies is the set of peers whose forwarding headers are believed.
// The zero value trusts nobody.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts single addresses and CIDR ranges.
func ParseTrustedProxies(list []string) (TrustedProxies, error) {
	var tp TrustedProxies
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			tp = append(tp, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		addr = addr.Unmap()
		tp = append(tp, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return tp, nil
}

// Contains reports whether ip belongs to a trusted proxy.
func (tp TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ForwardedFor resolves the client behind trusted proxies. The
// X-Forwarded-For chain is walked from the right and the first hop that is
// not a trusted proxy wins; X-Real-IP is the fallback. Requests whose peer
// is not trusted keep their socket address.
func (tp TrustedProxies) ForwardedFor(r *http.Request) string {
	peer := ClientIP(r)
	if !tp.Contains(peer) {
		return peer
	}
	if fwd := r.Header.Values("X-Forwarded-For"); len(fwd) > 0 {
		hops := strings.Split(strings.Join(fwd, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if _, err := netip.ParseAddr(hop); err != nil {
				break
			}
			if !tp.Contains(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		if _, err := netip.ParseAddr(ip); err == nil {
			return ip
		}
	}
	return peer
}

// BytesToMB converts a byte count to megabytes rounded to two places.
func BytesToMB(n int64) float64 {
	return Round2(float64(n) / (1024 * 1024))
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
