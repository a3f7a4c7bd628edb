package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity returns the network identity of the caller: the first hop
// of X-Forwarded-For when present, otherwise the host part of RemoteAddr.
func ClientIdentity(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
