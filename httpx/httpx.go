// Package httpx has small helpers for moving HTTP headers in and out of
// messages.
package httpx

import (
	"net/http"
	"strconv"
	"strings"
)

// unsafeHeaders describe the body framing of one HTTP request, or carry
// the caller's credentials, and must not be copied onto another message.
var unsafeHeaders = []string{
	"Transfer-Encoding", "Content-Type", "Content-Length",
	"Authorization", "Proxy-Authorization", "Cookie",
}

// SafeHeaders returns a copy of h without body framing or credential headers.
func SafeHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, k := range unsafeHeaders {
		out.Del(k)
	}
	return out
}

// ParseHost returns the host part of a Host-style value ("host:port").
func ParseHost(v string) (string, bool) {
	host, _, _ := strings.Cut(v, ":")
	if host == "" {
		return "", false
	}
	return host, true
}

// ParsePort returns the port part of a Host-style value.
func ParsePort(v string) (int, bool) {
	_, port, ok := strings.Cut(v, ":")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return 0, false
	}
	return n, true
}

// Host returns the host part of the Host header in h.
func Host(h http.Header) (string, bool) {
	return ParseHost(h.Get("Host"))
}

// Port returns the port part of the Host header in h.
func Port(h http.Header) (int, bool) {
	return ParsePort(h.Get("Host"))
}

// Flatten keeps the first value of every header.
func Flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[http.CanonicalHeaderKey(k)] = v[0]
		}
	}
	return out
}
