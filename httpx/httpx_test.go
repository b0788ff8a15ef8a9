package httpx_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/miladsoleymani/idflow/httpx"
)

func TestSafeHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("content-type", "application/json")
	h.Set("Content-Length", "12")
	h.Set("Transfer-Encoding", "chunked")
	h.Set("X-Correlation-ID", "conn-1")
	h.Set("Authorization", "Bearer secret")
	h.Set("Proxy-Authorization", "Basic c2VjcmV0")
	h.Add("cookie", "session=1")

	got := httpx.SafeHeaders(h)
	require.Equal(t, http.Header{"X-Correlation-Id": {"conn-1"}}, got)
	require.Equal(t, "application/json", h.Get("Content-Type"), "input is not modified")

	require.Equal(t, http.Header{}, httpx.SafeHeaders(nil))
}

func TestParseHostPort(t *testing.T) {
	tests := []struct {
		in     string
		host   string
		hostOK bool
		port   int
		portOK bool
	}{
		{"example.com:8080", "example.com", true, 8080, true},
		{"example.com", "example.com", true, 0, false},
		{"example.com:http", "example.com", true, 0, false},
		{":9000", "", false, 9000, true},
		{"example.com:0", "example.com", true, 0, true},
		{"example.com:65535", "example.com", true, 65535, true},
		{"example.com:65536", "example.com", true, 0, false},
		{"example.com:99999", "example.com", true, 0, false},
		{"example.com:-1", "example.com", true, 0, false},
		{"", "", false, 0, false},
	}
	for _, tt := range tests {
		host, ok := httpx.ParseHost(tt.in)
		require.Equal(t, tt.hostOK, ok, tt.in)
		require.Equal(t, tt.host, host, tt.in)

		port, ok := httpx.ParsePort(tt.in)
		require.Equal(t, tt.portOK, ok, tt.in)
		require.Equal(t, tt.port, port, tt.in)
	}
}

func TestHostPort_fromHeader(t *testing.T) {
	h := http.Header{"Host": {"broker.local:4222"}}

	host, ok := httpx.Host(h)
	require.True(t, ok)
	require.Equal(t, "broker.local", host)

	port, ok := httpx.Port(h)
	require.True(t, ok)
	require.Equal(t, 4222, port)

	_, ok = httpx.Host(http.Header{})
	require.False(t, ok)
}

func TestFlatten(t *testing.T) {
	h := http.Header{
		"X-A":   {"1", "2"},
		"x-b":   {"3"},
		"Empty": {},
	}
	require.Equal(t, map[string]string{"X-A": "1", "X-B": "3"}, httpx.Flatten(h))
}
