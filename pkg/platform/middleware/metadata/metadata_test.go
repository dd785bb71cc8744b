package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIPFromRequest(t *testing.T) {
	proxies, err := ParseTrusted([]string{"10.0.0.0/8", "192.0.2.50"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{"headers ignored without trusted proxies", nil, map[string]string{"X-Forwarded-For": "203.0.113.7", "X-Real-IP": "198.51.100.4"}, "10.0.0.2:443", "10.0.0.2"},
		{"headers ignored from untrusted peer", proxies, map[string]string{"X-Forwarded-For": "203.0.113.7"}, "198.51.100.9:443", "198.51.100.9"},
		{"right-most untrusted hop from trusted peer", proxies, map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7, 10.0.0.1"}, "10.0.0.2:443", "203.0.113.7"},
		{"single trusted ip", proxies, map[string]string{"X-Forwarded-For": "203.0.113.8"}, "192.0.2.50:80", "203.0.113.8"},
		{"garbage hop stops the walk", proxies, map[string]string{"X-Forwarded-For": "nonsense, 10.0.0.9"}, "10.0.0.2:443", "10.0.0.2"},
		{"real ip from trusted peer", proxies, map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:443", "198.51.100.4"},
		{"ipv6 remote", nil, nil, "[::1]:5555", "::1"},
		{"no port", nil, nil, "192.0.2.1", "192.0.2.1"},
		{"empty", nil, nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(r, tt.trusted))
		})
	}
}

func TestParseTrusted(t *testing.T) {
	got, err := ParseTrusted([]string{"10.1.2.3/8", " 192.0.2.1 ", "", "::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.1/32"),
		netip.MustParsePrefix("::1/128"),
	}, got)

	_, err = ParseTrusted([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientMetadataIgnoresForwardingHeaders(t *testing.T) {
	var got string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.9:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.1")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "192.0.2.9", got)
}
