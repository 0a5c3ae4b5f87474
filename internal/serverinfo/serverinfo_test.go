package serverinfo

import (
	"testing"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/stretchr/testify/require"
)

func TestParseAuthority(t *testing.T) {
	tests := []struct {
		in     string
		scheme Scheme
		want   Address
	}{
		{"www.google.com", SchemeHTTP, Address{"www.google.com", 80}},
		{"www.google.com", SchemeHTTPS, Address{"www.google.com", 443}},
		{"www.google.com:8080", SchemeHTTP, Address{"www.google.com", 8080}},
		{"127.0.0.1", SchemeHTTPS, Address{"127.0.0.1", 443}},
		{"127.0.0.1:8443", SchemeHTTPS, Address{"127.0.0.1", 8443}},
	}
	for _, tt := range tests {
		addr, err := ParseAuthority(tt.in, tt.scheme)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, addr)
	}
}

func TestParseAuthorityInvalid(t *testing.T) {
	_, err := ParseAuthority("", SchemeHTTP)
	require.ErrorIs(t, err, ErrBadAuthority)

	_, err = ParseAuthority("host:notaport", SchemeHTTP)
	require.ErrorIs(t, err, ErrBadAuthority)
}

func TestFromRequestTargetConnect(t *testing.T) {
	uri := bytebuf.NewString("www.google.com:443")
	addr, err := FromRequestTarget(&uri, true)
	require.NoError(t, err)
	require.Equal(t, Address{"www.google.com", 443}, addr)
	require.Equal(t, "www.google.com:443", uri.String())
}

func TestFromRequestTargetAbsoluteForm(t *testing.T) {
	uri := bytebuf.NewString("http://www.google.com:8080/search?q=x")
	addr, err := FromRequestTarget(&uri, false)
	require.NoError(t, err)
	require.Equal(t, Address{"www.google.com", 8080}, addr)
	require.Equal(t, "/search?q=x", uri.String(), "target rewritten to origin-form")
}

func TestFromRequestTargetAbsoluteFormNoPath(t *testing.T) {
	uri := bytebuf.NewString("http://example.org")
	addr, err := FromRequestTarget(&uri, false)
	require.NoError(t, err)
	require.Equal(t, Address{"example.org", 80}, addr)
	require.Equal(t, "/", uri.String())
}

func TestJSONRoundTrip(t *testing.T) {
	info := New(Address{"example.org", 443}, true)
	info.SNI = "inner.example.org"

	j := info.ToJSON()
	require.Equal(t, "example.org", j.Host)
	require.Empty(t, j.HTTP)
	require.Equal(t, "inner.example.org", j.SNI)

	back, err := FromJSON(j)
	require.NoError(t, err)
	require.Equal(t, info, back)
}

func TestJSONPlainHTTP(t *testing.T) {
	info := New(Address{"example.org", 8080}, false)
	j := info.ToJSON()
	require.Equal(t, "example.org:8080", j.Host)
	require.Equal(t, "1", j.HTTP)
}
