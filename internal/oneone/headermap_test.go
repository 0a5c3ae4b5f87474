package oneone

import (
	"testing"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/stretchr/testify/require"
)

func TestHeaderMapRoundTrip(t *testing.T) {
	data := "content-type: application/json\r\n" +
		"transfer-encoding: chunked\r\n" +
		"content-encoding: gzip\r\n" +
		"trailer: Some\r\n" +
		"x-custom-header: somevalue\r\n\r\n"
	bs := bytebuf.NewString(data)
	orig := &bs.Bytes()[0]

	m := NewHeaderMap(bs)
	require.Equal(t, 5, m.Len())

	out := m.IntoBytes()
	require.Equal(t, data, out.String())
	require.Same(t, orig, &out.Bytes()[0])
}

func TestHeaderMapCrlfOnly(t *testing.T) {
	m := NewHeaderMap(bytebuf.NewString("\r\n"))
	require.Zero(t, m.Len())
	require.Equal(t, "\r\n", m.IntoBytes().String())
}

func TestHeaderMapLookups(t *testing.T) {
	m := NewHeaderMap(bytebuf.NewString("Content-Length: 20\r\nConnection: Keep-Alive\r\n\r\n"))

	require.Equal(t, 0, m.Index("content-length"))
	require.Equal(t, -1, m.Index("Host"))
	require.Equal(t, 1, m.IndexPair("connection", "keep-alive"))

	value, found := m.Value("Content-Length")
	require.True(t, found)
	require.Equal(t, "20", value)
}

func TestHeaderMapSetValue(t *testing.T) {
	m := NewHeaderMap(bytebuf.NewString("Content-Length: 20\r\n\r\n"))
	require.True(t, m.SetValue("Content-Length", "7"))
	require.Equal(t, "Content-Length: 7\r\n\r\n", m.IntoBytes().String())
}

func TestHeaderMapRemove(t *testing.T) {
	m := NewHeaderMap(bytebuf.NewString("A: 1\r\nB: 2\r\nC: 3\r\n\r\n"))
	require.True(t, m.Remove("b"))
	require.False(t, m.Remove("b"))
	require.Equal(t, "A: 1\r\nC: 3\r\n\r\n", m.IntoBytes().String())
}

func TestHeaderMapInvalidUTF8(t *testing.T) {
	raw := append([]byte("X-Bin: "), 0xff, 0xfe)
	raw = append(raw, []byte("\r\n\r\n")...)
	m := NewHeaderMap(bytebuf.New(raw))
	require.Equal(t, 1, m.Len())
	require.Equal(t, "X-Bin", m.Headers()[0].Key())
}

func TestBodyHeaderDerivation(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    TransferType
	}{
		{"content length", "Content-Length: 10\r\n\r\n", TransferType{TransferContentLength, 10}},
		{"invalid content length", "Content-Length: invalid\r\n\r\n", TransferType{TransferClose, 0}},
		{"chunked", "Transfer-Encoding: chunked\r\n\r\n", TransferType{TransferChunked, 0}},
		{"chunked overrides cl", "Content-Length: 20\r\nTransfer-Encoding: chunked\r\n\r\n", TransferType{TransferChunked, 0}},
		{"content type close", "Content-Type: application/json\r\n\r\n", TransferType{TransferClose, 0}},
		{"content encoding close", "Content-Encoding: gzip\r\n\r\n", TransferType{TransferClose, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewHeaderMap(bytebuf.NewString(tt.headers))
			bh := bodyHeaderFromMap(&m)
			require.NotNil(t, bh)
			require.Equal(t, tt.want, bh.Transfer)
		})
	}
}

func TestBodyHeaderAllEmptyDropped(t *testing.T) {
	m := NewHeaderMap(bytebuf.NewString("Host: localhost\r\nUser-Agent: curl\r\n\r\n"))
	require.Nil(t, bodyHeaderFromMap(&m))
}

func TestBodyHeaderRoleGates(t *testing.T) {
	get, err := New(RoleRequest, bytebuf.NewString(
		"GET / HTTP/1.1\r\nContent-Length: 5\r\n\r\n"))
	require.NoError(t, err)
	require.Nil(t, get.BodyHeader(), "GET never carries a body")

	post, err := New(RoleRequest, bytebuf.NewString(
		"POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n"))
	require.NoError(t, err)
	require.NotNil(t, post.BodyHeader())

	notModified, err := New(RoleResponse, bytebuf.NewString(
		"HTTP/1.1 304 Not Modified\r\nContent-Length: 5\r\n\r\n"))
	require.NoError(t, err)
	require.Nil(t, notModified.BodyHeader())
}

func TestCodingsParsing(t *testing.T) {
	codings := parseCodings("gzip, deflate, br, compress,")
	require.Equal(t, []Coding{CodingGzip, CodingDeflate, CodingBrotli, CodingCompress}, codings)
}
