package oneone

import (
	"testing"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, role Role, input string) (*Reader, *bytebuf.Cursor) {
	t.Helper()
	bs := bytebuf.NewString(input)
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(role)
	require.NoError(t, r.Next(bytebuf.Read, &cur))

	return r, &cur
}

func TestReaderChunkedConvert(t *testing.T) {
	req := "POST /echo HTTP/1.1\r\n" +
		"Host: reqbin.com\r\n" +
		"Trailer: Some\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"7\r\nMozilla\r\n" +
		"9\r\nDeveloper\r\n" +
		"7\r\nNetwork\r\n" +
		"0\r\n" +
		"Header: Val\r\n\r\n"
	verify := "POST /echo HTTP/1.1\r\n" +
		"Host: reqbin.com\r\n" +
		"Header: Val\r\n" +
		"Content-Length: 23\r\n\r\n" +
		"MozillaDeveloperNetwork"

	r, _ := feed(t, RoleRequest, req)
	require.True(t, r.Ended())
	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, verify, one.IntoBytes().String())
}

func TestReaderGet(t *testing.T) {
	r, _ := feed(t, RoleRequest, "GET /echo HTTP/1.1\r\nHost: reqbin.com\r\n\r\n")
	require.True(t, r.Ended())
	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, "GET", one.Request().Method())
	require.Equal(t, "/echo", one.Request().URIString())
}

func TestReaderHeaderNotEnoughData(t *testing.T) {
	bs := bytebuf.NewString("GET /echo HTTP/1.1\r\n")
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(RoleRequest)
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.False(t, r.Ended())
	require.Equal(t, bs.Len()-3, cur.Position())
	require.ErrorIs(t, r.Next(bytebuf.End, &cur), ErrHeaderNotEnoughData)
}

func TestReaderPartialHeaderThenCompletion(t *testing.T) {
	bs := bytebuf.NewString("GET /echo HTTP/1.1\r\nHost: reqbin.com\r")
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(RoleRequest)
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.False(t, r.Ended())
	require.Equal(t, bs.Len()-3, cur.Position())

	bs.Append([]byte("\n\r\n"))
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.True(t, r.Ended())

	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, "GET", one.Request().Method())
}

func TestReaderPost(t *testing.T) {
	r, _ := feed(t, RoleRequest,
		"POST /echo HTTP/1.1\r\nHost: reqbin.com\r\ncontent-length: 7\r\n\r\nHello, World")
	require.True(t, r.Ended())
	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, "POST", one.Request().Method())
	require.Equal(t, "Hello, World"[:7], one.Body().Raw().String())
}

func TestReaderResponsePointerStability(t *testing.T) {
	res := "HTTP/1.1 200 OK\r\nHost: reqbin.com\r\ncontent-length: 12\r\n\r\nHello, World"
	bs := bytebuf.NewString(res)
	orig := &bs.Bytes()[0]
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(RoleResponse)
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.True(t, r.Ended())

	one := r.one
	require.Equal(t, "200", one.Response().Status())
	out := one.IntoBytes()
	require.Equal(t, res, out.String())
	require.Same(t, orig, &out.Bytes()[0], "non-mutating round trip must not copy")
}

func TestReaderChunkedNoTrailer(t *testing.T) {
	req := "POST /chunked HTTP/1.1\r\nHost: reqbin.com\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"7\r\nMozilla\r\n0\r\n\r\n"
	verify := "POST /chunked HTTP/1.1\r\nHost: reqbin.com\r\nContent-Length: 7\r\n\r\nMozilla"

	r, _ := feed(t, RoleRequest, req)
	require.True(t, r.Ended())
	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, verify, one.IntoBytes().String())
}

func TestReaderEmptyBody(t *testing.T) {
	req := "POST /empty HTTP/1.1\r\nHost: reqbin.com\r\nContent-Length: 0\r\n\r\n"
	bs := bytebuf.NewString(req)
	orig := &bs.Bytes()[0]
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(RoleRequest)
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.True(t, r.Ended())

	one, err := r.Frame()
	require.NoError(t, err)
	out := one.IntoBytes()
	require.Equal(t, req, out.String())
	require.Same(t, orig, &out.Bytes()[0])
}

func TestReaderChunkedTruncated(t *testing.T) {
	req := "POST /truncated HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n7\r\nMozilla\r\n0\r\n"
	r, cur := feed(t, RoleRequest, req)
	require.False(t, r.Ended())
	require.ErrorIs(t, r.Next(bytebuf.End, cur), ErrChunkNotEnoughData)
}

func TestReaderBodyClose(t *testing.T) {
	res := "HTTP/1.1 200 OK\r\nHost: reqbin.com\r\nContent-Type: text/plain\r\n\r\nHolaAmigo"
	verify := "HTTP/1.1 200 OK\r\nHost: reqbin.com\r\nContent-Type: text/plain\r\n" +
		"Content-Length: 9\r\n\r\nHolaAmigo"

	r, cur := feed(t, RoleResponse, res)
	require.False(t, r.Ended())
	require.NoError(t, r.Next(bytebuf.End, cur))
	require.True(t, r.Ended())

	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, "200", one.Response().Status())
	require.Equal(t, verify, one.IntoBytes().String())
}

func TestReaderMissingContentLengthAdded(t *testing.T) {
	res := "HTTP/1.1 200 OK\r\nHost: reqbin.com\r\nContent-Type: text/plain\r\n\r\nMozillaDeveloperNetwork"
	r, cur := feed(t, RoleResponse, res)
	require.NoError(t, r.Next(bytebuf.End, cur))

	one, err := r.Frame()
	require.NoError(t, err)
	value, found := one.Headers().Value("Content-Length")
	require.True(t, found)
	require.Equal(t, "23", value)
}

func TestReaderSplitAcrossBodyReads(t *testing.T) {
	bs := bytebuf.NewString("POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n01234")
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(RoleRequest)
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.False(t, r.Ended())

	bs.Append([]byte("56789"))
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.True(t, r.Ended())

	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, "0123456789", one.Body().Raw().String())
}

func TestReaderConnectionRewrites(t *testing.T) {
	req := "GET / HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Connection: keep-alive\r\n" +
		"Proxy-Connection: keep-alive\r\n" +
		"Sec-WebSocket-Extensions: permessage-deflate\r\n\r\n"
	r, _ := feed(t, RoleRequest, req)
	one, err := r.Frame()
	require.NoError(t, err)

	value, _ := one.Headers().Value("Connection")
	require.Equal(t, "close", value)
	require.False(t, one.Headers().Has("Proxy-Connection"))
	require.False(t, one.Headers().Has("Sec-WebSocket-Extensions"))
}

func TestConvertIdempotent(t *testing.T) {
	req := "POST /echo HTTP/1.1\r\nHost: reqbin.com\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"7\r\nMozilla\r\n0\r\n\r\n"
	r, _ := feed(t, RoleRequest, req)
	one, err := r.Frame()
	require.NoError(t, err)

	once := one.Body().Raw().Clone()
	require.NoError(t, Convert(one))
	require.Equal(t, once.String(), one.Body().Raw().String())
	value, _ := one.Headers().Value("Content-Length")
	require.Equal(t, "7", value)
}
