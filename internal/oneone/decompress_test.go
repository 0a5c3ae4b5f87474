package oneone

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func deflated(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func zstded(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func brotlied(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func TestDecompressSingleCodings(t *testing.T) {
	plain := []byte("MozillaDeveloperNetwork")

	tests := []struct {
		coding Coding
		data   []byte
	}{
		{CodingGzip, gzipped(t, plain)},
		{CodingDeflate, deflated(t, plain)},
		{CodingZstd, zstded(t, plain)},
		{CodingBrotli, brotlied(t, plain)},
		// the reference decodes the compress token as zstd
		{CodingCompress, zstded(t, plain)},
	}

	for _, tt := range tests {
		got, err := decompress(tt.data, []Coding{tt.coding})
		require.NoError(t, err, tt.coding.String())
		require.Equal(t, plain, got)
	}
}

func TestDecompressChain(t *testing.T) {
	plain := []byte("layered payload")
	// applied gzip-then-zstd on the wire; the decode order undoes zstd first
	wire := zstded(t, gzipped(t, plain))

	got, err := decompress(wire, []Coding{CodingGzip, CodingZstd})
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestDecompressIdentitySkipped(t *testing.T) {
	plain := []byte("as is")
	got, err := decompress(plain, []Coding{CodingIdentity})
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestDecompressBadDataTagged(t *testing.T) {
	_, err := decompress([]byte("definitely not gzip"), []Coding{CodingGzip})
	var derr *DecompressError
	require.ErrorAs(t, err, &derr)
	require.Equal(t, CodingGzip, derr.Coding)
}

func TestConvertDecompressesGzipBody(t *testing.T) {
	body := gzipped(t, []byte("MozillaDeveloperNetwork"))
	head := "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " +
		strconv.Itoa(len(body)) + "\r\n\r\n"

	bs := bytebuf.New(append([]byte(head), body...))
	cur := bytebuf.NewCursor(&bs)
	r := NewReader(RoleResponse)
	require.NoError(t, r.Next(bytebuf.Read, &cur))
	require.True(t, r.Ended())

	one, err := r.Frame()
	require.NoError(t, err)
	require.Equal(t, "MozillaDeveloperNetwork", one.Body().Raw().String())
	require.False(t, one.Headers().Has("Content-Encoding"))

	value, _ := one.Headers().Value("Content-Length")
	require.Equal(t, "23", value)
}
