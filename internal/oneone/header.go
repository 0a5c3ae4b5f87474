package oneone

import (
	"strings"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/indigo-web/utils/uf"
)

// Header is one header line as two adjacent views: key keeps the ": "
// separator, value the terminating CRLF. Re-joining them reproduces the
// exact original line.
type Header struct {
	key   bytebuf.ByteString
	value bytebuf.ByteString
}

func newHeader(line bytebuf.ByteString) Header {
	fs := strings.Index(uf.B2S(line.Bytes()), headerFS)
	var key bytebuf.ByteString
	if fs <= 0 {
		// no separator: keep at least one byte as the key so the CRLF
		// survives in the value
		key = line.SplitTo(1)
	} else {
		key = line.SplitTo(fs + len(headerFS))
	}

	return Header{key: key, value: line}
}

// HeaderFromPair builds a freshly allocated header line.
func HeaderFromPair(key, value string) Header {
	k := bytebuf.NewString(key + headerFS)
	v := bytebuf.NewString(value + crlf)

	return Header{key: k, value: v}
}

func (h *Header) IntoBytes() bytebuf.ByteString {
	h.key.Unsplit(h.value)

	return h.key
}

// Key returns the header name with the ": " stripped.
func (h *Header) Key() string {
	s := uf.B2S(h.key.Bytes())
	if idx := strings.Index(s, headerFS); idx != -1 {
		return s[:idx]
	}

	return s
}

// Value returns the header value with the CRLF stripped.
func (h *Header) Value() string {
	s := uf.B2S(h.value.Bytes())
	if idx := strings.Index(s, crlf); idx != -1 {
		return s[:idx]
	}

	return s
}

func (h *Header) setValue(value string) {
	h.value = bytebuf.NewString(value + crlf)
}

func (h *Header) setKey(key string) {
	h.key = bytebuf.NewString(key + headerFS)
}
