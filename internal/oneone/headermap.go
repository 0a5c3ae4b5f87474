package oneone

import (
	"strings"
	"unicode/utf8"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

// HeaderMap is the insertion-ordered list of header lines plus the final
// CRLF of the header region. Operations preserve the stored order unless a
// removal is asked for explicitly.
type HeaderMap struct {
	headers []Header
	crlf    bytebuf.ByteString
}

// NewHeaderMap carves a raw header region (all lines plus the final CRLF)
// into individual headers without copying. Invalid UTF-8 is replaced
// upfront so the string accessors stay safe.
func NewHeaderMap(raw bytebuf.ByteString) HeaderMap {
	if !utf8.Valid(raw.Bytes()) {
		raw = bytebuf.NewString(strings.ToValidUTF8(raw.String(), string(utf8.RuneError)))
	}

	final := raw.SplitOff(raw.Len() - 2)
	var headers []Header
	for !raw.Empty() {
		idx := strings.Index(uf.B2S(raw.Bytes()), crlf)
		if idx == -1 {
			idx = 0
		}
		headers = append(headers, newHeader(raw.SplitTo(idx+2)))
	}

	return HeaderMap{headers: headers, crlf: final}
}

func (m *HeaderMap) IntoBytes() bytebuf.ByteString {
	tail := m.crlf
	for i := len(m.headers) - 1; i >= 0; i-- {
		line := m.headers[i].IntoBytes()
		line.Unsplit(tail)
		tail = line
	}
	m.headers = nil

	return tail
}

func (m *HeaderMap) Headers() []Header {
	return m.headers
}

func (m *HeaderMap) Len() int {
	return len(m.headers)
}

func (m *HeaderMap) Add(h Header) {
	m.headers = append(m.headers, h)
}

func (m *HeaderMap) AddPair(key, value string) {
	m.Add(HeaderFromPair(key, value))
}

// Index returns the position of the first header with the given key, or -1.
func (m *HeaderMap) Index(key string) int {
	for i := range m.headers {
		if strcomp.EqualFold(m.headers[i].Key(), key) {
			return i
		}
	}

	return -1
}

func (m *HeaderMap) Has(key string) bool {
	return m.Index(key) != -1
}

// Value returns the value of the first header with the given key.
func (m *HeaderMap) Value(key string) (string, bool) {
	if i := m.Index(key); i != -1 {
		return m.headers[i].Value(), true
	}

	return "", false
}

// IndexPair returns the position of the first header matching both key and
// value case-insensitively, or -1.
func (m *HeaderMap) IndexPair(key, value string) int {
	for i := range m.headers {
		if strcomp.EqualFold(m.headers[i].Key(), key) &&
			strcomp.EqualFold(m.headers[i].Value(), value) {
			return i
		}
	}

	return -1
}

func (m *HeaderMap) Remove(key string) bool {
	i := m.Index(key)
	if i == -1 {
		return false
	}
	m.RemoveAt(i)

	return true
}

func (m *HeaderMap) RemoveAt(i int) {
	m.headers = append(m.headers[:i], m.headers[i+1:]...)
}

// SetValue replaces the value of the first header with the given key,
// reporting whether one existed.
func (m *HeaderMap) SetValue(key, value string) bool {
	i := m.Index(key)
	if i == -1 {
		return false
	}
	m.headers[i].setValue(value)

	return true
}

func (m *HeaderMap) SetValueAt(i int, value string) {
	m.headers[i].setValue(value)
}

// Append moves all headers of other to the end of the map, preserving their
// order. Used to merge chunked trailers in.
func (m *HeaderMap) Append(other HeaderMap) {
	m.headers = append(m.headers, other.headers...)
}
