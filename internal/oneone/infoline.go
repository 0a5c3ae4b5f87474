package oneone

import (
	"bytes"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/indigo-web/utils/uf"
)

// Role distinguishes the two directions a frame can travel in. It selects
// the start-line shape and the body-header rules.
type Role uint8

const (
	RoleRequest Role = iota
	RoleResponse
)

func (r Role) String() string {
	if r == RoleRequest {
		return "req"
	}

	return "res"
}

// InfoLine is the parsed start-line of a frame. Both shapes keep their
// separators inside the field views, so re-joining the fields reproduces
// the original line byte for byte.
type InfoLine interface {
	// IntoBytes consumes the line and re-joins its fields.
	IntoBytes() bytebuf.ByteString
}

// RequestLine is a request start-line. method keeps its trailing space,
// version the leading space and the CRLF.
type RequestLine struct {
	method  bytebuf.ByteString
	uri     bytebuf.ByteString
	version bytebuf.ByteString
}

func parseRequestLine(raw bytebuf.ByteString) (*RequestLine, error) {
	idx := bytes.IndexByte(raw.Bytes(), ' ')
	if idx == -1 {
		return nil, &InfoLineError{Stage: "first OWS", Line: raw.String()}
	}
	method := raw.SplitTo(idx + 1)

	idx = bytes.IndexByte(raw.Bytes(), ' ')
	if idx == -1 {
		return nil, &InfoLineError{Stage: "second OWS", Line: raw.String()}
	}
	uri := raw.SplitTo(idx)

	return &RequestLine{method: method, uri: uri, version: raw}, nil
}

func (r *RequestLine) IntoBytes() bytebuf.ByteString {
	r.uri.Unsplit(r.version)
	r.method.Unsplit(r.uri)

	return r.method
}

// Method returns the method without its trailing space.
func (r *RequestLine) Method() string {
	raw := r.method.Bytes()
	return uf.B2S(raw[:len(raw)-1])
}

func (r *RequestLine) URI() *bytebuf.ByteString {
	return &r.uri
}

func (r *RequestLine) URIString() string {
	return r.uri.String()
}

// SetURI swaps the URI view, e.g. when an absolute-form target is rewritten
// to origin-form in place.
func (r *RequestLine) SetURI(uri bytebuf.ByteString) {
	r.uri = uri
}

// ResponseLine is a response start-line. version keeps the trailing space,
// reason the leading space and the CRLF; status is exactly three bytes.
type ResponseLine struct {
	version bytebuf.ByteString
	status  bytebuf.ByteString
	reason  bytebuf.ByteString
}

func parseResponseLine(raw bytebuf.ByteString) (*ResponseLine, error) {
	// "HTTP/1.1 " is nine bytes, "HTTP/2 " seven; the byte at offset five
	// tells them apart.
	if raw.Len() < 5 {
		return nil, &InfoLineError{Stage: "version", Line: raw.String()}
	}

	versionLen := 7
	if raw.Bytes()[5] == '1' {
		versionLen = 9
	}
	if raw.Len() < versionLen+3 {
		return nil, &InfoLineError{Stage: "version", Line: raw.String()}
	}

	version := raw.SplitTo(versionLen)
	status := raw.SplitTo(3)

	return &ResponseLine{version: version, status: status, reason: raw}, nil
}

func (r *ResponseLine) IntoBytes() bytebuf.ByteString {
	r.status.Unsplit(r.reason)
	r.version.Unsplit(r.status)

	return r.version
}

func (r *ResponseLine) Status() string {
	return uf.B2S(r.status.Bytes())
}

// StatusCode parses the three status bytes; ok is false when they are not
// digits.
func (r *ResponseLine) StatusCode() (int, bool) {
	code := 0
	for _, c := range r.status.Bytes() {
		if c < '0' || c > '9' {
			return 0, false
		}
		code = code*10 + int(c-'0')
	}

	return code, true
}

func parseInfoLine(role Role, raw bytebuf.ByteString) (InfoLine, error) {
	if role == RoleRequest {
		return parseRequestLine(raw)
	}

	return parseResponseLine(raw)
}
