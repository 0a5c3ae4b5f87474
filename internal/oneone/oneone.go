package oneone

import (
	"bytes"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
)

// OneOne is one HTTP/1.1 frame: a parsed header region plus, once the body
// reader has run, the body. Every field is a view into the connection's
// read buffer; IntoBytes re-joins the views and is byte-identical to the
// parsed input unless headers were deliberately mutated.
type OneOne struct {
	role       Role
	infoLine   InfoLine
	headerMap  HeaderMap
	bodyHeader *BodyHeader
	body       *Body
}

// New parses the raw header region (start-line, headers, final CRLF). The
// body is attached later by the reader.
func New(role Role, raw bytebuf.ByteString) (*OneOne, error) {
	idx := bytes.IndexByte(raw.Bytes(), '\r')
	if idx == -1 {
		return nil, &HeaderStructError{Data: raw.String()}
	}

	line, err := parseInfoLine(role, raw.SplitTo(idx+2))
	if err != nil {
		return nil, err
	}

	one := &OneOne{
		role:      role,
		infoLine:  line,
		headerMap: NewHeaderMap(raw),
	}
	one.bodyHeader = parseBodyHeaders(role, line, &one.headerMap)

	return one, nil
}

func (o *OneOne) Role() Role {
	return o.role
}

func (o *OneOne) Request() *RequestLine {
	line, _ := o.infoLine.(*RequestLine)
	return line
}

func (o *OneOne) Response() *ResponseLine {
	line, _ := o.infoLine.(*ResponseLine)
	return line
}

func (o *OneOne) Headers() *HeaderMap {
	return &o.headerMap
}

func (o *OneOne) BodyHeader() *BodyHeader {
	return o.bodyHeader
}

func (o *OneOne) Body() *Body {
	return o.body
}

func (o *OneOne) SetBody(b *Body) {
	o.body = b
}

func (o *OneOne) HasTrailers() bool {
	return o.headerMap.Has(hdrTrailer)
}

// IntoBytes consumes the frame: start-line, headers in stored order, final
// CRLF, then the raw body.
func (o *OneOne) IntoBytes() bytebuf.ByteString {
	data := o.infoLine.IntoBytes()
	data.Unsplit(o.headerMap.IntoBytes())
	if o.body != nil && !o.body.chunked {
		data.Unsplit(o.body.raw)
	}

	return data
}
