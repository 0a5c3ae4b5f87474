package oneone

import (
	"strconv"
	"strings"

	"github.com/harpoon-proxy/harpoon/http/method"
	"github.com/harpoon-proxy/harpoon/http/mime"
	"github.com/indigo-web/utils/strcomp"
)

// Coding is one token of a Content-Encoding / Transfer-Encoding list.
type Coding uint8

const (
	CodingIdentity Coding = iota + 1
	CodingGzip
	CodingDeflate
	CodingBrotli
	CodingZstd
	CodingCompress
	CodingChunked
)

func (c Coding) String() string {
	switch c {
	case CodingGzip:
		return "gzip"
	case CodingDeflate:
		return "deflate"
	case CodingBrotli:
		return "br"
	case CodingZstd:
		return "zstd"
	case CodingCompress:
		return "compress"
	case CodingChunked:
		return "chunked"
	default:
		return "identity"
	}
}

func parseCoding(token string) Coding {
	switch {
	case strcomp.EqualFold(token, "gzip"):
		return CodingGzip
	case strcomp.EqualFold(token, "deflate"):
		return CodingDeflate
	case strcomp.EqualFold(token, "br"):
		return CodingBrotli
	case strcomp.EqualFold(token, "zstd"):
		return CodingZstd
	case strcomp.EqualFold(token, "compress"):
		return CodingCompress
	case strcomp.EqualFold(token, "chunked"):
		return CodingChunked
	default:
		return CodingIdentity
	}
}

// TransferKind says how the body is delimited on the wire.
type TransferKind uint8

const (
	TransferUnknown TransferKind = iota
	TransferContentLength
	TransferChunked
	TransferClose
)

// TransferType is TransferKind plus the byte count for the content-length
// case.
type TransferType struct {
	Kind TransferKind
	Size int
}

// BodyHeader is the digest of the body-relevant headers, derived once per
// frame. All-empty derivations are dropped ("no body").
type BodyHeader struct {
	ContentEncoding  []Coding
	TransferEncoding []Coding
	ContentType      mime.ContentType
	hasContentType   bool
	Transfer         TransferType
}

/* Derivation precedence:
 *      1. Content-Length parses as decimal; a parse failure demotes the
 *         transfer to close-delimited.
 *      2. A chunked token inside Transfer-Encoding is removed from the
 *         coding list and overrides any earlier content-length.
 *      3. Content-Encoding is kept as the codec list in wire order.
 *      4. A frame with body headers but no explicit delimiter is
 *         close-delimited.
 */
func bodyHeaderFromMap(m *HeaderMap) *BodyHeader {
	var bh BodyHeader
	for i := range m.headers {
		h := &m.headers[i]
		key := h.Key()
		switch {
		case strcomp.EqualFold(key, hdrContentLength) || strcomp.EqualFold(key, "cl"):
			if bh.Transfer.Kind == TransferUnknown {
				bh.Transfer = contentLengthTransfer(h.Value())
			}
		case strcomp.EqualFold(key, hdrTransferEncoding) || strcomp.EqualFold(key, "te"):
			bh.TransferEncoding = parseCodings(h.Value())
			if removed := removeChunked(&bh.TransferEncoding); removed {
				bh.Transfer = TransferType{Kind: TransferChunked}
			}
		case strcomp.EqualFold(key, hdrContentEncoding) || strcomp.EqualFold(key, "ce"):
			bh.ContentEncoding = parseCodings(h.Value())
		case strcomp.EqualFold(key, hdrContentType):
			if mainType, _, found := strings.Cut(h.Value(), "/"); found {
				bh.ContentType = mime.Parse(mainType)
				bh.hasContentType = true
			}
		}
	}

	if bh.Transfer.Kind == TransferUnknown {
		if len(bh.ContentEncoding) == 0 && len(bh.TransferEncoding) == 0 && !bh.hasContentType {
			// nothing body-related at all
			return nil
		}
		bh.Transfer = TransferType{Kind: TransferClose}
	}

	return &bh
}

func contentLengthTransfer(value string) TransferType {
	size, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || size < 0 {
		return TransferType{Kind: TransferClose}
	}

	return TransferType{Kind: TransferContentLength, Size: size}
}

func parseCodings(value string) []Coding {
	var codings []Coding
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		codings = append(codings, parseCoding(token))
	}

	return codings
}

func removeChunked(codings *[]Coding) bool {
	kept := (*codings)[:0]
	removed := false
	for _, c := range *codings {
		if c == CodingChunked {
			removed = true
			continue
		}
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		*codings = nil
	} else {
		*codings = kept
	}

	return removed
}

// parseBodyHeaders applies the role gate before deriving: request bodies
// exist only for the body-carrying methods, response bodies never for
// 1xx/204/304.
func parseBodyHeaders(role Role, line InfoLine, m *HeaderMap) *BodyHeader {
	switch role {
	case RoleRequest:
		req := line.(*RequestLine)
		if !method.HasBody(method.Parse(req.Method())) {
			return nil
		}
	case RoleResponse:
		res := line.(*ResponseLine)
		code, ok := res.StatusCode()
		if !ok {
			return nil
		}
		if (code >= 100 && code <= 199) || code == 204 || code == 304 {
			return nil
		}
	}

	return bodyHeaderFromMap(m)
}
