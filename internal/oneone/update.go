package oneone

import (
	"bytes"
	"strconv"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
)

// Update re-parses a user-edited frame. Edited frames are never chunked
// (ingress canonicalises to content-length), so the part past the header
// terminator is taken verbatim as the body and Content-Length is recomputed
// from it.
func Update(role Role, buf bytebuf.ByteString) (*OneOne, error) {
	idx := bytes.Index(buf.Bytes(), []byte(headerDelimiter))
	if idx == -1 {
		return nil, ErrUpdateNoHeaderEnd
	}

	one, err := New(role, buf.SplitTo(idx+len(headerDelimiter)))
	if err != nil {
		return nil, err
	}

	if !buf.Empty() {
		length := strconv.Itoa(buf.Len())
		one.SetBody(NewRawBody(buf))
		if !one.Headers().SetValue(hdrContentLength, length) {
			one.Headers().AddPair(hdrContentLength, length)
		}
	} else {
		// an emptied body zeroes a Content-Length already present
		one.Headers().SetValue(hdrContentLength, "0")
	}

	return one, nil
}
