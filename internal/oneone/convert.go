package oneone

import (
	"strconv"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
)

// Convert canonicalises a frame's body in place: the chunked pieces are
// fused into one raw payload (trailers merged into the header map), the
// codec chain is undone in reverse wire order and Content-Length is set to
// the truthful value. Applying it to an already canonical frame is a no-op
// apart from the Content-Length rewrite, which lands on the same value.
func Convert(one *OneOne) error {
	if one.Body() == nil {
		return nil
	}

	if one.Body().Chunked() {
		fuseChunks(one)
		one.Headers().Remove(hdrTransferEncoding)
	}

	body := one.Body().Raw()

	if bh := one.BodyHeader(); bh != nil {
		if len(bh.TransferEncoding) > 0 {
			decoded, err := decompress(body.Bytes(), bh.TransferEncoding)
			if err != nil {
				return err
			}
			body = bytebuf.New(decoded)
			one.Headers().Remove(hdrTransferEncoding)
			bh.TransferEncoding = nil
		}
		if len(bh.ContentEncoding) > 0 {
			decoded, err := decompress(body.Bytes(), bh.ContentEncoding)
			if err != nil {
				return err
			}
			body = bytebuf.New(decoded)
			one.Headers().Remove(hdrContentEncoding)
			bh.ContentEncoding = nil
		}
	}

	length := strconv.Itoa(body.Len())
	if !one.Headers().SetValue(hdrContentLength, length) {
		one.Headers().AddPair(hdrContentLength, length)
	}
	if bh := one.BodyHeader(); bh != nil {
		bh.Transfer = TransferType{Kind: TransferContentLength, Size: body.Len()}
	}

	one.SetBody(NewRawBody(body))

	return nil
}

// fuseChunks concatenates the chunk payloads (stripping each trailing CRLF)
// and folds any trailer headers into the map, dropping the Trailer
// announcement.
func fuseChunks(one *OneOne) {
	pieces := one.Body().Pieces()
	fused := bytebuf.NewCapacity(totalChunkSize(pieces))
	for i := range pieces {
		switch pieces[i].Kind {
		case PieceChunk:
			data := pieces[i].Data.Bytes()
			fused.Append(data[:len(data)-2])
		case PieceTrailers:
			one.Headers().Remove(hdrTrailer)
			one.Headers().Append(pieces[i].Trailers)
		}
	}

	one.SetBody(NewRawBody(fused))
}
