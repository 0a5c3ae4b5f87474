package oneone

import (
	"bytes"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
)

type readerState uint8

const (
	readHeader readerState = iota + 1
	readBodyContentLength
	readBodyChunked
	readBodyClose
	readEnd
)

// Reader is the incremental per-frame state machine. Feed it the
// connection cursor after every read; Ended reports frame completion and
// Frame finalizes (dechunk, decompress, header rewrites).
type Reader struct {
	role  Role
	state readerState
	one   *OneOne
	size  int
	chunk chunkReader
}

func NewReader(role Role) *Reader {
	return &Reader{role: role, state: readHeader}
}

func (r *Reader) Ended() bool {
	return r.state == readEnd
}

/* State transitions, per event:
 *      readHeader/Read     header terminator found => split the header
 *                          region off, dispatch on the derived transfer
 *                          type, re-enter with the leftover bytes
 *      readHeader/End      ErrHeaderNotEnoughData
 *      readCL/Read         countdown over remaining; on zero split the body
 *      readCL/End          whatever arrived is the body
 *      readChunked/Read    drive the chunk reader until it starves
 *      readChunked/End     ErrChunkNotEnoughData
 *      readClose/Read      keep buffering
 *      readClose/End       the whole buffer is the body
 */
func (r *Reader) Next(ev bytebuf.Event, cur *bytebuf.Cursor) error {
	switch r.state {
	case readHeader:
		if ev == bytebuf.End {
			return ErrHeaderNotEnoughData
		}
		if !scanHeaderEnd(cur) {
			return nil
		}
		if err := r.dispatchBody(cur.SplitAtCurrentPos()); err != nil {
			return err
		}
		if r.state != readEnd && cur.Len() > 0 {
			return r.Next(ev, cur)
		}

		return nil

	case readBodyContentLength:
		if ev == bytebuf.End {
			if cur.Len() > 0 {
				r.one.SetBody(NewRawBody(cur.SplitAtCurrentPos()))
			}
			r.state = readEnd

			return nil
		}
		if countdown(cur, &r.size) {
			r.one.SetBody(NewRawBody(cur.SplitAtCurrentPos()))
			r.state = readEnd
		}

		return nil

	case readBodyChunked:
		if ev == bytebuf.End {
			return ErrChunkNotEnoughData
		}

		return r.driveChunkReader(cur)

	case readBodyClose:
		if ev == bytebuf.End {
			r.one.SetBody(NewRawBody(cur.IntoInner()))
			r.state = readEnd
		}

		return nil

	default: // readEnd
		return nil
	}
}

func (r *Reader) dispatchBody(rawHeaders bytebuf.ByteString) error {
	one, err := New(r.role, rawHeaders)
	if err != nil {
		return err
	}
	r.one = one

	bh := one.BodyHeader()
	if bh == nil {
		r.state = readEnd
		return nil
	}

	switch bh.Transfer.Kind {
	case TransferContentLength:
		if bh.Transfer.Size == 0 {
			r.state = readEnd
			return nil
		}
		r.size = bh.Transfer.Size
		r.state = readBodyContentLength
	case TransferChunked:
		one.SetBody(NewChunkedBody())
		r.chunk = chunkReader{state: chunkReadSize}
		r.state = readBodyChunked
	case TransferClose:
		r.state = readBodyClose
	default:
		r.state = readEnd
	}

	return nil
}

func (r *Reader) driveChunkReader(cur *bytebuf.Cursor) error {
	for {
		piece, ok, err := r.chunk.next(cur)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		r.one.Body().PushPiece(piece)

		switch r.chunk.state {
		case chunkLastChunk:
			if r.one.HasTrailers() {
				r.chunk.state = chunkReadTrailers
			} else {
				r.chunk.state = chunkEndCRLF
			}
		case chunkEnd:
			r.state = readEnd
			return nil
		}
	}
}

// Frame finalizes a completed read: the chunked body is fused, the codec
// chain undone, Content-Length made truthful, hop-by-hop headers rewritten.
func (r *Reader) Frame() (*OneOne, error) {
	one := r.one
	if one == nil {
		return nil, ErrHeaderNotEnoughData
	}
	if one.Body() != nil {
		if err := Convert(one); err != nil {
			return nil, err
		}
	}

	if i := one.Headers().IndexPair(hdrConnection, valKeepAlive); i != -1 {
		one.Headers().SetValueAt(i, valClose)
	}
	one.Headers().Remove(hdrProxyConnection)
	one.Headers().Remove(hdrWsExtensions)

	return one, nil
}

// scanHeaderEnd looks for the 4-byte header terminator. When absent the
// position rewinds to len-3 so a partial "\r\n\r" survives the next read.
func scanHeaderEnd(cur *bytebuf.Cursor) bool {
	if idx := bytes.Index(cur.Full(), []byte(headerDelimiter)); idx != -1 {
		cur.SetPosition(idx + len(headerDelimiter))
		return true
	}

	if cur.Len() > 3 {
		cur.SetPosition(cur.Len() - 3)
	}

	return false
}

// countdown compares the unread bytes against *size, advancing over
// whichever is smaller. Reports true once the full size was consumed.
func countdown(cur *bytebuf.Cursor, size *int) bool {
	remaining := len(cur.Remaining())
	if remaining < *size {
		*size -= remaining
		cur.SetPosition(cur.Position() + remaining)

		return false
	}

	cur.SetPosition(cur.Position() + *size)

	return true
}
