package oneone

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/harpoon-proxy/harpoon/internal/bytebuf"
	"github.com/indigo-web/utils/uf"
)

type chunkState uint8

const (
	chunkReadSize chunkState = iota + 1
	chunkReadData
	chunkLastChunk
	chunkReadTrailers
	chunkEndCRLF
	chunkEnd
)

// chunkReader walks a chunked body piece by piece:
// ReadSize -> ReadData(n+2) -> ReadSize -> ... -> LastChunk ->
// (ReadTrailers | EndCRLF) -> End. The caller transitions out of LastChunk
// itself (trailers depend on the outer header map); polling LastChunk is a
// programming error.
type chunkReader struct {
	state chunkState
	size  int
}

func (c *chunkReader) next(cur *bytebuf.Cursor) (ChunkPiece, bool, error) {
	switch c.state {
	case chunkReadSize:
		if !markSizeLine(cur) {
			return ChunkPiece{}, false, nil
		}
		size, err := parseSizeLine(cur)
		if err != nil {
			return ChunkPiece{}, false, err
		}
		if size == 0 {
			c.state = chunkLastChunk
			return ChunkPiece{Kind: PieceLastChunk, Data: cur.SplitAtCurrentPos()}, true, nil
		}
		c.state = chunkReadData
		c.size = size + 2 // payload plus its CRLF

		return ChunkPiece{Kind: PieceSize, Data: cur.SplitAtCurrentPos()}, true, nil

	case chunkReadData:
		if !countdown(cur, &c.size) {
			return ChunkPiece{}, false, nil
		}
		c.state = chunkReadSize

		return ChunkPiece{Kind: PieceChunk, Data: cur.SplitAtCurrentPos()}, true, nil

	case chunkLastChunk:
		return ChunkPiece{}, false, ErrLastChunkPoll

	case chunkReadTrailers:
		if bytes.Equal(cur.Remaining(), []byte(crlf)) {
			cur.SetPosition(cur.Position() + 2)
			c.state = chunkEnd

			return ChunkPiece{Kind: PieceEndCRLF, Data: cur.SplitAtCurrentPos()}, true, nil
		}
		if scanHeaderEnd(cur) {
			c.state = chunkEnd
			trailers := NewHeaderMap(cur.SplitAtCurrentPos())

			return ChunkPiece{Kind: PieceTrailers, Trailers: trailers}, true, nil
		}

		return ChunkPiece{}, false, nil

	case chunkEndCRLF:
		if bytes.Equal(cur.Remaining(), []byte(crlf)) {
			cur.SetPosition(cur.Position() + 2)
			c.state = chunkEnd

			return ChunkPiece{Kind: PieceEndCRLF, Data: cur.SplitAtCurrentPos()}, true, nil
		}

		return ChunkPiece{}, false, nil

	default:
		return ChunkPiece{}, false, nil
	}
}

// markSizeLine positions the cursor on the CRLF terminating the size line.
func markSizeLine(cur *bytebuf.Cursor) bool {
	idx := bytes.Index(cur.Remaining(), []byte(crlf))
	if idx == -1 {
		return false
	}
	cur.SetPosition(cur.Position() + idx)

	return true
}

// parseSizeLine decodes the hex prefix of the marked size line, discarding
// any chunk extension past the first ';', then advances over the CRLF.
func parseSizeLine(cur *bytebuf.Cursor) (int, error) {
	line := uf.B2S(cur.Full()[:cur.Position()])
	hex, _, _ := strings.Cut(line, ";")
	size, err := strconv.ParseUint(strings.TrimSpace(hex), 16, 63)
	if err != nil {
		return 0, &ChunkSizeError{Line: line, Err: err}
	}
	cur.SetPosition(cur.Position() + 2)

	return int(size), nil
}
