package oneone

import "github.com/harpoon-proxy/harpoon/internal/bytebuf"

// PieceKind labels the constituents of a chunked body, retained as parsed
// until the convert step fuses them.
type PieceKind uint8

const (
	PieceSize PieceKind = iota + 1
	PieceChunk
	PieceLastChunk
	PieceTrailers
	PieceEndCRLF
)

// ChunkPiece is one piece of a chunked body. Data holds the raw bytes for
// every kind except PieceTrailers, which carries a parsed header map.
type ChunkPiece struct {
	Kind     PieceKind
	Data     bytebuf.ByteString
	Trailers HeaderMap
}

// Body is either the raw (content-length framed) payload or the list of
// chunked pieces.
type Body struct {
	chunked bool
	pieces  []ChunkPiece
	raw     bytebuf.ByteString
}

func NewRawBody(data bytebuf.ByteString) *Body {
	return &Body{raw: data}
}

func NewChunkedBody() *Body {
	return &Body{chunked: true}
}

func (b *Body) Chunked() bool {
	return b.chunked
}

func (b *Body) PushPiece(piece ChunkPiece) {
	if b.chunked {
		b.pieces = append(b.pieces, piece)
	}
}

func (b *Body) Pieces() []ChunkPiece {
	return b.pieces
}

func (b *Body) Raw() bytebuf.ByteString {
	return b.raw
}

func (b *Body) Len() int {
	if b.chunked {
		return totalChunkSize(b.pieces)
	}

	return b.raw.Len()
}

// totalChunkSize sums the payload bytes over the chunk pieces, stripping
// each piece's trailing CRLF.
func totalChunkSize(pieces []ChunkPiece) int {
	total := 0
	for i := range pieces {
		if pieces[i].Kind == PieceChunk {
			total += pieces[i].Data.Len() - 2
		}
	}

	return total
}
