package oneone

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decompress undoes the codec chain. The wire lists codecs in application
// order, so decoding walks the list in reverse and replaces the payload
// after every pass. The "compress" token is decoded as zstd, matching the
// reference implementation rather than the RFC.
func decompress(data []byte, codings []Coding) ([]byte, error) {
	for i := len(codings) - 1; i >= 0; i-- {
		coding := codings[i]
		var (
			decoded []byte
			err     error
		)

		switch coding {
		case CodingGzip:
			decoded, err = decompressGzip(data)
		case CodingDeflate:
			decoded, err = decompressDeflate(data)
		case CodingBrotli:
			decoded, err = decompressBrotli(data)
		case CodingZstd, CodingCompress:
			decoded, err = decompressZstd(data)
		default:
			continue
		}

		if err != nil {
			return nil, &DecompressError{Coding: coding, Err: err}
		}
		data = decoded
	}

	return data, nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func decompressDeflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	return io.ReadAll(r)
}

func decompressBrotli(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}

func decompressZstd(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
