// Package blockfile stores a column as a sequence of compressed blocks of a
// fixed number of rows.
//
// A block file is laid out as
//
//	block 0 | block 1 | ... | footer (JSON) | footer length (uint32 LE) | "RSBK"
//
// Each block holds the little-endian elements of BlockRows rows, the last
// block possibly fewer, compressed with the codec named in the footer. The
// footer records the element type, the row width and the offset, length and
// xxh3 checksum of every block.
package blockfile

import (
	"encoding/binary"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/runscan/pkg/errors"
)

const (
	magic         = "RSBK"
	formatVersion = 1
	trailerSize   = 4 + len(magic)
)

type footer struct {
	Version     int        `json:"version"`
	Type        string     `json:"type"`
	Width       int        `json:"width"`
	Rows        int64      `json:"rows"`
	BlockRows   int64      `json:"block_rows"`
	Compression string     `json:"compression"`
	Blocks      []blockRef `json:"blocks"`
}

type blockRef struct {
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
	Checksum uint64 `json:"checksum"`
}

func encodeTrailer(f *footer) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+trailerSize)
	out = append(out, body...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	return append(out, magic...), nil
}

// decodeTrailer parses the footer at the end of a file of size bytes using
// read to fetch byte ranges.
func decodeTrailer(size int64, read func(off, n int64) ([]byte, error)) (*footer, error) {
	if size < int64(trailerSize) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "block file of %d bytes is too short", size)
	}
	tail, err := read(size-int64(trailerSize), int64(trailerSize))
	if err != nil {
		return nil, err
	}
	if string(tail[4:]) != magic {
		return nil, errors.New(errors.ErrorTypeValidation, "not a block file")
	}
	n := int64(binary.LittleEndian.Uint32(tail[:4]))
	if n > size-int64(trailerSize) {
		return nil, errors.Newf(errors.ErrorTypeValidation, "footer length %d exceeds file", n)
	}
	body, err := read(size-int64(trailerSize)-n, n)
	if err != nil {
		return nil, err
	}

	var f footer
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "decode block file footer")
	}
	if f.Version != formatVersion {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unsupported block file version %d", f.Version)
	}
	if f.BlockRows <= 0 || f.Width <= 0 || f.Rows < 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "corrupt block file footer")
	}
	if want := (f.Rows + f.BlockRows - 1) / f.BlockRows; int64(len(f.Blocks)) != want {
		return nil, errors.Newf(errors.ErrorTypeValidation, "footer lists %d blocks, want %d", len(f.Blocks), want)
	}
	return &f, nil
}
