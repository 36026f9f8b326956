// Package codec implements the base64/zlib/endian peak-array decoder
// shared by the mzXML and mzData SAX readers (spec.md §4.2). It never
// decides pair order (m/z vs intensity first); that is the dialect
// reader's job.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/Schaudge/msxml/msxmlerr"
)

// Endian selects the byte order of the packed numeric values.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

// Precision selects the element width of the packed numeric values.
type Precision int

const (
	Precision32 Precision = 32
	Precision64 Precision = 64
)

// Decode decodes a base64 peak payload into a slice of float64 values,
// one per packed element, honoring zlib compression, endianness and
// element width.
//
// Decode strips whitespace from text before decoding and rejects any
// other invalid base64 characters. If zlibCompressed, the decoded bytes
// are inflated as a zlib stream (not raw deflate) before being
// reinterpreted.
func Decode(text string, zlibCompressed bool, endian Endian, prec Precision) ([]float64, error) {
	if prec != Precision32 && prec != Precision64 {
		return nil, msxmlerr.New(msxmlerr.Codec, "codec: unsupported precision")
	}

	clean := stripWhitespace(text)
	raw, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, msxmlerr.Wrap(msxmlerr.Codec, "codec: invalid base64", err)
	}

	if zlibCompressed {
		raw, err = inflate(raw)
		if err != nil {
			return nil, msxmlerr.Wrap(msxmlerr.Codec, "codec: zlib inflate failed", err)
		}
	}

	elemSize := 4
	if prec == Precision64 {
		elemSize = 8
	}
	if len(raw)%elemSize != 0 {
		return nil, msxmlerr.New(msxmlerr.Codec, "codec: payload length not a multiple of element size")
	}

	n := len(raw) / elemSize
	out := make([]float64, n)
	var order binary.ByteOrder = binary.LittleEndian
	if endian == BigEndian {
		order = binary.BigEndian
	}
	for i := 0; i < n; i++ {
		chunk := raw[i*elemSize : (i+1)*elemSize]
		if prec == Precision32 {
			out[i] = float64(math.Float32frombits(order.Uint32(chunk)))
		} else {
			out[i] = math.Float64frombits(order.Uint64(chunk))
		}
	}
	return out, nil
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Encode is the inverse of Decode: it packs values at the given
// precision and endianness, optionally zlib-compresses the result, and
// base64-encodes it. It exists primarily to support the round-trip
// property in spec.md §8 (re-encoding a decoded payload reproduces the
// original, modulo whitespace) in tests.
func Encode(values []float64, zlibCompress bool, endian Endian, prec Precision) (string, error) {
	if prec != Precision32 && prec != Precision64 {
		return "", msxmlerr.New(msxmlerr.Codec, "codec: unsupported precision")
	}
	elemSize := 4
	if prec == Precision64 {
		elemSize = 8
	}
	var order binary.ByteOrder = binary.LittleEndian
	if endian == BigEndian {
		order = binary.BigEndian
	}
	raw := make([]byte, len(values)*elemSize)
	for i, v := range values {
		chunk := raw[i*elemSize : (i+1)*elemSize]
		if prec == Precision32 {
			order.PutUint32(chunk, math.Float32bits(float32(v)))
		} else {
			order.PutUint64(chunk, math.Float64bits(v))
		}
	}
	if zlibCompress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return "", msxmlerr.Wrap(msxmlerr.Codec, "codec: zlib deflate failed", err)
		}
		if err := zw.Close(); err != nil {
			return "", msxmlerr.Wrap(msxmlerr.Codec, "codec: zlib deflate failed", err)
		}
		raw = buf.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
