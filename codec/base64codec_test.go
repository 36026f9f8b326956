package codec

import (
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestDecodeBigEndianF32Pairs(t *testing.T) {
	// {100.0, 50.0, 200.0, 75.0} packed big-endian f32, matches scenario 1
	// of spec.md §8.
	text, err := Encode([]float64{100.0, 50.0, 200.0, 75.0}, false, BigEndian, Precision32)
	assert.NoError(t, err)

	got, err := Decode(text, false, BigEndian, Precision32)
	assert.NoError(t, err)
	assert.EQ(t, got, []float64{100.0, 50.0, 200.0, 75.0})
}

func TestDecodeZlibF64Pair(t *testing.T) {
	// zlib(big-endian f64 pair {500.0, 1000.0}), matches scenario 2.
	text, err := Encode([]float64{500.0, 1000.0}, true, BigEndian, Precision64)
	assert.NoError(t, err)

	got, err := Decode(text, true, BigEndian, Precision64)
	assert.NoError(t, err)
	assert.EQ(t, got, []float64{500.0, 1000.0})
}

func TestDecodeLittleEndianF32(t *testing.T) {
	text, err := Encode([]float64{1.5, 2.5}, false, LittleEndian, Precision32)
	assert.NoError(t, err)

	got, err := Decode(text, false, LittleEndian, Precision32)
	assert.NoError(t, err)
	assert.EQ(t, got, []float64{1.5, 2.5})
}

func TestDecodeStripsWhitespace(t *testing.T) {
	text, err := Encode([]float64{1.0, 2.0}, false, BigEndian, Precision32)
	assert.NoError(t, err)

	withNewlines := text[:len(text)/2] + "\n  \t" + text[len(text)/2:]
	got, err := Decode(withNewlines, false, BigEndian, Precision32)
	assert.NoError(t, err)
	assert.EQ(t, got, []float64{1.0, 2.0})
}

func TestDecodeUnalignedLength(t *testing.T) {
	// "AAA" base64-decodes to 2 bytes, not a multiple of 4.
	_, err := Decode("AAA=", false, BigEndian, Precision32)
	assert.NotNil(t, err)
}

func TestDecodeUnsupportedPrecision(t *testing.T) {
	_, err := Decode("AAAA", false, BigEndian, 16)
	assert.NotNil(t, err)
}

func TestDecodeInvalidBase64(t *testing.T) {
	_, err := Decode("not valid base64!!", false, BigEndian, Precision32)
	assert.NotNil(t, err)
}
