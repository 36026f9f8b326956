package bintext

// Encoding identifies the byte-level text encoding of a stream, detected
// once on open (spec.md §4.1).
type Encoding int

const (
	// ASCII is single-byte text with no byte-order mark.
	ASCII Encoding = iota
	// UTF8 is UTF-8, with or without a byte-order mark.
	UTF8
	// UTF16LE is UTF-16 little-endian, with or without a byte-order mark.
	UTF16LE
	// UTF16BE is UTF-16 big-endian, with or without a byte-order mark.
	UTF16BE
)

func (e Encoding) String() string {
	switch e {
	case ASCII:
		return "ASCII"
	case UTF8:
		return "UTF-8"
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	default:
		return "unknown"
	}
}

// CharSize returns the code-unit size in bytes for the encoding: 1 for
// ASCII/UTF-8, 2 for UTF-16 of either byte order.
func (e Encoding) CharSize() int {
	if e == UTF16LE || e == UTF16BE {
		return 2
	}
	return 1
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// detectEncoding implements spec.md §4.1's detection heuristic over the
// first chunk of the stream. It returns the detected encoding and the
// byte length of any byte-order mark consumed (0, 2 or 3).
func detectEncoding(head []byte) (enc Encoding, bomLen int) {
	switch {
	case len(head) >= 3 && head[0] == bomUTF8[0] && head[1] == bomUTF8[1] && head[2] == bomUTF8[2]:
		return UTF8, 3
	case len(head) >= 2 && head[0] == bomUTF16LE[0] && head[1] == bomUTF16LE[1]:
		return UTF16LE, 2
	case len(head) >= 2 && head[0] == bomUTF16BE[0] && head[1] == bomUTF16BE[1]:
		return UTF16BE, 2
	}

	hasHighBit := false
	for _, b := range head {
		if b >= 0x80 {
			hasHighBit = true
			break
		}
	}
	if !hasHighBit {
		if looksUTF16(head, true) {
			return UTF16LE, 0
		}
		if looksUTF16(head, false) {
			return UTF16BE, 0
		}
		return ASCII, 0
	}
	if isValidUTF8(head) {
		return UTF8, 0
	}
	if looksUTF16(head, true) {
		return UTF16LE, 0
	}
	if looksUTF16(head, false) {
		return UTF16BE, 0
	}
	return UTF8, 0
}

// looksUTF16 reports whether head exhibits the classic "every other byte
// is zero" pattern of ASCII-range UTF-16 text without a BOM: zero bytes
// at odd positions for little-endian, even positions for big-endian.
func looksUTF16(head []byte, little bool) bool {
	if len(head) < 4 {
		return false
	}
	zeroIdx := 1
	if !little {
		zeroIdx = 0
	}
	zeros, total := 0, 0
	for i := zeroIdx; i+1 < len(head); i += 2 {
		total++
		if head[i] == 0 {
			zeros++
		}
	}
	return total > 0 && zeros == total
}

func isValidUTF8(b []byte) bool {
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c < 0x80:
			i++
		case c&0xE0 == 0xC0:
			if !continuationRun(b, i, 1) {
				return false
			}
			i += 2
		case c&0xF0 == 0xE0:
			if !continuationRun(b, i, 2) {
				return false
			}
			i += 3
		case c&0xF8 == 0xF0:
			if !continuationRun(b, i, 3) {
				return false
			}
			i += 4
		default:
			return false
		}
	}
	return true
}

func continuationRun(b []byte, start, n int) bool {
	if start+n >= len(b) {
		// Truncated at the end of the probe window; don't fail the
		// whole buffer over a boundary split.
		return true
	}
	for i := 1; i <= n; i++ {
		if b[start+i]&0xC0 != 0x80 {
			return false
		}
	}
	return true
}
