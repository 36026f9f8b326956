// Package bintext provides an encoding-detecting, bidirectional line
// reader over a random-access byte stream (spec.md §4.1). It is the
// lowest layer of the random-access accessor: the forward scanner walks
// spectrum boundaries with it, and the embedded-index loader walks the
// mzXML trailer backwards with it.
package bintext

import (
	"io"
	"os"
	"unicode/utf16"

	"github.com/Schaudge/msxml/msxmlerr"
)

// Terminator identifies how a line ended.
type Terminator int

const (
	// NoTerminator marks the final line of a stream that does not end
	// in CR, LF or CRLF.
	NoTerminator Terminator = iota
	LF
	CRLF
	CR
)

// Direction selects which way ReadLine advances.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

const probeWindow = 4096

// Reader is an encoding-aware bidirectional line reader. Reader is not
// safe for concurrent use; callers that need concurrent random access
// should open one Reader per goroutine (spec.md §5).
type Reader struct {
	ra     io.ReaderAt
	closer io.Closer
	length int64

	enc      Encoding
	bomLen   int
	charSize int

	pos int64 // next byte offset ReadLine(Forward) will start from

	text     string
	start    int64
	endIncl  int64
	term     Terminator
	lineNo   int64
	haveLine bool
}

// Open opens path and detects its encoding. The returned Reader owns the
// underlying file and must be closed with Close.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, msxmlerr.Wrap(msxmlerr.Io, "bintext: open "+path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, msxmlerr.Wrap(msxmlerr.Io, "bintext: stat "+path, err)
	}
	r, err := newReader(f, f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// sizedReaderAt is satisfied by *bytes.Reader and similar in-memory
// readers that know their own length.
type sizedReaderAt interface {
	io.ReaderAt
	Len() int
}

// NewFromBuffer wraps an in-memory byte buffer (e.g. *bytes.Reader) for
// tests and small embedded fragments, without requiring a real file.
func NewFromBuffer(ra sizedReaderAt) (*Reader, error) {
	return newReader(ra, nil, int64(ra.Len()))
}

func newReader(ra io.ReaderAt, closer io.Closer, length int64) (*Reader, error) {
	head := make([]byte, probeWindow)
	n, err := ra.ReadAt(head, 0)
	if err != nil && err != io.EOF {
		return nil, msxmlerr.Wrap(msxmlerr.Io, "bintext: read header", err)
	}
	head = head[:n]
	enc, bomLen := detectEncoding(head)
	r := &Reader{
		ra:       ra,
		closer:   closer,
		length:   length,
		enc:      enc,
		bomLen:   int64ToInt(bomLen),
		charSize: enc.CharSize(),
	}
	r.pos = int64(r.bomLen)
	return r, nil
}

func int64ToInt(n int) int { return n }

// Close releases the underlying stream, if this Reader opened one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Encoding returns the detected encoding.
func (r *Reader) Encoding() Encoding { return r.enc }

// CharSize returns the code-unit size in bytes (1 or 2).
func (r *Reader) CharSize() int { return r.charSize }

// BOMLength returns the number of bytes consumed by a detected
// byte-order mark (0, 2 or 3).
func (r *Reader) BOMLength() int { return r.bomLen }

// FileLength returns the total byte length of the stream.
func (r *Reader) FileLength() int64 { return r.length }

// MoveToBeginning positions the reader just past any byte-order mark.
func (r *Reader) MoveToBeginning() {
	r.pos = int64(r.bomLen)
	r.clearLine()
}

// MoveToEnd positions the reader at end of stream.
func (r *Reader) MoveToEnd() {
	r.pos = r.length
	r.clearLine()
}

// MoveToByteOffset positions the reader at an arbitrary byte offset.
// It is an error to seek past the end of the stream.
func (r *Reader) MoveToByteOffset(off int64) error {
	if off < 0 || off > r.length {
		return msxmlerr.New(msxmlerr.Io, "bintext: seek past end of stream")
	}
	r.pos = off
	r.clearLine()
	return nil
}

func (r *Reader) clearLine() {
	r.text = ""
	r.start = 0
	r.endIncl = 0
	r.term = NoTerminator
	r.haveLine = false
}

// CurrentText returns the decoded text of the most recently read line,
// with its terminator stripped.
func (r *Reader) CurrentText() string { return r.text }

// CurrentStart returns the byte offset of the first byte of the current
// line.
func (r *Reader) CurrentStart() int64 { return r.start }

// CurrentEnd returns the byte offset of the last byte of the current
// line including its terminator (or its last content byte, if the line
// has no terminator).
func (r *Reader) CurrentEnd() int64 { return r.endIncl }

// CurrentTerminator reports how the current line ended.
func (r *Reader) CurrentTerminator() Terminator { return r.term }

// LineNumber returns a 1-based count of lines read forward so far (lines
// read in Reverse do not advance it; it is a forward-progress counter
// used for progress reporting, not a stable line index).
func (r *Reader) LineNumber() int64 { return r.lineNo }

// codeUnit reads one code unit at byte offset off and returns its
// numeric value plus the number of bytes actually available (less than
// CharSize only at EOF).
func (r *Reader) codeUnit(off int64) (value uint16, n int, err error) {
	buf := make([]byte, r.charSize)
	n, err = r.ra.ReadAt(buf, off)
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, 0, err
		}
		return 0, 0, nil
	}
	if r.charSize == 1 {
		return uint16(buf[0]), n, nil
	}
	if n < 2 {
		return 0, n, nil
	}
	if r.enc == UTF16LE {
		return uint16(buf[0]) | uint16(buf[1])<<8, 2, nil
	}
	return uint16(buf[1]) | uint16(buf[0])<<8, 2, nil
}

// decode converts the raw bytes of a line (with its terminator already
// excluded) into a Go string.
func (r *Reader) decode(raw []byte) string {
	if r.charSize == 1 {
		return string(raw)
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		if r.enc == UTF16LE {
			units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		} else {
			units[i] = uint16(raw[2*i+1]) | uint16(raw[2*i])<<8
		}
	}
	return string(utf16.Decode(units))
}

// ReadLine reads the next line in the given direction, returning false
// (with no error) at end of stream. It returns an error only for
// underlying I/O failures.
func (r *Reader) ReadLine(dir Direction) (bool, error) {
	if dir == Forward {
		return r.readForward()
	}
	return r.readReverse()
}

func (r *Reader) readForward() (bool, error) {
	if r.pos >= r.length {
		r.clearLine()
		return false, nil
	}
	start := r.pos
	cs := int64(r.charSize)
	off := start
	var rawLen int64
	term := NoTerminator
	for {
		v, n, err := r.codeUnit(off)
		if err != nil {
			return false, msxmlerr.Wrap(msxmlerr.Io, "bintext: read forward", err)
		}
		if n == 0 { // EOF
			rawLen = off - start
			break
		}
		if v == 0x0D { // CR, possibly CRLF
			v2, n2, err := r.codeUnit(off + cs)
			if err != nil {
				return false, msxmlerr.Wrap(msxmlerr.Io, "bintext: read forward", err)
			}
			rawLen = off - start
			if n2 > 0 && v2 == 0x0A {
				term = CRLF
				off += 2 * cs
			} else {
				term = CR
				off += cs
			}
			break
		}
		if v == 0x0A {
			rawLen = off - start
			term = LF
			off += cs
			break
		}
		off += cs
	}
	raw := make([]byte, rawLen)
	if rawLen > 0 {
		if _, err := r.ra.ReadAt(raw, start); err != nil && err != io.EOF {
			return false, msxmlerr.Wrap(msxmlerr.Io, "bintext: read forward", err)
		}
	}
	r.text = r.decode(raw)
	r.start = start
	if term == NoTerminator {
		r.endIncl = off - 1
		if r.endIncl < start {
			r.endIncl = start - 1 // zero-length final "line"
		}
	} else {
		r.endIncl = off - 1
	}
	r.term = term
	r.pos = off
	r.lineNo++
	r.haveLine = true
	return true, nil
}

// readReverse locates the line whose end-with-terminator offset is
// immediately before the reader's current cursor, per spec.md §4.1.
func (r *Reader) readReverse() (bool, error) {
	contentStart := int64(r.bomLen)
	if r.pos <= contentStart {
		r.clearLine()
		return false, nil
	}
	cs := int64(r.charSize)
	endIncl := r.pos - 1

	// Determine the terminator (if any) ending at endIncl by inspecting
	// the code unit(s) immediately preceding r.pos.
	term := NoTerminator
	contentEnd := r.pos // exclusive end of this line's raw content
	if endIncl-cs+1 >= contentStart {
		v, _, err := r.codeUnit(endIncl - cs + 1)
		if err != nil {
			return false, msxmlerr.Wrap(msxmlerr.Io, "bintext: read reverse", err)
		}
		switch v {
		case 0x0A:
			term = LF
			contentEnd = endIncl - cs + 1
			if contentEnd-cs >= contentStart {
				v2, _, err := r.codeUnit(contentEnd - cs)
				if err != nil {
					return false, msxmlerr.Wrap(msxmlerr.Io, "bintext: read reverse", err)
				}
				if v2 == 0x0D {
					term = CRLF
					contentEnd -= cs
				}
			}
		case 0x0D:
			term = CR
			contentEnd = endIncl - cs + 1
		}
	}

	// Scan backward from contentEnd to find the start of this line: the
	// byte immediately after the previous terminator, or contentStart.
	lineStart, err := r.scanBackToLineStart(contentEnd, contentStart)
	if err != nil {
		return false, err
	}

	raw := make([]byte, contentEnd-lineStart)
	if len(raw) > 0 {
		if _, err := r.ra.ReadAt(raw, lineStart); err != nil && err != io.EOF {
			return false, msxmlerr.Wrap(msxmlerr.Io, "bintext: read reverse", err)
		}
	}
	r.text = r.decode(raw)
	r.start = lineStart
	r.endIncl = endIncl
	r.term = term
	r.pos = lineStart
	r.haveLine = true
	return true, nil
}

// scanBackToLineStart walks backward from contentEnd, growing a window
// each iteration, until it finds a terminator (returning the offset
// immediately after it) or reaches contentStart.
func (r *Reader) scanBackToLineStart(contentEnd, contentStart int64) (int64, error) {
	cs := int64(r.charSize)
	windowLen := int64(probeWindow)
	cursor := contentEnd
	for cursor > contentStart {
		readFrom := cursor - windowLen
		if readFrom < contentStart {
			readFrom = contentStart
		}
		// Align to code-unit boundary.
		readFrom = contentStart + ((readFrom-contentStart)/cs)*cs
		buf := make([]byte, cursor-readFrom)
		n, err := r.ra.ReadAt(buf, readFrom)
		if err != nil && err != io.EOF {
			return 0, msxmlerr.Wrap(msxmlerr.Io, "bintext: scan backward", err)
		}
		buf = buf[:n]
		if found, ok := lastTerminatorEnd(buf, r.enc, cs); ok {
			return readFrom + found, nil
		}
		if readFrom == contentStart {
			return contentStart, nil
		}
		windowLen *= 2
		cursor = readFrom + cs // leave one unit of overlap for a split CRLF
	}
	return contentStart, nil
}

// lastTerminatorEnd scans buf for the last LF, CR or CRLF and returns the
// offset (within buf) immediately after it.
func lastTerminatorEnd(buf []byte, enc Encoding, cs int64) (int64, bool) {
	n := int64(len(buf)) / cs
	for i := n - 1; i >= 0; i-- {
		off := i * cs
		v := codeUnitAt(buf, off, enc, cs)
		if v == 0x0A {
			return off + cs, true
		}
		if v == 0x0D {
			return off + cs, true
		}
	}
	return 0, false
}

func codeUnitAt(buf []byte, off int64, enc Encoding, cs int64) uint16 {
	if cs == 1 {
		return uint16(buf[off])
	}
	if enc == UTF16LE {
		return uint16(buf[off]) | uint16(buf[off+1])<<8
	}
	return uint16(buf[off+1]) | uint16(buf[off])<<8
}

// ReadAllBytes returns the raw bytes in [start, endInclusive] verbatim,
// used by RandomAccessAccessor's GetSourceXMLByIndex and per-spectrum
// fetch to recover the original subtree text for an index entry.
func (r *Reader) ReadAllBytes(start, endInclusive int64) ([]byte, error) {
	if endInclusive < start {
		return nil, nil
	}
	n := endInclusive - start + 1
	buf := make([]byte, n)
	if _, err := r.ra.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, msxmlerr.Wrap(msxmlerr.Io, "bintext: read range", err)
	}
	return buf, nil
}

// DecodeString decodes raw encoded bytes into a Go string using the
// stream's detected encoding.
func (r *Reader) DecodeString(raw []byte) string { return r.decode(raw) }
