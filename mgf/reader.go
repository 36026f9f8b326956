// Package mgf implements the Mascot Generic Format text dialect
// (SPEC_FULL.md §4.8): BEGIN IONS/END IONS blocks with key=value
// headers, grounded on the same msp-reader bufio.Scanner idiom as
// package dta (other_examples/8e71bea7_..._msp-reader.go.go).
package mgf

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/spectrum"
)

// Reader mirrors dta.Reader's Next/Spectrum/Err/Close shape so
// msxml.Open can return a uniform SpectrumStream regardless of dialect.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer

	cur *spectrum.Record
	err error
}

// NewReader wraps r. If r also implements io.Closer, Close releases it.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{scanner: bufio.NewScanner(r)}
	rd.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if c, ok := r.(io.Closer); ok {
		rd.closer = c
	}
	return rd
}

// Close releases the underlying reader, if it was an io.Closer.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Next advances to the next BEGIN IONS/END IONS block.
func (r *Reader) Next() bool {
	if r.cur != nil {
		spectrum.Put(r.cur)
	}
	r.cur = nil
	rec, err := r.readBlock()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.cur = rec
	return true
}

// Spectrum returns the record most recently produced by Next. It is
// only valid until the next call to Next; Clone it to keep it longer.
func (r *Reader) Spectrum() *spectrum.Record { return r.cur }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

func (r *Reader) readBlock() (*spectrum.Record, error) {
	if !r.seekToNextBeginIons() {
		if err := r.scanner.Err(); err != nil {
			return nil, msxmlerr.Wrap(msxmlerr.Parse, "mgf: seek BEGIN IONS", err)
		}
		return nil, io.EOF
	}

	rec := spectrum.Get()
	rec.MSLevel = 2
	var mz []float64
	var inten []float32
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "END IONS") {
			rec.Mz = mz
			rec.Intensity = inten
			if err := rec.Validate(); err != nil {
				return nil, msxmlerr.Wrap(msxmlerr.Parse, "mgf: validate spectrum", err)
			}
			return rec, nil
		}
		if eq := strings.IndexByte(line, '='); eq > 0 && isHeaderKey(line[:eq]) {
			applyHeader(rec, line[:eq], line[eq+1:])
			continue
		}
		m, i, err := parsePeakLine(line)
		if err != nil {
			return nil, err
		}
		mz = append(mz, m)
		inten = append(inten, i)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, msxmlerr.Wrap(msxmlerr.Parse, "mgf: read block", err)
	}
	return nil, msxmlerr.New(msxmlerr.Parse, "mgf: BEGIN IONS without matching END IONS")
}

func (r *Reader) seekToNextBeginIons() bool {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if strings.EqualFold(line, "BEGIN IONS") {
			return true
		}
	}
	return false
}

func isHeaderKey(key string) bool {
	switch strings.ToUpper(key) {
	case "TITLE", "PEPMASS", "CHARGE", "RTINSECONDS":
		return true
	default:
		return false
	}
}

// applyHeader fills rec from one recognized key=value header line
// (SPEC_FULL.md §4.8). Unrecognized keys never reach here; the caller
// already filtered with isHeaderKey.
func applyHeader(rec *spectrum.Record, key, value string) {
	switch strings.ToUpper(key) {
	case "TITLE":
		rec.FilterLine = value
	case "PEPMASS":
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return
		}
		if mz, err := strconv.ParseFloat(fields[0], 64); err == nil {
			rec.ParentIonMz = mz
		}
		if len(fields) > 1 {
			if inten, err := strconv.ParseFloat(fields[1], 32); err == nil {
				rec.ParentIonIntensity = float32(inten)
			}
		}
	case "CHARGE":
		rec.ParentIonCharge = parseChargeToken(value)
	case "RTINSECONDS":
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			rec.RetentionTimeMin = secs / 60.0
		}
	}
}

// parseChargeToken parses MGF's "\d+[+-]" charge notation (e.g. "2+").
// Charge-state heuristics beyond the declared token are explicitly out
// of scope (spec.md §1 Non-goals).
func parseChargeToken(value string) int32 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	sign := int32(1)
	digits := value
	if last := value[len(value)-1]; last == '+' || last == '-' {
		if last == '-' {
			sign = -1
		}
		digits = value[:len(value)-1]
	}
	n, err := strconv.ParseInt(digits, 10, 32)
	if err != nil {
		return 0
	}
	return sign * int32(n)
}

func parsePeakLine(line string) (mz float64, intensity float32, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, msxmlerr.New(msxmlerr.Parse, "mgf: malformed peak line: "+line)
	}
	mz, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, msxmlerr.Wrap(msxmlerr.Parse, "mgf: peak m/z", err)
	}
	i, err := strconv.ParseFloat(fields[1], 32)
	if err != nil {
		return 0, 0, msxmlerr.Wrap(msxmlerr.Parse, "mgf: peak intensity", err)
	}
	return mz, float32(i), nil
}
