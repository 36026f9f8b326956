// Package dta implements the DTA text dialect (SPEC_FULL.md §4.7):
// a concatenation of per-scan blocks, each introduced by a ".dta"
// pseudo-header comment line, grounded on the bufio.Scanner
// state-machine idiom of the msp reader in the retrieval pack
// (other_examples/8e71bea7_..._msp-reader.go.go).
package dta

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/spectrum"
)

// headerRE matches the pseudo-header comment line DTA concatenation
// files use to separate blocks, e.g.
// ===================================== "sample.1.1.2.dta" ==================
var headerRE = regexp.MustCompile(`"([^"]+\.dta)"`)

// scanNumRE pulls the first of the "<dataset>.<first>.<last>.<charge>.dta"
// numeric fields out of a block's file name, when present.
var scanNumRE = regexp.MustCompile(`\.(\d+)\.(\d+)\.(\d+)\.dta$`)

// Reader drives a single forward pass over a DTA concatenation file,
// presenting the same Next/Spectrum/Err/Close shape as the streaming
// SAX readers so msxml.Open can return a uniform SpectrumStream
// (SPEC_FULL.md §4.9).
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer

	pendingHeader string
	haveHeader    bool

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

// Next advances to the next spectrum block. It returns false at EOF or
// on the first parse error (inspect Err to distinguish the two).
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
	header := r.pendingHeader
	if r.haveHeader {
		r.haveHeader = false
	} else {
		var ok bool
		header, ok = r.nextHeaderLine()
		if !ok {
			if err := r.scanner.Err(); err != nil {
				return nil, msxmlerr.Wrap(msxmlerr.Parse, "dta: read header", err)
			}
			return nil, io.EOF
		}
	}

	if !r.scanner.Scan() {
		return nil, msxmlerr.New(msxmlerr.Parse, "dta: block has no parent-mass/charge line")
	}
	parentMass, charge, err := parseFirstLine(r.scanner.Text())
	if err != nil {
		return nil, err
	}

	rec := spectrum.Get()
	rec.MSLevel = 2
	rec.ScanNumber = scanNumberFromHeader(header)
	// DTA's first line reports the MH+ (protonated) parent mass, not an
	// m/z; this reader carries it verbatim rather than converting, since
	// the conversion depends on the charge-state heuristics SPEC_FULL.md
	// §1 explicitly excludes.
	rec.ParentIonMz = parentMass
	rec.ParentIonCharge = charge

	var mz []float64
	var inten []float32
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		if headerRE.MatchString(line) {
			r.pendingHeader = line
			r.haveHeader = true
			break
		}
		m, i, perr := parsePeakLine(line)
		if perr != nil {
			return nil, perr
		}
		mz = append(mz, m)
		inten = append(inten, i)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, msxmlerr.Wrap(msxmlerr.Parse, "dta: read peaks", err)
	}
	rec.Mz = mz
	rec.Intensity = inten
	if err := rec.Validate(); err != nil {
		return nil, msxmlerr.Wrap(msxmlerr.Parse, "dta: validate spectrum", err)
	}
	return rec, nil
}

// nextHeaderLine skips blank lines until it finds a pseudo-header.
func (r *Reader) nextHeaderLine() (string, bool) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		if headerRE.MatchString(line) {
			return line, true
		}
	}
	return "", false
}

func scanNumberFromHeader(header string) int32 {
	m := headerRE.FindStringSubmatch(header)
	if m == nil {
		return 0
	}
	sm := scanNumRE.FindStringSubmatch(m[1])
	if sm == nil {
		return 0
	}
	n, err := strconv.ParseInt(sm[1], 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

func parseFirstLine(line string) (mass float64, charge int32, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, msxmlerr.New(msxmlerr.Parse, "dta: malformed parent-mass/charge line: "+line)
	}
	mass, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, msxmlerr.Wrap(msxmlerr.Parse, "dta: parent mass", err)
	}
	c, err := strconv.ParseInt(fields[1], 10, 32)
	if err != nil {
		return 0, 0, msxmlerr.Wrap(msxmlerr.Parse, "dta: charge", err)
	}
	return mass, int32(c), nil
}

func parsePeakLine(line string) (mz float64, intensity float32, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, msxmlerr.New(msxmlerr.Parse, "dta: malformed peak line: "+line)
	}
	mz, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, msxmlerr.Wrap(msxmlerr.Parse, "dta: peak m/z", err)
	}
	i, err := strconv.ParseFloat(fields[1], 32)
	if err != nil {
		return 0, 0, msxmlerr.Wrap(msxmlerr.Parse, "dta: peak intensity", err)
	}
	return mz, float32(i), nil
}
