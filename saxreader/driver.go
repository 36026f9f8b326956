// Package saxreader implements the dialect-agnostic SAX driver shared by
// the mzXML and mzData readers (spec.md §4.3): an element-stack-tracking
// pull loop over github.com/orisano/gosax, dispatching to a small
// Dialect interface rather than a class hierarchy (spec.md §9 "Dynamic
// dispatch over dialects").
package saxreader

import (
	"io"
	"os"
	"strings"

	"github.com/orisano/gosax"

	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/spectrum"
)

// Dialect is implemented by MzXmlSaxReader and MzDataSaxReader. Each
// method receives the Driver so it can use the latches and stack
// documented in spec.md §4.3 without the driver needing to know
// anything dialect-specific.
type Dialect interface {
	// OnStartElement is called for every opening tag.
	OnStartElement(d *Driver, name string, attrs Attrs) error
	// OnEndElement is called for every closing tag.
	OnEndElement(d *Driver, name string) error
	// OnContent is called for text/CDATA content of the current element.
	OnContent(d *Driver, text []byte) error
	// CurrentSpectrum returns the spectrum the dialect most recently
	// finalized via MarkSpectrumFound.
	CurrentSpectrum() *spectrum.Record
	// InitCurrentSpectrum resets dialect-local spectrum state before a
	// new spectrum begins.
	InitCurrentSpectrum()
	// FinalizeAtEOF gives the dialect a chance to validate and finalize
	// a spectrum that was still being populated when the input ended.
	// This is the normal path for RandomAccessAccessor's per-spectrum
	// subtree fetch: an mzXML entry's byte range ends at the closing
	// </peaks> rather than </scan> (spec.md §3, §4.6), so the fed
	// subtree never contains a closing </scan> event to trigger the
	// ordinary finalize-on-end-element path. It returns true if a
	// spectrum was finalized.
	FinalizeAtEOF() (bool, error)
}

// Driver is the shared SAX pull loop. It is not safe for concurrent use.
type Driver struct {
	dialect Dialect

	gx      *gosax.Reader
	counter *countingReader
	total   int64

	stack []string

	skipNextAdvance     bool
	skippedStartAdvance bool
	spectrumFound       bool

	pendingName  string
	pendingAttrs Attrs

	version   string
	inputPath string
	scanCount int32

	closer io.Closer
}

// New returns a Driver for the given dialect. Call OpenFile,
// OpenTextStream or SetReaderForSpectrum before ReadNextSpectrum.
func New(dialect Dialect) *Driver {
	return &Driver{dialect: dialect}
}

// OpenFile opens path for streaming parse from the beginning.
func (d *Driver) OpenFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return msxmlerr.Wrap(msxmlerr.Io, "saxreader: open "+path, err)
	}
	fi, statErr := f.Stat()
	if statErr == nil {
		d.total = fi.Size()
	}
	d.inputPath = path
	d.closer = f
	d.counter = &countingReader{r: f}
	d.gx = gosax.NewReader(d.counter)
	return nil
}

// OpenTextStream parses text as a complete document.
func (d *Driver) OpenTextStream(text string) error {
	d.total = int64(len(text))
	d.counter = &countingReader{r: strings.NewReader(text)}
	d.gx = gosax.NewReader(d.counter)
	d.closer = nil
	return nil
}

// SetReaderForSpectrum points the driver at a fresh subtree reader, used
// by RandomAccessAccessor to parse exactly one spectrum's bytes. It does
// not reset the element stack or dialect state, since a subtree reader
// starts mid-document at the <scan>/<spectrum> element itself.
func (d *Driver) SetReaderForSpectrum(r io.Reader) {
	d.counter = &countingReader{r: r}
	d.gx = gosax.NewReader(d.counter)
	d.skipNextAdvance = false
	d.skippedStartAdvance = false
	d.spectrumFound = false
}

// Close releases any file opened by OpenFile.
func (d *Driver) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

// Version returns the dialect version string discovered on the root
// element, if any.
func (d *Driver) Version() string { return d.version }

// SetVersion is called by the dialect once it has read the root
// element's version attribute.
func (d *Driver) SetVersion(v string) { d.version = v }

// ScanCount returns the declared scan/spectrum count from the header, if
// any was seen.
func (d *Driver) ScanCount() int32 { return d.scanCount }

// SetScanCount is called by the dialect once it has read a scanCount or
// spectrumList count attribute.
func (d *Driver) SetScanCount(n int32) { d.scanCount = n }

// InputPath returns the path passed to OpenFile, or "" if the driver was
// opened from a text stream or subtree reader.
func (d *Driver) InputPath() string { return d.inputPath }

// ProgressPercent returns bytes consumed over total bytes, as a
// percentage in [0, 100]. It is 0 if the total length is unknown.
func (d *Driver) ProgressPercent() float32 {
	if d.total <= 0 || d.counter == nil {
		return 0
	}
	pct := float32(d.counter.n) / float32(d.total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ParentStack returns the current stack of enclosing element names,
// outermost first, not including the element currently being
// dispatched. mzData uses this to disambiguate elements whose meaning
// depends on their grandparent (spec.md §4.3).
func (d *Driver) ParentStack() []string { return d.stack }

// MarkSpectrumFound signals that the dialect has just finalized a
// spectrum (typically right after calling Validate on it); the driver
// will return it from ReadNextSpectrum once the current dispatch
// returns.
func (d *Driver) MarkSpectrumFound() { d.spectrumFound = true }

// RequestReplayCurrentStart asks the driver to redeliver the start
// element currently being dispatched on the next loop iteration without
// reading a new event, and without pushing it onto the parent stack a
// second time. It is used by MzXmlSaxReader to emit an outer <scan> as
// soon as a nested <scan> begins (spec.md §4.4).
func (d *Driver) RequestReplayCurrentStart() {
	d.skipNextAdvance = true
}

// ReadNextSpectrum drives the pull loop until the dialect finalizes a
// spectrum, the stream ends (io.EOF), or an error occurs.
func (d *Driver) ReadNextSpectrum() (*spectrum.Record, error) {
	if d.gx == nil {
		return nil, msxmlerr.New(msxmlerr.NotReady, "saxreader: no input reader set")
	}
	for {
		var (
			evType uint8
			bytes  []byte
		)
		if d.skipNextAdvance {
			d.skipNextAdvance = false
			d.skippedStartAdvance = true
			evType = gosax.EventStart
		} else {
			ev, err := d.gx.Event()
			if err != nil {
				return nil, msxmlerr.Wrap(msxmlerr.Parse, "saxreader: xml read", err)
			}
			evType = ev.Type()
			bytes = ev.Bytes
			if evType == gosax.EventEOF {
				found, ferr := d.dialect.FinalizeAtEOF()
				if ferr != nil {
					return nil, ferr
				}
				if found {
					return d.dialect.CurrentSpectrum(), nil
				}
				return nil, io.EOF
			}
		}

		var err error
		switch evType {
		case gosax.EventStart:
			var name string
			var attrs Attrs
			wasReplay := false
			if d.skippedStartAdvance && d.pendingName != "" {
				name = d.pendingName
				attrs = d.pendingAttrs
				d.skippedStartAdvance = false
				wasReplay = true
			} else {
				nameBytes, rest := gosax.Name(bytes)
				name = string(nameBytes)
				attrs, err = parseAttrs(rest)
				if err != nil {
					return nil, msxmlerr.Wrap(msxmlerr.Parse, "saxreader: attribute parse", err)
				}
				d.pendingName = name
				d.pendingAttrs = attrs
			}
			// ParentStack must reflect ancestors only while the dialect
			// handles this element's own start tag, so the push happens
			// after dispatch. A replay re-dispatches an element already
			// pushed by its first (genuine) appearance, so it must not
			// push again.
			err = d.dialect.OnStartElement(d, name, attrs)
			if err == nil && !wasReplay {
				d.stack = append(d.stack, name)
			}
		case gosax.EventEnd:
			nameBytes, _ := gosax.Name(bytes)
			name := string(nameBytes)
			if len(d.stack) > 0 {
				d.stack = d.stack[:len(d.stack)-1]
			}
			err = d.dialect.OnEndElement(d, name)
		case gosax.EventText, gosax.EventCData:
			unescaped, uerr := gosax.Unescape(append([]byte(nil), bytes...))
			if uerr != nil {
				unescaped = bytes
			}
			err = d.dialect.OnContent(d, unescaped)
		}
		if err != nil {
			return nil, err
		}
		if d.spectrumFound {
			d.spectrumFound = false
			return d.dialect.CurrentSpectrum(), nil
		}
	}
}

// countingReader wraps an io.Reader to track bytes consumed for progress
// reporting.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
