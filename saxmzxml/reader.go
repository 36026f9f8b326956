// Package saxmzxml implements the mzXML dialect of the shared SAX driver
// (spec.md §4.4): a state machine that populates a spectrum.Record from
// <scan>, <precursorMz> and <peaks> elements, including the nested-scan
// re-entry dance and the legacy ReAdW seconds/minutes mislabeling
// fix-up.
package saxmzxml

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Schaudge/msxml/codec"
	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/saxreader"
	"github.com/Schaudge/msxml/spectrum"
)

// versionRE matches the mzXML_<version> token inside an xmlns or
// xsi:schemaLocation attribute value (spec.md §4.4).
var versionRE = regexp.MustCompile(`mzXML_[^\s"/]+`)

// EventSink receives warnings that do not fail the enclosing call
// (spec.md §7): peaks-count mismatches, nested-scan depth clamps, and
// unrecognized versions when parsing continues anyway.
type EventSink interface {
	Warning(text string)
}

type noopSink struct{}

func (noopSink) Warning(string) {}

// Options configures a Reader.
type Options struct {
	// ParseFilesWithUnknownVersion allows parsing to continue when the
	// root element's version string does not contain "mzXML_2" or
	// "mzXML_3" (spec.md §4.4).
	ParseFilesWithUnknownVersion bool
	// SkipBinaryData causes peak payloads to be recognized but not
	// decoded, for header-only fetches (spec.md §4.6).
	SkipBinaryData bool
	// DisableTimeFixup turns off the legacy ReAdW seconds/minutes
	// mislabel heuristic (spec.md §9 open question): some genuine
	// high-rate acquisitions can have an average interval under 0.1
	// s/scan and would otherwise be misfixed.
	DisableTimeFixup bool
	Sink             EventSink
}

// Reader drives saxreader.Driver with the mzXML dialect state machine.
type Reader struct {
	driver *saxreader.Driver
	opts   Options

	cur       *spectrum.Record
	finalized *spectrum.Record
	depth     int

	msInstrumentSeen bool
	scanCount        int32
	startTimeMin     float64
	endTimeMin       float64
	haveStartTime    bool
	haveEndTime      bool

	// peaks element state, captured at <peaks ...> and consumed at
	// </peaks> once the text content has accumulated.
	inPeaks          bool
	peaksPrecision   codec.Precision
	peaksEndian      codec.Endian
	peaksCompression bool
	peaksPairOrder   string // as declared, e.g. "m/z-int" or "intensity-m/z"
	declaredCount    int32  // peaksCount from <scan>, or from <peaks> if it carries one
	peaksText        strings.Builder

	// precursorMz element state
	inPrecursorMz bool
	precursorText strings.Builder
}

// NewReader constructs an mzXML Reader. Pass an Options zero value for
// defaults (strict version checking, full peak decoding).
func NewReader(opts Options) *Reader {
	r := &Reader{opts: opts}
	if r.opts.Sink == nil {
		r.opts.Sink = noopSink{}
	}
	r.driver = saxreader.New(r)
	return r
}

// Driver exposes the underlying saxreader.Driver so callers (notably
// RandomAccessAccessor) can call OpenFile/OpenTextStream/
// SetReaderForSpectrum/ReadNextSpectrum/Close/Version/ScanCount/
// InputPath/ProgressPercent directly.
func (r *Reader) Driver() *saxreader.Driver { return r.driver }

func (r *Reader) warn(text string) { r.opts.Sink.Warning(text) }

// InitCurrentSpectrum implements saxreader.Dialect.
func (r *Reader) InitCurrentSpectrum() {
	r.cur = spectrum.Get()
}

// CurrentSpectrum implements saxreader.Dialect. It returns the most
// recently finalized spectrum, not whatever r.cur has been reset to in
// the meantime: finalizeCurrent's callers re-initialize r.cur for the
// next spectrum before control returns to the driver, so the driver
// must read the finalized record through a separate handle.
func (r *Reader) CurrentSpectrum() *spectrum.Record { return r.finalized }

// OnStartElement implements saxreader.Dialect.
func (r *Reader) OnStartElement(d *saxreader.Driver, name string, attrs saxreader.Attrs) error {
	switch name {
	case "mzXML":
		return r.checkVersion(d, attrs)
	case "msRun":
		r.scanCount = attrs.GetInt32("scanCount", 0)
		d.SetScanCount(r.scanCount)
		if v, ok := attrs.Get("startTime"); ok {
			r.startTimeMin = attrs.GetTimeMinutes("startTime", 0)
			r.haveStartTime = true
			_ = v
		}
		if v, ok := attrs.Get("endTime"); ok {
			r.endTimeMin = attrs.GetTimeMinutes("endTime", 0)
			r.haveEndTime = true
			_ = v
		}
	case "dataProcessing":
		// centroided is recorded per-spectrum below via the enclosing
		// scan's own flag. dataProcessing's centroided attribute is not
		// read: a scan without its own centroided attribute is recorded
		// as not centroided.
	case "scan":
		return r.onScanStart(d, attrs)
	case "precursorMz":
		r.inPrecursorMz = true
		r.precursorText.Reset()
		if r.cur != nil {
			r.cur.ParentIonIntensity = attrs.GetFloat32("precursorIntensity", 0)
			r.cur.ActivationMethod = attrs.GetString("activationMethod", "")
			r.cur.ParentIonCharge = attrs.GetInt32("precursorCharge", 0)
			r.cur.PrecursorScanNumber = attrs.GetInt32("precursorScanNum", 0)
			r.cur.IsolationWindowWidth = attrs.GetFloat64("windowWideness", 0)
		}
	case "peaks":
		r.inPeaks = true
		r.peaksText.Reset()
		prec := attrs.GetInt32("precision", 32)
		if prec == 64 {
			r.peaksPrecision = codec.Precision64
		} else {
			r.peaksPrecision = codec.Precision32
		}
		if attrs.GetString("byteOrder", "network") == "network" {
			r.peaksEndian = codec.BigEndian
		} else {
			r.peaksEndian = codec.LittleEndian
		}
		r.peaksCompression = attrs.GetString("compressionType", "none") == "zlib"
		pairOrder := attrs.GetString("pairOrder", "")
		if pairOrder == "" {
			pairOrder = attrs.GetString("contentType", "m/z-int")
		}
		r.peaksPairOrder = pairOrder
		if v, ok := attrs.Get("peaksCount"); ok && r.cur != nil {
			r.declaredCount = parseInt32(v)
		}
	}
	return nil
}

func (r *Reader) checkVersion(d *saxreader.Driver, attrs saxreader.Attrs) error {
	candidates := []string{attrs.GetString("xmlns", ""), attrs.GetString("xsi:schemaLocation", "")}
	version := ""
	for _, c := range candidates {
		if m := versionRE.FindString(c); m != "" {
			version = m
			break
		}
	}
	d.SetVersion(version)
	if version == "" || strings.Contains(version, "mzXML_2") || strings.Contains(version, "mzXML_3") {
		return nil
	}
	if r.opts.ParseFilesWithUnknownVersion {
		r.warn("saxmzxml: unrecognized version " + version + "; continuing")
		return nil
	}
	return msxmlerr.New(msxmlerr.Parse, "saxmzxml: unrecognized mzXML version "+version)
}

func (r *Reader) onScanStart(d *saxreader.Driver, attrs saxreader.Attrs) error {
	if r.depth > 0 && r.cur != nil && isNonEmpty(r.cur) {
		if err := r.finalizeCurrent(d); err != nil {
			return err
		}
		r.InitCurrentSpectrum()
		d.RequestReplayCurrentStart()
		return nil
	}

	r.depth++
	if r.cur == nil || isNonEmpty(r.cur) {
		r.InitCurrentSpectrum()
	}
	num, ok := attrs.Get("num")
	if !ok {
		r.cur.ScanNumber = 0
		r.warn("saxmzxml: <scan> missing num attribute; defaulting to 0")
	} else {
		r.cur.ScanNumber = parseInt32(num)
	}
	r.cur.MSLevel = attrs.GetInt32("msLevel", 0)
	r.declaredCount = attrs.GetInt32("peaksCount", 0) // overwritten in the <peaks> case if peaksCount is seen there
	r.cur.ObservedMzRangeLo = attrs.GetFloat64("lowMz", 0)
	r.cur.ObservedMzRangeHi = attrs.GetFloat64("highMz", 0)
	r.cur.InstrumentMzRangeLo = attrs.GetFloat64("startMz", 0)
	r.cur.InstrumentMzRangeHi = attrs.GetFloat64("endMz", 0)
	r.cur.BasePeakMz = attrs.GetFloat64("basePeakMz", 0)
	r.cur.BasePeakIntensity = attrs.GetFloat32("basePeakIntensity", 0)
	r.cur.TotalIonCurrent = attrs.GetFloat64("totIonCurrent", 0)
	r.cur.RetentionTimeMin = attrs.GetTimeMinutes("retentionTime", 0)
	r.cur.Centroided = attrs.GetBool("centroided", false)
	if polarity := attrs.GetString("polarity", ""); polarity == "+" {
		r.cur.Polarity = spectrum.Positive
	} else if polarity == "-" {
		r.cur.Polarity = spectrum.Negative
	}
	r.cur.FilterLine = attrs.GetString("filterLine", "")
	r.cur.ScanType = attrs.GetString("scanType", "")
	if v, ok := attrs.Get("scanCount"); ok {
		r.cur.ScansCombined = parseInt32(v)
	}
	return nil
}

// OnEndElement implements saxreader.Dialect.
func (r *Reader) OnEndElement(d *saxreader.Driver, name string) error {
	switch name {
	case "precursorMz":
		r.inPrecursorMz = false
		if r.cur != nil {
			r.cur.ParentIonMz = parseFloat64(strings.TrimSpace(r.precursorText.String()))
		}
	case "peaks":
		if err := r.finishPeaks(); err != nil {
			return err
		}
	case "scan":
		if r.cur != nil && isNonEmpty(r.cur) {
			if err := r.finalizeCurrent(d); err != nil {
				return err
			}
			r.InitCurrentSpectrum()
		}
		r.depth--
		if r.depth < 0 {
			r.warn("saxmzxml: scan nesting depth went negative; clamping to 0")
			r.depth = 0
		}
	}
	return nil
}

// OnContent implements saxreader.Dialect.
func (r *Reader) OnContent(d *saxreader.Driver, text []byte) error {
	if r.inPrecursorMz {
		r.precursorText.Write(text)
	}
	if r.inPeaks {
		r.peaksText.Write(text)
	}
	return nil
}

func isNonEmpty(r *spectrum.Record) bool {
	return r.ScanNumber != 0 || r.MSLevel != 0 || len(r.Mz) != 0 || r.Status != spectrum.Initialized
}

func (r *Reader) finalizeCurrent(d *saxreader.Driver) error {
	r.applyTimeFixup(d)
	if err := r.cur.Validate(); err != nil {
		return msxmlerr.Wrap(msxmlerr.Parse, "saxmzxml: validate spectrum", err)
	}
	// The previous finalized record was handed to the caller on the prior
	// ReadNextSpectrum call; by the time a second one finalizes, that
	// caller has had its full round-trip to consume or copy it.
	if r.finalized != nil {
		spectrum.Put(r.finalized)
	}
	r.finalized = r.cur
	if d != nil {
		d.MarkSpectrumFound()
	}
	return nil
}

// FinalizeAtEOF implements saxreader.Dialect. It covers the subtree-fetch
// case where the fed bytes end at </peaks> rather than </scan> (spec.md
// §3, §4.6): if a spectrum is still being populated when the input is
// exhausted, finalize it here instead of requiring a closing </scan>.
func (r *Reader) FinalizeAtEOF() (bool, error) {
	if r.cur == nil || !isNonEmpty(r.cur) {
		return false, nil
	}
	if err := r.finalizeCurrent(nil); err != nil {
		return false, err
	}
	r.InitCurrentSpectrum()
	r.depth = 0
	return true, nil
}

// applyTimeFixup implements the legacy ReAdW seconds/minutes mislabel
// workaround of spec.md §4.4: fires once, the first time both msRun
// times and scanCount have been observed.
func (r *Reader) applyTimeFixup(d *saxreader.Driver) {
	if r.opts.DisableTimeFixup || !r.haveStartTime || !r.haveEndTime || r.scanCount <= 0 {
		return
	}
	avgSecPerScan := (r.endTimeMin - r.startTimeMin) / float64(r.scanCount) * 60
	if avgSecPerScan < 0.1 {
		r.startTimeMin *= 60
		r.endTimeMin *= 60
	}
	// Only apply once: clear the scanCount gate so subsequent spectra in
	// the same file don't re-trigger the check.
	r.scanCount = 0
}

// StartTimeMin and EndTimeMin expose the (possibly fixed-up) msRun
// times, in minutes.
func (r *Reader) StartTimeMin() float64 { return r.startTimeMin }
func (r *Reader) EndTimeMin() float64   { return r.endTimeMin }

func (r *Reader) finishPeaks() error {
	r.inPeaks = false
	if r.opts.SkipBinaryData {
		r.cur.Mz = nil
		r.cur.Intensity = nil
		return nil
	}
	text := r.peaksText.String()
	if strings.TrimSpace(text) == "" {
		r.cur.Mz = nil
		r.cur.Intensity = nil
		if r.declaredCount != 0 {
			r.warn("saxmzxml: empty peaks payload with nonzero peaksCount")
		}
		return nil
	}
	values, err := codec.Decode(text, r.peaksCompression, r.peaksEndian, r.peaksPrecision)
	if err != nil {
		return msxmlerr.Wrap(msxmlerr.Codec, "saxmzxml: decode peaks", err)
	}

	// Empty-marker convention: declared count 0 but decoded a single
	// (0,0) pair.
	if r.declaredCount == 0 && len(values) == 2 && values[0] == 0 && values[1] == 0 {
		r.cur.Mz = nil
		r.cur.Intensity = nil
		return nil
	}

	decodedCount := len(values) / 2
	if r.declaredCount > 0 && int(r.declaredCount) == decodedCount-1 &&
		len(values) >= 2 && values[len(values)-2] == 0 && values[len(values)-1] == 0 {
		values = values[:len(values)-2]
		decodedCount--
	} else if r.declaredCount > 0 && int(r.declaredCount) != decodedCount {
		r.warn("saxmzxml: peaksCount mismatch, adopting decoded length")
	}

	mz := make([]float64, decodedCount)
	inten := make([]float32, decodedCount)
	mzFirst := r.peaksPairOrder != "intensity-m/z" && r.peaksPairOrder != "int-mz"
	for i := 0; i < decodedCount; i++ {
		a, b := values[2*i], values[2*i+1]
		if mzFirst {
			mz[i] = a
			inten[i] = float32(b)
		} else {
			mz[i] = b
			inten[i] = float32(a)
		}
	}
	r.cur.Mz = mz
	r.cur.Intensity = inten
	return nil
}

func parseInt32(s string) int32 {
	var n int32
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int32(c-'0')
	}
	if neg {
		n = -n
	}
	return n
}

func parseFloat64(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
