// Package saxmzdata implements the mzData dialect of the shared SAX
// driver (spec.md §4.5): a cvParam-routing state machine over
// <spectrum>/<spectrumDesc>/<acqSpecification>/<acqDescription> and two
// independently-declared base64 payloads for m/z and intensity.
package saxmzdata

import (
	"strconv"
	"strings"

	"github.com/Schaudge/msxml/codec"
	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/saxreader"
	"github.com/Schaudge/msxml/spectrum"
)

// EventSink receives warnings that do not fail parsing (spec.md §7).
type EventSink interface {
	Warning(text string)
}

type noopSink struct{}

func (noopSink) Warning(string) {}

// Options configures a Reader.
type Options struct {
	SkipBinaryData bool
	Sink           EventSink
}

// maxParentIonLookback bounds the MS1 lookback window used to recover
// a precursor's intensity, which mzData (unlike mzXML) does not carry
// inline on the precursor element itself (spec.md §4.5, §9 Open
// Question "mzData acqNumber lossiness").
const maxParentIonLookback = 20

// Reader drives saxreader.Driver with the mzData dialect state machine.
type Reader struct {
	driver *saxreader.Driver
	opts   Options

	cur           *spectrum.Record
	finalized     *spectrum.Record
	haveAcqNumber bool

	// DataProcessingMethod-section cvParams (spec.md §4.5): mzData
	// declares these once, ahead of spectrumList, so they are captured
	// here and applied as each spectrum is initialized.
	fileDeisotoped         bool
	fileChargeDeconvoluted bool
	filePeaksCentroided    bool

	// binary payload capture; mzData declares two independent <data>
	// elements, one under <mzArrayBinary> and one under
	// <intenArrayBinary>.
	inData        bool
	dataIsMz      bool
	dataPrecision codec.Precision
	dataEndian    codec.Endian
	dataLength    int32
	dataText      strings.Builder

	// recent MS1 spectra, most-recent-last, used to resolve a
	// precursor's intensity by acqNumber lookback.
	recentMS1 []*spectrum.Record
}

// NewReader constructs an mzData Reader.
func NewReader(opts Options) *Reader {
	r := &Reader{opts: opts}
	if r.opts.Sink == nil {
		r.opts.Sink = noopSink{}
	}
	r.driver = saxreader.New(r)
	return r
}

// Driver exposes the underlying saxreader.Driver.
func (r *Reader) Driver() *saxreader.Driver { return r.driver }

func (r *Reader) warn(text string) { r.opts.Sink.Warning(text) }

// InitCurrentSpectrum implements saxreader.Dialect.
func (r *Reader) InitCurrentSpectrum() {
	r.cur = spectrum.Get()
	r.cur.Deisotoped = r.fileDeisotoped
	r.cur.ChargeDeconvoluted = r.fileChargeDeconvoluted
	r.cur.Centroided = r.filePeaksCentroided
	r.haveAcqNumber = false
}

// CurrentSpectrum implements saxreader.Dialect. See saxmzxml.Reader's
// method of the same name for why this returns a separate handle
// rather than r.cur directly.
func (r *Reader) CurrentSpectrum() *spectrum.Record { return r.finalized }

// OnStartElement implements saxreader.Dialect.
func (r *Reader) OnStartElement(d *saxreader.Driver, name string, attrs saxreader.Attrs) error {
	switch name {
	case "spectrumList":
		d.SetScanCount(attrs.GetInt32("count", 0))
	case "spectrum":
		if r.cur == nil {
			r.InitCurrentSpectrum()
		}
	case "spectrumSettings":
		// container only
	case "acqSpecification":
		// spectrumType is "discrete" or "continuous"; continuous
		// acquisitions are profile-mode and never centroided.
		if attrs.GetString("spectrumType", "discrete") == "continuous" {
			r.cur.Centroided = false
		}
	case "acquisition":
		// spec.md §4.5: only the first <acquisition>'s acqNumber sets the
		// scan number unless the file declares exactly one spectrum, in
		// which case every occurrence may still apply.
		if v, ok := attrs.Get("acqNumber"); ok {
			if !r.haveAcqNumber || d.ScanCount() == 1 {
				r.cur.ScanNumber = parseInt32(v)
			}
			r.haveAcqNumber = true
		}
	case "spectrumDesc":
		// container only
	case "spectrumInstrument":
		r.cur.MSLevel = attrs.GetInt32("msLevel", 0)
		r.cur.ObservedMzRangeLo = attrs.GetFloat64("mzRangeStart", 0)
		r.cur.ObservedMzRangeHi = attrs.GetFloat64("mzRangeStop", 0)
	case "cvParam":
		r.onCvParam(d, attrs)
	case "precursor":
		if v, ok := attrs.Get("spectrumRef"); ok {
			r.cur.PrecursorScanNumber = parseInt32(v)
		}
	case "mzArrayBinary":
		r.dataIsMz = true
	case "intenArrayBinary":
		r.dataIsMz = false
	case "data":
		r.inData = true
		r.dataText.Reset()
		if attrs.GetString("endian", "little") == "big" {
			r.dataEndian = codec.BigEndian
		} else {
			r.dataEndian = codec.LittleEndian
		}
		prec := attrs.GetInt32("precision", 32)
		if prec == 64 {
			r.dataPrecision = codec.Precision64
		} else {
			r.dataPrecision = codec.Precision32
		}
		r.dataLength = attrs.GetInt32("length", 0)
	}
	return nil
}

// onCvParam routes a handful of controlled-vocabulary accessions to
// Record fields. mzData pushes most metadata through <cvParam
// accession="..." value="..."/> rather than dedicated attributes, so
// this acts as the dispatch table spec.md §4.5 describes.
func (r *Reader) onCvParam(d *saxreader.Driver, attrs saxreader.Attrs) {
	acc := attrs.GetString("accession", "")
	name := attrs.GetString("name", "")
	value := attrs.GetString("value", "")
	stack := d.ParentStack()
	parent := ""
	if len(stack) > 0 {
		parent = stack[len(stack)-1]
	}

	switch {
	case parent == "processingMethod" && name == "Deisotoping":
		r.fileDeisotoped = value == "1" || strings.EqualFold(value, "true")
	case parent == "processingMethod" && name == "ChargeDeconvolution":
		r.fileChargeDeconvoluted = value == "1" || strings.EqualFold(value, "true")
	case parent == "processingMethod" && name == "PeakProcessing":
		r.filePeaksCentroided = strings.Contains(strings.ToLower(value), "centroid")
	case acc == "PSI:1000036" || name == "ScanMode":
		r.cur.ScanType = value
	case acc == "PSI:1000037" || name == "Polarity":
		switch strings.ToLower(value) {
		case "positive", "+":
			r.cur.Polarity = spectrum.Positive
		case "negative", "-":
			r.cur.Polarity = spectrum.Negative
		}
	case acc == "PSI:1000038" || name == "TimeInMinutes":
		r.cur.RetentionTimeMin = parseFloat64(value)
	case acc == "PSI:1000039" || name == "TimeInSeconds":
		r.cur.RetentionTimeMin = parseFloat64(value) / 60.0
	case name == "MassToChargeRatio" && parent == "ionSelection":
		r.cur.ParentIonMz = parseFloat64(value)
	case name == "ChargeState" && parent == "ionSelection":
		r.cur.ParentIonCharge = parseInt32(value)
	case name == "CollisionEnergy":
		r.cur.CollisionEnergy = parseFloat32(value)
	case name == "CollisionEnergyUnits":
		r.cur.CollisionEnergyUnits = value
	case name == "Method" && parent == "activation":
		r.cur.ActivationMethod = value
	default:
		// Unrecognized accession: not an error, mzData carries many
		// cvParams this reader has no Record slot for.
	}
}

// OnEndElement implements saxreader.Dialect.
func (r *Reader) OnEndElement(d *saxreader.Driver, name string) error {
	switch name {
	case "data":
		if err := r.finishData(); err != nil {
			return err
		}
	case "precursor":
		r.resolveParentIonIntensity()
	case "spectrum":
		if err := r.finalizeCurrent(d); err != nil {
			return err
		}
		r.InitCurrentSpectrum()
	}
	return nil
}

// OnContent implements saxreader.Dialect.
func (r *Reader) OnContent(d *saxreader.Driver, text []byte) error {
	if r.inData {
		r.dataText.Write(text)
	}
	return nil
}

func (r *Reader) finishData() error {
	r.inData = false
	if r.opts.SkipBinaryData {
		return nil
	}
	text := strings.TrimSpace(r.dataText.String())
	if text == "" {
		if r.dataIsMz {
			r.cur.Mz = nil
		} else {
			r.cur.Intensity = nil
		}
		return nil
	}
	values, err := codec.Decode(text, false, r.dataEndian, r.dataPrecision)
	if err != nil {
		return msxmlerr.Wrap(msxmlerr.Codec, "saxmzdata: decode binary array", err)
	}
	if r.dataLength > 0 && int(r.dataLength) != len(values) {
		r.warn("saxmzdata: declared array length mismatch, adopting decoded length")
	}
	if r.dataIsMz {
		mz := make([]float64, len(values))
		copy(mz, values)
		r.cur.Mz = mz
	} else {
		inten := make([]float32, len(values))
		for i, v := range values {
			inten[i] = float32(v)
		}
		r.cur.Intensity = inten
	}
	return nil
}

// resolveParentIonIntensity looks up the precursor's intensity by
// scanning backward through the most recent MS1 spectra for one whose
// scan number matches PrecursorScanNumber (spec.md §4.5, §9 Open
// Question): mzData's <ionSelection> carries the precursor's m/z and
// charge but not its intensity, unlike mzXML's inline
// precursorIntensity attribute.
func (r *Reader) resolveParentIonIntensity() {
	if r.cur.PrecursorScanNumber == 0 || r.cur.ParentIonMz == 0 {
		return
	}
	for i := len(r.recentMS1) - 1; i >= 0; i-- {
		ms1 := r.recentMS1[i]
		if ms1.ScanNumber != r.cur.PrecursorScanNumber {
			continue
		}
		for j, mz := range ms1.Mz {
			if approxEqual(mz, r.cur.ParentIonMz) {
				r.cur.ParentIonIntensity = ms1.Intensity[j]
				return
			}
		}
		return
	}
}

func approxEqual(a, b float64) bool {
	const eps = 1e-6
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps*(1+absF(a))
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (r *Reader) finalizeCurrent(d *saxreader.Driver) error {
	if err := r.cur.Validate(); err != nil {
		return msxmlerr.Wrap(msxmlerr.Parse, "saxmzdata: validate spectrum", err)
	}
	if r.cur.MSLevel <= 1 {
		r.recentMS1 = append(r.recentMS1, r.cur)
		if len(r.recentMS1) > maxParentIonLookback {
			r.recentMS1 = r.recentMS1[len(r.recentMS1)-maxParentIonLookback:]
		}
	}
	// The previous finalized record was handed to the caller on the prior
	// ReadNextSpectrum call, which has had its full round-trip to consume
	// or copy it; but an MS1 record may still be referenced from
	// recentMS1 for parent-ion intensity lookups, so it must stay out of
	// the pool until it ages out of that lookback window.
	if r.finalized != nil && !r.inRecentMS1(r.finalized) {
		spectrum.Put(r.finalized)
	}
	r.finalized = r.cur
	if d != nil {
		d.MarkSpectrumFound()
	}
	return nil
}

func (r *Reader) inRecentMS1(rec *spectrum.Record) bool {
	for _, ms1 := range r.recentMS1 {
		if ms1 == rec {
			return true
		}
	}
	return false
}

// FinalizeAtEOF implements saxreader.Dialect. mzData's indexed subtree
// range already ends at the closing </spectrum> tag, so this is normally
// a no-op; it exists as a safety net for truncated or malformed
// fragments fed directly via SetReaderForSpectrum.
func (r *Reader) FinalizeAtEOF() (bool, error) {
	if r.cur == nil || !isNonEmpty(r.cur) {
		return false, nil
	}
	if err := r.finalizeCurrent(nil); err != nil {
		return false, err
	}
	r.InitCurrentSpectrum()
	return true, nil
}

func isNonEmpty(r *spectrum.Record) bool {
	return r.ScanNumber != 0 || r.MSLevel != 0 || len(r.Mz) != 0 || r.Status != spectrum.Initialized
}

func parseInt32(s string) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}

func parseFloat64(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseFloat32(s string) float32 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0
	}
	return float32(f)
}
