// Package spectrum defines the in-memory representation of a single mass
// spectrum (spec.md §3): scalar acquisition metadata plus two parallel
// numeric peak vectors.
package spectrum

import (
	"fmt"
	"sync"
)

// Status records where a Record sits in its construction lifecycle.
type Status int

const (
	// Initialized is the state of a freshly allocated Record before the
	// SAX parser has populated any field.
	Initialized Status = iota
	// DataDefined sits between Initialized and Validated in the
	// lifecycle. None of this module's readers set it: they move a
	// Record from Initialized straight to Validated.
	DataDefined
	// Validated is set once Validate has reconciled base peak/TIC and
	// checked the peak vector invariants.
	Validated
)

// Polarity is the detected ion polarity of a scan.
type Polarity int

const (
	PolarityUnknown Polarity = iota
	Positive
	Negative
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "+"
	case Negative:
		return "-"
	default:
		return ""
	}
}

// Record is one mass spectrum: scalar metadata plus parallel m/z and
// intensity vectors. See spec.md §3 for the full invariant list.
type Record struct {
	Status Status

	ScanNumber         int32
	EndScanNumber      int32 // 0 if not present
	HasEndScanNumber   bool
	ScansCombined      int32
	SpectrumID         int32 // mzData only
	MSLevel            int32
	Polarity           Polarity
	RetentionTimeMin   float64
	ObservedMzRangeLo  float64
	ObservedMzRangeHi  float64
	InstrumentMzRangeLo float64
	InstrumentMzRangeHi float64
	BasePeakMz         float64
	BasePeakIntensity  float32
	TotalIonCurrent    float64
	Centroided         bool
	Deisotoped         bool
	ChargeDeconvoluted bool

	ParentIonMz        float64
	ParentIonIntensity float32
	ParentIonCharge    int32
	PrecursorScanNumber int32
	IsolationWindowWidth float64
	ActivationMethod   string
	CollisionEnergy    float32
	CollisionEnergyUnits string
	FilterLine         string
	ScanType           string

	Mz        []float64
	Intensity []float32
}

// New allocates a zero-value Record in the Initialized state.
func New() *Record {
	return &Record{Status: Initialized}
}

// Reset restores r to a fresh Initialized state, reusing its backing
// peak-vector storage where possible. It is used by the SAX readers to
// recycle a Record between spectra without reallocating its slices on
// every call (grounded on sam.GetFromFreePool's field-clearing idiom).
func (r *Record) Reset() {
	mz := r.Mz[:0]
	inten := r.Intensity[:0]
	*r = Record{Status: Initialized, Mz: mz, Intensity: inten}
}

// Clone returns a deep copy of r; the clone shares no backing arrays
// with the receiver.
func (r *Record) Clone() *Record {
	c := *r
	if r.Mz != nil {
		c.Mz = append([]float64(nil), r.Mz...)
	}
	if r.Intensity != nil {
		c.Intensity = append([]float32(nil), r.Intensity...)
	}
	return &c
}

// Validate reconciles the base-peak and total-ion-current aggregates
// against the peak vectors and checks the invariants of spec.md §3: m/z
// is nondecreasing and the two vectors have equal length. It mutates r
// in place and sets r.Status to Validated.
func (r *Record) Validate() error {
	if len(r.Mz) != len(r.Intensity) {
		return fmt.Errorf("spectrum: mz/intensity length mismatch: %d vs %d", len(r.Mz), len(r.Intensity))
	}
	for i := 1; i < len(r.Mz); i++ {
		if r.Mz[i] < r.Mz[i-1] {
			return fmt.Errorf("spectrum: mz values not nondecreasing at index %d", i)
		}
	}
	if len(r.Mz) > 0 {
		var tic float64
		bestMz := r.Mz[0]
		bestIntensity := r.Intensity[0]
		for i, inten := range r.Intensity {
			tic += float64(inten)
			if inten > bestIntensity {
				bestIntensity = inten
				bestMz = r.Mz[i]
			}
		}
		r.BasePeakMz = bestMz
		r.BasePeakIntensity = bestIntensity
		r.TotalIonCurrent = tic
	}
	r.Status = Validated
	return nil
}

// Equal reports whether r and other carry the same scalar fields and
// peak vectors, grounded on sam.Record.Equal's field-by-field
// comparison idiom.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.ScanNumber != other.ScanNumber ||
		r.EndScanNumber != other.EndScanNumber ||
		r.HasEndScanNumber != other.HasEndScanNumber ||
		r.ScansCombined != other.ScansCombined ||
		r.SpectrumID != other.SpectrumID ||
		r.MSLevel != other.MSLevel ||
		r.Polarity != other.Polarity ||
		r.RetentionTimeMin != other.RetentionTimeMin ||
		r.ObservedMzRangeLo != other.ObservedMzRangeLo ||
		r.ObservedMzRangeHi != other.ObservedMzRangeHi ||
		r.InstrumentMzRangeLo != other.InstrumentMzRangeLo ||
		r.InstrumentMzRangeHi != other.InstrumentMzRangeHi ||
		r.BasePeakMz != other.BasePeakMz ||
		r.BasePeakIntensity != other.BasePeakIntensity ||
		r.TotalIonCurrent != other.TotalIonCurrent ||
		r.Centroided != other.Centroided ||
		r.Deisotoped != other.Deisotoped ||
		r.ChargeDeconvoluted != other.ChargeDeconvoluted ||
		r.ParentIonMz != other.ParentIonMz ||
		r.ParentIonIntensity != other.ParentIonIntensity ||
		r.ParentIonCharge != other.ParentIonCharge ||
		r.PrecursorScanNumber != other.PrecursorScanNumber ||
		r.IsolationWindowWidth != other.IsolationWindowWidth ||
		r.ActivationMethod != other.ActivationMethod ||
		r.CollisionEnergy != other.CollisionEnergy ||
		r.CollisionEnergyUnits != other.CollisionEnergyUnits ||
		r.FilterLine != other.FilterLine ||
		r.ScanType != other.ScanType {
		return false
	}
	if len(r.Mz) != len(other.Mz) || len(r.Intensity) != len(other.Intensity) {
		return false
	}
	for i := range r.Mz {
		if r.Mz[i] != other.Mz[i] {
			return false
		}
	}
	for i := range r.Intensity {
		if r.Intensity[i] != other.Intensity[i] {
			return false
		}
	}
	return true
}

// Header returns a copy of r with the peak vectors cleared, matching
// the header-only fetch contract of spec.md §4.6 / invariant 6 in §8.
func (r *Record) Header() *Record {
	h := r.Clone()
	h.Mz = nil
	h.Intensity = nil
	return h
}

// pool recycles Record scratch allocations across many spectra in one
// file, mirroring bam/pool.go's bufPool.
var pool = sync.Pool{
	New: func() interface{} { return New() },
}

// Get returns a Record from the shared pool, reset to Initialized.
// Callers that want a Record they can safely hand to their own caller
// should use New or Clone instead: Put-returned Records must not be
// retained past the next Get from the same pool.
func Get() *Record {
	r := pool.Get().(*Record)
	r.Reset()
	return r
}

// Put returns r to the shared pool for reuse.
func Put(r *Record) {
	pool.Put(r)
}
