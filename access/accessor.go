package access

import (
	"io"
	"strings"
	"sync/atomic"

	"v.io/x/lib/vlog"

	"github.com/Schaudge/msxml/bintext"
	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/saxmzdata"
	"github.com/Schaudge/msxml/saxmzxml"
	"github.com/Schaudge/msxml/saxreader"
	"github.com/Schaudge/msxml/spectrum"
)

// EventSink receives the advisory progress/error events of spec.md §6.
// A nil sink is replaced with a no-op one; nothing in this package logs
// on its own (spec.md §9 "Global state and progress events").
type EventSink interface {
	ProgressReset()
	ProgressChanged(description string, percent float32)
	ProgressComplete()
	Error(text string, cause error)
}

type noopSink struct{}

func (noopSink) ProgressReset()                            {}
func (noopSink) ProgressChanged(description string, p float32) {}
func (noopSink) ProgressComplete()                          {}
func (noopSink) Error(text string, cause error)             {}

// vlogSink is the default sink installed when Options.LogEvents is set
// and the caller supplied no Sink of its own, grounded on sam/pool.go's
// vlog.Errorf usage.
type vlogSink struct{}

func (vlogSink) ProgressReset() { vlog.Infof("access: progress reset") }
func (vlogSink) ProgressChanged(description string, percent float32) {
	vlog.Infof("access: %s: %.1f%%", description, percent)
}
func (vlogSink) ProgressComplete()              { vlog.Infof("access: progress complete") }
func (vlogSink) Error(text string, cause error) { vlog.Errorf("access: %s: %v", text, cause) }

// Options configures an Accessor.
type Options struct {
	// IgnoreEmbeddedIndex skips the mzXML trailer-index lookup and
	// always builds the index by forward scan.
	IgnoreEmbeddedIndex bool
	// SkipBinaryData is passed through to the dialect SAX reader for
	// header-only fetches (spec.md §4.6 get_spectrum_header_info_by_*).
	SkipBinaryData bool
	// ParseFilesWithUnknownVersion allows mzXML files with a version
	// string outside mzXML_2/mzXML_3 to parse anyway.
	ParseFilesWithUnknownVersion bool
	// DisableTimeFixup turns off the mzXML legacy seconds/minutes
	// mislabel heuristic (spec.md §9 open question).
	DisableTimeFixup bool
	// LogEvents installs a vlog-backed EventSink when Sink is nil. It
	// has no effect if Sink is set explicitly.
	LogEvents bool
	Sink      EventSink
}

// Accessor is RandomAccessAccessor (spec.md §4.6): it owns one open
// byte stream, one encoding descriptor, one index table, and reuses a
// dialect SAX reader across per-spectrum fetches.
type Accessor struct {
	dialect Dialect
	opts    Options

	reader *bintext.Reader
	ix     *index
	state  State

	inputPath string

	// embedded-index bookkeeping
	usedEmbeddedIndex bool

	// cache-entire-file mode
	cachedRecords []*spectrum.Record
	cachedByScan  map[int32]int

	// cursor for the Next/Spectrum/Err SpectrumStream adapter
	cursor    int
	cursorRec *spectrum.Record
	cursorErr error

	abortFlag int32
}

// Open establishes the BinaryTextReader, detects encoding, and attempts
// to load an embedded index (mzXML only, unless disabled); it does not
// build a forward-scan index by itself — call ReadAndCacheEntireFile
// for that, per spec.md §4.6.
func Open(path string, dialect Dialect, opts Options) (*Accessor, error) {
	if opts.Sink == nil {
		if opts.LogEvents {
			opts.Sink = vlogSink{}
		} else {
			opts.Sink = noopSink{}
		}
	}
	r, err := bintext.Open(path)
	if err != nil {
		opts.Sink.Error("access: open failed", err)
		return nil, err
	}
	a := &Accessor{
		dialect:   dialect,
		opts:      opts,
		reader:    r,
		inputPath: path,
		state:     Opened,
	}

	if dialect == MzXML && !opts.IgnoreEmbeddedIndex {
		ix, err := loadEmbeddedIndex(r)
		if err != nil {
			opts.Sink.Error("access: embedded index load error", err)
		}
		if ix != nil {
			a.ix = ix
			a.usedEmbeddedIndex = true
			a.state = Indexed
		}
	}
	return a, nil
}

// Close releases the underlying byte stream.
func (a *Accessor) Close() error {
	a.state = Closed
	if a.reader != nil {
		return a.reader.Close()
	}
	return nil
}

// State returns the accessor's current lifecycle state.
func (a *Accessor) State() State { return a.state }

// InputPath returns the path passed to Open.
func (a *Accessor) InputPath() string { return a.inputPath }

// UsedEmbeddedIndex reports whether the current index came from the
// mzXML trailer rather than a forward scan.
func (a *Accessor) UsedEmbeddedIndex() bool { return a.usedEmbeddedIndex }

// RequestAbort sets the cooperative cancellation flag that
// ReadAndCacheEntireFile polls between lines and CacheEntireFile polls
// between spectra (spec.md §5).
func (a *Accessor) RequestAbort() { atomic.StoreInt32(&a.abortFlag, 1) }

func (a *Accessor) abortRequested() bool { return atomic.LoadInt32(&a.abortFlag) != 0 }

// ReadAndCacheEntireFile builds the index by forward scan if one is
// not already loaded (spec.md §4.6). Despite the name (kept for
// fidelity to the reference API), this does not itself decode every
// spectrum into memory — see CacheEntireFile for that.
func (a *Accessor) ReadAndCacheEntireFile() error {
	if a.state == Indexed || a.state == Cached {
		return nil
	}
	a.opts.Sink.ProgressReset()
	re := regexesFor(a.dialect)
	ix, err := buildForwardIndex(a.reader, a.dialect, re, func(pct float32) {
		a.opts.Sink.ProgressChanged("indexing "+a.inputPath, pct)
	}, a.abortRequested)
	if ix != nil {
		a.ix = ix
		a.state = Indexed
	}
	if err != nil {
		a.opts.Sink.Error("access: forward scan error", err)
		return err
	}
	a.opts.Sink.ProgressComplete()
	return nil
}

// CacheEntireFile switches the accessor into the alternate
// read-caching mode of spec.md §4.6: it delegates to the streaming SAX
// reader and stores a copy of every SpectrumRecord in memory.
// GetSpectrumByIndex, GetSpectrumHeaderByIndex, GetSpectrumByScanNumber
// and Next are then served from those copies. The list, source-XML,
// spectrum-id and header-by-scan-number lookups read the byte-offset
// index instead, and return a NotReady error unless that index was
// already loaded or built before caching.
func (a *Accessor) CacheEntireFile() error {
	driver, err := a.newDriverOverFile()
	if err != nil {
		return err
	}
	defer driver.Close()

	a.cachedRecords = nil
	a.cachedByScan = make(map[int32]int)
	for {
		if a.abortRequested() {
			return msxmlerr.New(msxmlerr.Aborted, "access: cache-entire-file aborted")
		}
		rec, err := driver.ReadNextSpectrum()
		if err == io.EOF {
			break
		}
		if err != nil {
			a.opts.Sink.Error("access: cache-entire-file parse error", err)
			return err
		}
		idx := len(a.cachedRecords)
		a.cachedRecords = append(a.cachedRecords, rec.Clone())
		if _, ok := a.cachedByScan[rec.ScanNumber]; !ok {
			a.cachedByScan[rec.ScanNumber] = idx
		}
	}
	a.state = Cached
	return nil
}

func (a *Accessor) newDriverOverFile() (*saxreader.Driver, error) {
	var driver *saxreader.Driver
	if a.dialect == MzXML {
		r := saxmzxml.NewReader(saxmzxml.Options{SkipBinaryData: a.opts.SkipBinaryData, ParseFilesWithUnknownVersion: a.opts.ParseFilesWithUnknownVersion, DisableTimeFixup: a.opts.DisableTimeFixup})
		driver = r.Driver()
	} else {
		r := saxmzdata.NewReader(saxmzdata.Options{SkipBinaryData: a.opts.SkipBinaryData})
		driver = r.Driver()
	}
	if err := driver.OpenFile(a.inputPath); err != nil {
		return nil, err
	}
	return driver, nil
}

// EntryCount returns the number of spectra in the current index.
func (a *Accessor) EntryCount() int {
	if a.ix == nil {
		return 0
	}
	return len(a.ix.entries)
}

// GetScanNumberList returns scan numbers in index order (spec.md §4.6).
func (a *Accessor) GetScanNumberList() ([]int32, error) {
	if err := a.requireIndexed(); err != nil {
		return nil, err
	}
	out := make([]int32, len(a.ix.entries))
	for i, e := range a.ix.entries {
		out[i] = e.ScanNumber
	}
	return out, nil
}

// GetSpectrumIDList returns spectrum ids in index order (mzData only).
func (a *Accessor) GetSpectrumIDList() ([]int32, error) {
	if err := a.requireIndexed(); err != nil {
		return nil, err
	}
	out := make([]int32, len(a.ix.entries))
	for i, e := range a.ix.entries {
		out[i] = e.SpectrumID
	}
	return out, nil
}

func (a *Accessor) requireIndexed() error {
	if (a.state != Indexed && a.state != Cached) || a.ix == nil {
		return msxmlerr.New(msxmlerr.NotReady, "access: index not built; call ReadAndCacheEntireFile first")
	}
	return nil
}

// GetSourceXMLByIndex returns the raw subtree text for entry i,
// reinterpreted using the stream's detected encoding (spec.md §4.6).
func (a *Accessor) GetSourceXMLByIndex(i int) (string, error) {
	if err := a.requireIndexed(); err != nil {
		return "", err
	}
	if i < 0 || i >= len(a.ix.entries) {
		return "", msxmlerr.New(msxmlerr.NotFound, "access: index out of range")
	}
	e := a.ix.entries[i]
	raw, err := a.reader.ReadAllBytes(e.Start, e.End)
	if err != nil {
		return "", err
	}
	return a.reader.DecodeString(raw), nil
}

// GetSourceXMLByScanNumber looks up scan s and returns its raw subtree
// text.
func (a *Accessor) GetSourceXMLByScanNumber(s int32) (string, error) {
	if err := a.requireIndexed(); err != nil {
		return "", err
	}
	i, ok := a.ix.byScan[s]
	if !ok {
		return "", msxmlerr.New(msxmlerr.NotFound, "access: scan number not found")
	}
	return a.GetSourceXMLByIndex(i)
}

// GetSpectrumByIndex seeks to entry i and parses its subtree into a
// SpectrumRecord.
func (a *Accessor) GetSpectrumByIndex(i int) (*spectrum.Record, error) {
	return a.fetch(i, a.opts.SkipBinaryData)
}

// GetSpectrumHeaderByIndex is GetSpectrumByIndex with binary peak data
// skipped, per spec.md §4.6 get_spectrum_header_info_by_*.
func (a *Accessor) GetSpectrumHeaderByIndex(i int) (*spectrum.Record, error) {
	return a.fetch(i, true)
}

// GetSpectrumByScanNumber looks up scan s and parses its subtree.
func (a *Accessor) GetSpectrumByScanNumber(s int32) (*spectrum.Record, error) {
	if a.state == Cached {
		i, ok := a.cachedByScan[s]
		if !ok {
			return nil, msxmlerr.New(msxmlerr.NotFound, "access: scan number not found")
		}
		return a.cachedRecords[i], nil
	}
	if err := a.requireIndexed(); err != nil {
		return nil, err
	}
	i, ok := a.ix.byScan[s]
	if !ok {
		return nil, msxmlerr.New(msxmlerr.NotFound, "access: scan number not found")
	}
	return a.fetch(i, a.opts.SkipBinaryData)
}

// GetSpectrumHeaderByScanNumber is GetSpectrumByScanNumber with binary
// peak data skipped.
func (a *Accessor) GetSpectrumHeaderByScanNumber(s int32) (*spectrum.Record, error) {
	if err := a.requireIndexed(); err != nil {
		return nil, err
	}
	i, ok := a.ix.byScan[s]
	if !ok {
		return nil, msxmlerr.New(msxmlerr.NotFound, "access: scan number not found")
	}
	return a.fetch(i, true)
}

// GetSpectrumBySpectrumID looks up an mzData spectrum id.
func (a *Accessor) GetSpectrumBySpectrumID(id int32) (*spectrum.Record, error) {
	if err := a.requireIndexed(); err != nil {
		return nil, err
	}
	i, ok := a.ix.bySpectrum[id]
	if !ok {
		return nil, msxmlerr.New(msxmlerr.NotFound, "access: spectrum id not found")
	}
	return a.fetch(i, a.opts.SkipBinaryData)
}

// fetch implements spec.md §4.6 "Per-spectrum fetch": seek to the
// entry's start, hand a reader over just its byte range to the
// dialect's SAX driver via SetReaderForSpectrum, and drive
// ReadNextSpectrum once.
func (a *Accessor) fetch(i int, skipBinary bool) (*spectrum.Record, error) {
	if a.state == Cached {
		if i < 0 || i >= len(a.cachedRecords) {
			return nil, msxmlerr.New(msxmlerr.NotFound, "access: index out of range")
		}
		if skipBinary {
			return a.cachedRecords[i].Header(), nil
		}
		return a.cachedRecords[i], nil
	}
	if err := a.requireIndexed(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(a.ix.entries) {
		return nil, msxmlerr.New(msxmlerr.NotFound, "access: index out of range")
	}
	e := a.ix.entries[i]
	raw, err := a.reader.ReadAllBytes(e.Start, e.End)
	if err != nil {
		return nil, err
	}

	var driver *saxreader.Driver
	if a.dialect == MzXML {
		r := saxmzxml.NewReader(saxmzxml.Options{SkipBinaryData: skipBinary, ParseFilesWithUnknownVersion: a.opts.ParseFilesWithUnknownVersion, DisableTimeFixup: a.opts.DisableTimeFixup})
		driver = r.Driver()
	} else {
		r := saxmzdata.NewReader(saxmzdata.Options{SkipBinaryData: skipBinary})
		driver = r.Driver()
	}
	driver.SetReaderForSpectrum(strings.NewReader(a.reader.DecodeString(raw)))
	rec, err := driver.ReadNextSpectrum()
	if err != nil {
		return nil, msxmlerr.Wrap(msxmlerr.Parse, "access: per-spectrum parse failed", err)
	}
	if a.opts.Sink != nil {
		a.opts.Sink.ProgressChanged(a.inputPath, float32(e.End)/float32(a.reader.FileLength())*100)
	}
	return rec, nil
}

// Next advances the cursor-based adapter that satisfies the
// msxml.SpectrumStream interface over an indexed accessor (spec.md
// §4.6 read_next_spectrum).
func (a *Accessor) Next() bool {
	if a.cursorErr != nil {
		return false
	}
	count := a.EntryCount()
	if a.state == Cached {
		count = len(a.cachedRecords)
	}
	if a.cursor >= count {
		return false
	}
	rec, err := a.fetch(a.cursor, a.opts.SkipBinaryData)
	a.cursor++
	if err != nil {
		a.cursorErr = err
		return false
	}
	a.cursorRec = rec
	return true
}

// Spectrum returns the record most recently produced by Next. It is
// only valid until the next call to Next; Clone it to keep it longer.
func (a *Accessor) Spectrum() *spectrum.Record { return a.cursorRec }

// Err returns the first error Next encountered, if any.
func (a *Accessor) Err() error { return a.cursorErr }
