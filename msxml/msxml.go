// Package msxml is the file-type dispatch root (SPEC_FULL.md §4.9):
// Open picks a dialect by file extension and returns a uniform
// SpectrumStream, regardless of whether the underlying reader is one of
// the streaming XML SAX dialects, a RandomAccessAccessor cursor, or one
// of the DTA/MGF text readers.
package msxml

import (
	"io"
	"os"
	"strings"

	"github.com/Schaudge/msxml/access"
	"github.com/Schaudge/msxml/dta"
	"github.com/Schaudge/msxml/mgf"
	"github.com/Schaudge/msxml/msxmlerr"
	"github.com/Schaudge/msxml/saxmzdata"
	"github.com/Schaudge/msxml/saxmzxml"
	"github.com/Schaudge/msxml/spectrum"
)

// ErrUnknownExtension is returned by Open when path's extension matches
// none of the dispatch rules of spec.md §6 (the "null accessor" case).
var ErrUnknownExtension = msxmlerr.New(msxmlerr.NotFound, "msxml: unrecognized file extension")

// SpectrumStream is the common forward-iteration interface every
// dialect reader satisfies (spec.md §6, SPEC_FULL.md §4.9).
type SpectrumStream interface {
	Next() bool
	// Spectrum returns the record most recently produced by Next. It is
	// only valid until the next call to Next; Clone it to keep it longer.
	Spectrum() *spectrum.Record
	Err() error
	Close() error
}

// Options configures Open. RandomAccess selects RandomAccessAccessor
// over the plain streaming SAX reader for the two XML dialects, trading
// sequential-only iteration for indexed lookup via the accessor's
// richer surface (reachable by type-asserting the returned
// SpectrumStream to *access.Accessor).
type Options struct {
	RandomAccess                 bool
	SkipBinaryData               bool
	ParseFilesWithUnknownVersion bool
	IgnoreEmbeddedIndex          bool
	// DisableTimeFixup turns off the mzXML legacy seconds/minutes
	// mislabel heuristic; ignored for the mzData dialect.
	DisableTimeFixup bool
	// LogEvents installs a vlog-backed EventSink when Sink is nil and
	// RandomAccess is set; it is ignored on the streaming-only path,
	// which has no EventSink of its own to install one into.
	LogEvents bool
	Sink      access.EventSink
}

// streamDriver adapts a saxreader-backed Reader (saxmzxml.Reader or
// saxmzdata.Reader) to SpectrumStream for the non-random-access path.
type streamDriver struct {
	driver interface {
		ReadNextSpectrum() (*spectrum.Record, error)
		Close() error
	}
	cur *spectrum.Record
	err error
}

func (s *streamDriver) Next() bool {
	rec, err := s.driver.ReadNextSpectrum()
	if err != nil {
		s.cur = nil
		if err != io.EOF {
			s.err = err
		}
		return false
	}
	s.cur = rec
	return true
}

func (s *streamDriver) Spectrum() *spectrum.Record { return s.cur }
func (s *streamDriver) Err() error                  { return s.err }
func (s *streamDriver) Close() error                { return s.driver.Close() }

// Open dispatches on path's extension per spec.md §6: .mzdata/_mzdata.xml
// selects mzData, .mzxml/_mzxml.xml selects mzXML, .mgf selects the MGF
// text reader, _dta.txt selects the DTA text reader; anything else
// returns ErrUnknownExtension.
func Open(path string, opts Options) (SpectrumStream, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".mgf"):
		f, err := os.Open(path)
		if err != nil {
			return nil, msxmlerr.Wrap(msxmlerr.Io, "msxml: open "+path, err)
		}
		return mgf.NewReader(f), nil
	case strings.HasSuffix(lower, "_dta.txt"):
		f, err := os.Open(path)
		if err != nil {
			return nil, msxmlerr.Wrap(msxmlerr.Io, "msxml: open "+path, err)
		}
		return dta.NewReader(f), nil
	case strings.HasSuffix(lower, ".mzxml") || strings.HasSuffix(lower, "_mzxml.xml"):
		return openXML(path, access.MzXML, opts)
	case strings.HasSuffix(lower, ".mzdata") || strings.HasSuffix(lower, "_mzdata.xml"):
		return openXML(path, access.MzData, opts)
	default:
		return nil, ErrUnknownExtension
	}
}

func openXML(path string, dialect access.Dialect, opts Options) (SpectrumStream, error) {
	if opts.RandomAccess {
		return access.Open(path, dialect, access.Options{
			IgnoreEmbeddedIndex:          opts.IgnoreEmbeddedIndex,
			SkipBinaryData:               opts.SkipBinaryData,
			ParseFilesWithUnknownVersion: opts.ParseFilesWithUnknownVersion,
			DisableTimeFixup:             opts.DisableTimeFixup,
			LogEvents:                    opts.LogEvents,
			Sink:                         opts.Sink,
		})
	}

	var driver interface {
		ReadNextSpectrum() (*spectrum.Record, error)
		Close() error
	}
	if dialect == access.MzXML {
		r := saxmzxml.NewReader(saxmzxml.Options{
			SkipBinaryData:               opts.SkipBinaryData,
			ParseFilesWithUnknownVersion: opts.ParseFilesWithUnknownVersion,
			DisableTimeFixup:             opts.DisableTimeFixup,
		})
		if err := r.Driver().OpenFile(path); err != nil {
			return nil, err
		}
		driver = r.Driver()
	} else {
		r := saxmzdata.NewReader(saxmzdata.Options{SkipBinaryData: opts.SkipBinaryData})
		if err := r.Driver().OpenFile(path); err != nil {
			return nil, err
		}
		driver = r.Driver()
	}
	return &streamDriver{driver: driver}, nil
}
