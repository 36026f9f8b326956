// Command msxmlcat is the CLI driver for package msxml (SPEC_FULL.md
// §4.9): it dispatches on a file's extension and either streams every
// spectrum to stdout or, in random-access mode, looks one up by scan
// number or spectrum id.
package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cobra"
	"v.io/x/lib/vlog"

	"github.com/Schaudge/msxml/access"
	"github.com/Schaudge/msxml/msxml"
	"github.com/Schaudge/msxml/spectrum"
)

var (
	flagRandomAccess         bool
	flagSkipBinary           bool
	flagIgnoreEmbeddedIndex  bool
	flagUnknownVersion       bool
	flagScanNumber           int32
	flagSpectrumID           int32
	flagProgress             bool
	flagLogEvents            bool
	flagDisableTimeFixup     bool
)

func main() {
	root := &cobra.Command{
		Use:   "msxmlcat <file>",
		Short: "Print mass-spectrometry spectra from an mzXML, mzData, MGF or DTA file",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().BoolVar(&flagRandomAccess, "random-access", false, "open the file as a RandomAccessAccessor instead of a streaming reader")
	root.Flags().BoolVar(&flagSkipBinary, "skip-binary", false, "skip decoding peak arrays (header-only fetch)")
	root.Flags().BoolVar(&flagIgnoreEmbeddedIndex, "ignore-embedded-index", false, "always build the index by forward scan, never from the mzXML trailer")
	root.Flags().BoolVar(&flagUnknownVersion, "allow-unknown-version", false, "continue parsing mzXML files with an unrecognized schema version")
	root.Flags().Int32Var(&flagScanNumber, "scan", 0, "look up a single spectrum by scan number (implies --random-access)")
	root.Flags().Int32Var(&flagSpectrumID, "spectrum-id", 0, "look up a single mzData spectrum by id (implies --random-access)")
	root.Flags().BoolVar(&flagProgress, "progress", false, "render a progress bar on stderr while indexing")
	root.Flags().BoolVar(&flagLogEvents, "log-events", false, "log access progress/error events via vlog instead of rendering a progress bar")
	root.Flags().BoolVar(&flagDisableTimeFixup, "disable-time-fixup", false, "disable the legacy mzXML seconds/minutes mislabel heuristic")

	if err := root.Execute(); err != nil {
		vlog.Errorf("msxmlcat: %v", err)
		os.Exit(1)
	}
}

// progressSink adapts access.EventSink to a schollz/progressbar/v2
// bar, grounded on the progress-rendering loop in
// cosnicolaou-pbzip2/cmd/pbzip2/main.go's progressBar function.
type progressSink struct {
	bar  *progressbar.ProgressBar
	seen int
}

func newProgressSink() *progressSink {
	bar := progressbar.NewOptions(100, progressbar.OptionSetWriter(os.Stderr))
	return &progressSink{bar: bar}
}

func (s *progressSink) ProgressReset() {
	s.bar.Reset()
	s.seen = 0
}

// ProgressChanged advances the bar by the delta since the last report:
// progressbar/v2 exposes Add, not an absolute Set, matching the
// incremental-update style of cosnicolaou-pbzip2/cmd/pbzip2/main.go's
// progressBar function.
func (s *progressSink) ProgressChanged(description string, percent float32) {
	target := int(percent)
	if delta := target - s.seen; delta > 0 {
		s.bar.Add(delta)
		s.seen = target
	}
}

func (s *progressSink) ProgressComplete() {
	s.bar.Finish()
	fmt.Fprintln(os.Stderr)
}
func (s *progressSink) Error(text string, cause error) {
	vlog.Errorf("msxmlcat: %s: %v", text, cause)
}

func run(cmd *cobra.Command, args []string) error {
	path := args[0]
	randomAccess := flagRandomAccess || flagScanNumber != 0 || flagSpectrumID != 0

	opts := msxml.Options{
		RandomAccess:                 randomAccess,
		SkipBinaryData:               flagSkipBinary,
		IgnoreEmbeddedIndex:          flagIgnoreEmbeddedIndex,
		ParseFilesWithUnknownVersion: flagUnknownVersion,
		LogEvents:                    flagLogEvents,
		DisableTimeFixup:             flagDisableTimeFixup,
	}
	if flagProgress {
		opts.Sink = newProgressSink()
	}

	stream, err := msxml.Open(path, opts)
	if err != nil {
		return err
	}
	defer stream.Close()

	if flagScanNumber != 0 || flagSpectrumID != 0 {
		return printOne(stream, flagScanNumber, flagSpectrumID)
	}
	return printAll(stream)
}

func printOne(stream msxml.SpectrumStream, scan, spectrumID int32) error {
	a, ok := stream.(*access.Accessor)
	if !ok {
		return fmt.Errorf("msxmlcat: --scan/--spectrum-id requires an indexed mzXML/mzData file")
	}
	if err := a.ReadAndCacheEntireFile(); err != nil {
		return err
	}
	if scan != 0 {
		r, err := a.GetSpectrumByScanNumber(scan)
		if err != nil {
			return err
		}
		printRecord(r)
		return nil
	}
	r, err := a.GetSpectrumBySpectrumID(spectrumID)
	if err != nil {
		return err
	}
	printRecord(r)
	return nil
}

func printAll(stream msxml.SpectrumStream) error {
	for stream.Next() {
		printRecord(stream.Spectrum())
	}
	return stream.Err()
}

func printRecord(r *spectrum.Record) {
	fmt.Printf("scan=%d msLevel=%d rt=%.4fmin peaks=%d basePeakMz=%.4f tic=%.1f\n",
		r.ScanNumber, r.MSLevel, r.RetentionTimeMin, len(r.Mz), r.BasePeakMz, r.TotalIonCurrent)
}
