package access

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/Schaudge/msxml/bintext"
	"github.com/Schaudge/msxml/msxmlerr"
)

// Entry is one indexed spectrum: its scan/spectrum-id pair plus the
// inclusive byte range of its XML subtree (spec.md §3 "Indexed
// spectrum entry").
type Entry struct {
	ScanNumber int32
	SpectrumID int32 // mzData only; zero for mzXML
	Start      int64
	End        int64
}

// index holds the ordered entry list plus the two auxiliary "first
// occurrence wins" lookup maps spec.md §3 describes.
type index struct {
	entries    []Entry
	byScan     map[int32]int
	bySpectrum map[int32]int
	headerScanCount int32
}

func newIndex() *index {
	return &index{
		byScan:     make(map[int32]int),
		bySpectrum: make(map[int32]int),
	}
}

func (ix *index) add(e Entry) {
	idx := len(ix.entries)
	ix.entries = append(ix.entries, e)
	if _, ok := ix.byScan[e.ScanNumber]; !ok {
		ix.byScan[e.ScanNumber] = idx
	}
	if _, ok := ix.bySpectrum[e.SpectrumID]; !ok {
		ix.bySpectrum[e.SpectrumID] = idx
	}
}

// buildForwardIndex implements the forward-scan state machine of
// spec.md §4.6: locate SPECTRUM_START_RE, capture the id/num
// attribute (possibly appearing on a later line than the opening tag),
// then locate SPECTRUM_END_RE and close the entry.
//
// abort is polled between lines; when it reports true the scan stops
// at the next line boundary and returns the partial index, matching
// spec.md §5's cancellation contract (any emitted entry remains
// complete and valid).
func buildForwardIndex(r *bintext.Reader, dialect Dialect, re dialectRegexes, progress func(percent float32), abort func() bool) (*index, error) {
	ix := newIndex()
	r.MoveToBeginning()

	var headerBuf strings.Builder
	sawStart := false

	var (
		inEntry          bool
		entryStart       int64
		startOffsetInLine int
		scanNum          int32
		haveScanNum      bool
		tailBuf          strings.Builder
	)

	fileLen := r.FileLength()
	linesSinceProgress := 0

	for {
		if abort != nil && abort() {
			return ix, msxmlerr.New(msxmlerr.Aborted, "access: forward scan aborted")
		}
		ok, err := r.ReadLine(bintext.Forward)
		if err != nil {
			return ix, err
		}
		if !ok {
			break
		}
		line := r.CurrentText()

		if !inEntry {
			if loc := re.start.FindStringIndex(line); loc != nil {
				inEntry = true
				// the entry starts at the start tag itself, not at the
				// beginning of the line it sits on
				entryStart = matchEndOffset(r, loc[0]) + 1
				startOffsetInLine = loc[0]
				haveScanNum = false
				scanNum = 0
				tailBuf.Reset()
				tailBuf.WriteString(line[loc[0]:])
				if m := re.idAttr.FindStringSubmatch(tailBuf.String()); m != nil {
					scanNum = parseInt32(m[1])
					haveScanNum = true
				}
				sawStart = true
			} else if !sawStart {
				headerBuf.WriteString(line)
				headerBuf.WriteByte('\n')
				if m := re.count.FindStringSubmatch(headerBuf.String()); m != nil {
					ix.headerScanCount = parseInt32(m[1])
				}
			}
			// Whether or not this line opened an entry, check whether the
			// same line also closes it (single-line <spectrum .../> is not
			// valid per the grammar, but a tiny entry can still close on
			// the same physical line as its end tag in degenerate inputs).
			if inEntry {
				if !haveScanNum {
					tailBuf.WriteString("\n")
				}
				if loc := re.end.FindStringIndex(tailBuf.String()); loc != nil {
					entryEnd := matchEndOffset(r, startOffsetInLine+loc[1])
					ix.add(makeEntry(dialect, scanNum, entryStart, entryEnd))
					inEntry = false
				}
			}
		} else {
			prevLen := tailBuf.Len()
			tailBuf.WriteString(line)
			tailBuf.WriteString("\n")
			if !haveScanNum {
				if m := re.idAttr.FindStringSubmatch(tailBuf.String()); m != nil {
					scanNum = parseInt32(m[1])
					haveScanNum = true
				}
			}
			if loc := re.end.FindStringIndex(tailBuf.String()); loc != nil {
				entryEnd := matchEndOffset(r, loc[1]-prevLen)
				ix.add(makeEntry(dialect, scanNum, entryStart, entryEnd))
				inEntry = false
			}
		}

		linesSinceProgress++
		if progress != nil && linesSinceProgress >= 256 {
			linesSinceProgress = 0
			if fileLen > 0 {
				progress(float32(r.CurrentEnd()) / float32(fileLen) * 100)
			}
		}
	}
	if progress != nil {
		progress(100)
	}
	return ix, nil
}

// matchEndOffset converts byteIdx, an exclusive byte offset into the
// current line's decoded text marking the end of a regex match, into
// the absolute file offset of the match's last byte. r.CurrentText()
// is always UTF-8. For single-byte streams (ASCII/UTF-8) its byte
// offsets are the file's own; for UTF-16 streams the text before
// byteIdx is re-counted in UTF-16 code units, each r.CharSize() bytes
// on disk.
func matchEndOffset(r *bintext.Reader, byteIdx int) int64 {
	text := r.CurrentText()
	if byteIdx > len(text) {
		byteIdx = len(text)
	}
	if r.CharSize() == 1 {
		return r.CurrentStart() + int64(byteIdx) - 1
	}
	units := len(utf16.Encode([]rune(text[:byteIdx])))
	return r.CurrentStart() + int64(units*r.CharSize()) - 1
}

// makeEntry places the forward-scanner's matched id into the field(s)
// appropriate for dialect: mzXML's id is a scan number; mzData's is a
// spectrum id, which this accessor also surfaces as the scan number so
// GetScanNumberList stays meaningful for both dialects.
func makeEntry(dialect Dialect, id int32, start, end int64) Entry {
	if dialect == MzData {
		return Entry{ScanNumber: id, SpectrumID: id, Start: start, End: end}
	}
	return Entry{ScanNumber: id, Start: start, End: end}
}

func parseInt32(s string) int32 {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0
	}
	return int32(n)
}
