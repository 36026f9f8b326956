package access

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Schaudge/msxml/bintext"
	"github.com/Schaudge/msxml/msxmlerr"
)

var (
	indexOffsetOpenRE = regexp.MustCompile(`<indexOffset>`)
	indexOffsetDigits = regexp.MustCompile(`\d+`)
	offsetElemRE      = regexp.MustCompile(`<offset\s+id="(-?\d+)"\s*>\s*(\d+)\s*</offset>`)
	indexNameScanRE   = regexp.MustCompile(`<index\s+name="scan"`)
)

// loadEmbeddedIndex implements spec.md §4.6's embedded-index loading
// for mzXML: locate the trailing <indexOffset>, follow it to the
// <index name="scan">...</index> block, and turn each <offset
// id="N">BYTE</offset> into an Entry. Returns (nil, nil) if no
// embedded index is present or it fails validation — the caller falls
// back to a forward scan in either case.
func loadEmbeddedIndex(r *bintext.Reader) (*index, error) {
	offset, found, err := findIndexOffset(r)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if err := r.MoveToByteOffset(offset); err != nil {
		return nil, nil
	}
	ok, err := r.ReadLine(bintext.Forward)
	if err != nil || !ok {
		return nil, nil
	}
	if !indexNameScanRE.MatchString(r.CurrentText()) && !strings.Contains(r.CurrentText(), "<index") {
		return nil, nil
	}

	// Read the remainder of the file (the <index>...</index> trailer is
	// small relative to the spectra it indexes) and pull out every
	// <offset id="N">BYTE</offset> pair in document order.
	var body strings.Builder
	body.WriteString(r.CurrentText())
	for {
		ok, err := r.ReadLine(bintext.Forward)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		body.WriteString("\n")
		body.WriteString(r.CurrentText())
	}

	matches := offsetElemRE.FindAllStringSubmatch(body.String(), -1)
	if len(matches) == 0 {
		return nil, nil
	}

	ix := newIndex()
	offsets := make([]int64, len(matches))
	ids := make([]int32, len(matches))
	for i, m := range matches {
		ids[i] = parseInt32(m[1])
		offsets[i], _ = strconv.ParseInt(m[2], 10, 64)
	}
	for i := range offsets {
		start := offsets[i]
		end, err := findSubtreeEnd(r, start, mzXMLRegexes.end)
		if err != nil {
			return nil, nil
		}
		ix.add(Entry{ScanNumber: ids[i], Start: start, End: end})
	}

	if err := validateEmbeddedIndex(r, ix, mzXMLRegexes.rootTag); err != nil {
		return nil, nil
	}
	return ix, nil
}

// findIndexOffset seeks to end of stream and reads lines in reverse
// looking for <indexOffset>NNN</indexOffset>.
func findIndexOffset(r *bintext.Reader) (int64, bool, error) {
	r.MoveToEnd()
	const maxLinesToScan = 64
	for i := 0; i < maxLinesToScan; i++ {
		ok, err := r.ReadLine(bintext.Reverse)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		text := r.CurrentText()
		if indexOffsetOpenRE.MatchString(text) {
			m := indexOffsetDigits.FindString(text[indexOffsetOpenRE.FindStringIndex(text)[1]:])
			if m == "" {
				return 0, false, nil
			}
			off, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				return 0, false, nil
			}
			return off, true, nil
		}
	}
	return 0, false, nil
}

// findSubtreeEnd forward-scans from start for the next match of end and
// returns the absolute file offset of that match's last byte, so the
// entry ends exactly at its closing tag (spec.md §8 invariant #2)
// rather than at the end of whatever line the tag happens to sit on.
func findSubtreeEnd(r *bintext.Reader, start int64, end *regexp.Regexp) (int64, error) {
	if err := r.MoveToByteOffset(start); err != nil {
		return 0, err
	}
	for {
		ok, err := r.ReadLine(bintext.Forward)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, msxmlerr.New(msxmlerr.Parse, "access: embedded index entry has no closing tag")
		}
		if loc := end.FindStringIndex(r.CurrentText()); loc != nil {
			return matchEndOffset(r, loc[1]), nil
		}
	}
}

// validateEmbeddedIndex implements spec.md §4.6 step 4: seek to the
// first entry's offset and confirm the first non-whitespace characters
// are rootTag ("<scan"); otherwise the index is discarded.
func validateEmbeddedIndex(r *bintext.Reader, ix *index, rootTag string) error {
	if len(ix.entries) == 0 {
		return msxmlerr.New(msxmlerr.Parse, "access: embedded index empty")
	}
	if err := r.MoveToByteOffset(ix.entries[0].Start); err != nil {
		return err
	}
	ok, err := r.ReadLine(bintext.Forward)
	if err != nil {
		return err
	}
	if !ok || !strings.HasPrefix(strings.TrimSpace(r.CurrentText()), rootTag) {
		return msxmlerr.New(msxmlerr.Parse, "access: embedded index first entry does not start with "+rootTag)
	}
	return nil
}
