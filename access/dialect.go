// Package access implements RandomAccessAccessor (spec.md §4.6): a
// byte-offset index over an mzXML or mzData file built by a forward
// regex scan (or, for mzXML, loaded from an embedded trailer), plus
// per-spectrum subtree fetch that reuses the streaming SAX readers.
package access

import "regexp"

// Dialect selects which XML grammar the accessor indexes.
type Dialect int

const (
	MzXML Dialect = iota
	MzData
)

// State tracks the accessor's position in the lifecycle spec.md §4.6
// describes: Closed -> Opened -> Indexed|Cached -> Closed.
type State int

const (
	Closed State = iota
	Opened
	Indexed
	Cached
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opened:
		return "opened"
	case Indexed:
		return "indexed"
	case Cached:
		return "cached"
	default:
		return "unknown"
	}
}

// dialectRegexes bundles the three compiled regexes spec.md §4.6
// names per dialect: the start/end element boundary matchers and the
// id-attribute extractor.
type dialectRegexes struct {
	start   *regexp.Regexp
	end     *regexp.Regexp
	idAttr  *regexp.Regexp
	count   *regexp.Regexp
	rootTag string // tag name expected at the start of a fetched subtree, e.g. "<scan" or "<spectrum"
}

var mzXMLRegexes = dialectRegexes{
	start:   regexp.MustCompile(`<scan\s+|<scan$`),
	end:     regexp.MustCompile(`</peaks>`),
	idAttr:  regexp.MustCompile(`\bnum="(-?\d+)"`),
	count:   regexp.MustCompile(`\bscanCount="(\d+)"`),
	rootTag: "<scan",
}

var mzDataRegexes = dialectRegexes{
	start:   regexp.MustCompile(`<spectrum\s+|<spectrum$`),
	end:     regexp.MustCompile(`</spectrum>`),
	idAttr:  regexp.MustCompile(`\bid="(-?\d+)"`),
	count:   regexp.MustCompile(`\bcount="(\d+)"`),
	rootTag: "<spectrum",
}

func regexesFor(d Dialect) dialectRegexes {
	if d == MzData {
		return mzDataRegexes
	}
	return mzXMLRegexes
}
