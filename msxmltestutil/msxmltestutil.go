// Package msxmltestutil provides shared test helpers, adapted from
// htstestutil: a github.com/grailbio/testutil/h comparator for
// spectrum.Record plus a go-spew dumper for mismatch diagnostics.
package msxmltestutil

import (
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/grailbio/testutil/h"

	"github.com/Schaudge/msxml/spectrum"
)

var once sync.Once

// RegisterSpectrumRecordComparator adds an h.RegisterComparator entry
// for spectrum.Record. It is threadsafe and idempotent.
func RegisterSpectrumRecordComparator() {
	once.Do(func() {
		h.RegisterComparator(func(f0, f1 spectrum.Record) (int, error) {
			if f0.Equal(&f1) {
				return 0, nil
			}
			return 1, nil
		})
	})
}

// DumpMismatch renders got and want with go-spew for a test failure
// message, so a diff of two large peak-vector records is readable
// without reflect.DeepEqual's single-line dump.
func DumpMismatch(got, want *spectrum.Record) string {
	cfg := spew.ConfigState{Indent: "  ", DisableMethods: true}
	return "got:\n" + cfg.Sdump(got) + "want:\n" + cfg.Sdump(want)
}
