package dta

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestTwoBlockConcatenationParsesBothSpectra(t *testing.T) {
	doc := `=================================== "sample.1.1.2.dta" ====================
1000.5 2
100.0 50.0
200.0 75.0
=================================== "sample.2.2.3.dta" ====================
1500.25 3
110.0 60.0
`
	r := NewReader(strings.NewReader(doc))

	assert.EQ(t, r.Next(), true)
	first := r.Spectrum()
	assert.EQ(t, first.ScanNumber, int32(1))
	assert.EQ(t, first.ParentIonCharge, int32(2))
	assert.EQ(t, first.ParentIonMz, 1000.5)
	assert.EQ(t, len(first.Mz), 2)

	assert.EQ(t, r.Next(), true)
	second := r.Spectrum()
	assert.EQ(t, second.ScanNumber, int32(2))
	assert.EQ(t, second.ParentIonCharge, int32(3))
	assert.EQ(t, len(second.Mz), 1)

	assert.EQ(t, r.Next(), false)
	assert.NoError(t, r.Err())
}
