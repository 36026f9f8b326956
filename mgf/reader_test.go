package mgf

import (
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestTwoBlocksParseHeadersAndPeaks(t *testing.T) {
	doc := `BEGIN IONS
TITLE=sample.1.1.2
PEPMASS=500.25 1000.0
CHARGE=2+
RTINSECONDS=120.0
100.0 50.0
200.0 75.0
END IONS
BEGIN IONS
TITLE=sample.2.2.3
PEPMASS=600.5
CHARGE=3+
150.0 25.0
END IONS
`
	r := NewReader(strings.NewReader(doc))

	assert.EQ(t, r.Next(), true)
	first := r.Spectrum()
	assert.EQ(t, first.FilterLine, "sample.1.1.2")
	assert.EQ(t, first.ParentIonMz, 500.25)
	assert.EQ(t, first.ParentIonIntensity, float32(1000.0))
	assert.EQ(t, first.ParentIonCharge, int32(2))
	assert.EQ(t, first.RetentionTimeMin, 2.0)
	assert.EQ(t, len(first.Mz), 2)

	assert.EQ(t, r.Next(), true)
	second := r.Spectrum()
	assert.EQ(t, second.ParentIonCharge, int32(3))
	assert.EQ(t, len(second.Mz), 1)

	assert.EQ(t, r.Next(), false)
	assert.NoError(t, r.Err())
}
