package spectrum

import (
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestValidateComputesBasePeakAndTIC(t *testing.T) {
	r := New()
	r.Mz = []float64{100.0, 200.0}
	r.Intensity = []float32{50.0, 75.0}

	assert.NoError(t, r.Validate())
	assert.EQ(t, r.BasePeakMz, 200.0)
	assert.EQ(t, r.BasePeakIntensity, float32(75.0))
	assert.EQ(t, r.TotalIonCurrent, 125.0)
	assert.EQ(t, r.Status, Validated)
}

func TestValidateRejectsLengthMismatch(t *testing.T) {
	r := New()
	r.Mz = []float64{1, 2}
	r.Intensity = []float32{1}
	assert.NotNil(t, r.Validate())
}

func TestValidateRejectsDecreasingMz(t *testing.T) {
	r := New()
	r.Mz = []float64{2, 1}
	r.Intensity = []float32{1, 1}
	assert.NotNil(t, r.Validate())
}

func TestCloneIsIndependent(t *testing.T) {
	r := New()
	r.Mz = []float64{1, 2}
	r.Intensity = []float32{1, 2}
	c := r.Clone()
	c.Mz[0] = 99
	assert.EQ(t, r.Mz[0], 1.0)
}

func TestHeaderClearsPeaks(t *testing.T) {
	r := New()
	r.ScanNumber = 7
	r.Mz = []float64{1, 2}
	r.Intensity = []float32{1, 2}
	h := r.Header()
	assert.EQ(t, h.ScanNumber, int32(7))
	assert.EQ(t, len(h.Mz), 0)
	assert.EQ(t, len(h.Intensity), 0)
}

func TestResetClearsFields(t *testing.T) {
	r := Get()
	r.ScanNumber = 5
	r.Mz = append(r.Mz, 1.0)
	r.Reset()
	assert.EQ(t, r.ScanNumber, int32(0))
	assert.EQ(t, len(r.Mz), 0)
	Put(r)
}
