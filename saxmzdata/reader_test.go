package saxmzdata

import (
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/Schaudge/msxml/codec"
)

func TestSingleSpectrumDecodesTwoArrays(t *testing.T) {
	mzPayload, err := codec.Encode([]float64{100.0, 200.0}, false, codec.LittleEndian, codec.Precision64)
	assert.NoError(t, err)
	intenPayload, err := codec.Encode([]float64{10.0, 20.0}, false, codec.LittleEndian, codec.Precision32)
	assert.NoError(t, err)

	doc := `<mzData version="1.05">
  <spectrumList count="1">
    <spectrum>
      <spectrumDesc>
        <spectrumSettings>
          <acqSpecification spectrumType="discrete">
            <acquisition acqNumber="1"></acquisition>
          </acqSpecification>
          <spectrumInstrument msLevel="1"></spectrumInstrument>
        </spectrumSettings>
      </spectrumDesc>
      <mzArrayBinary>
        <data precision="64" endian="little" length="2">` + mzPayload + `</data>
      </mzArrayBinary>
      <intenArrayBinary>
        <data precision="32" endian="little" length="2">` + intenPayload + `</data>
      </intenArrayBinary>
    </spectrum>
  </spectrumList>
</mzData>`

	r := NewReader(Options{})
	assert.NoError(t, r.Driver().OpenTextStream(doc))
	spec, err := r.Driver().ReadNextSpectrum()
	assert.NoError(t, err)
	assert.EQ(t, spec.ScanNumber, int32(1))
	assert.EQ(t, spec.MSLevel, int32(1))
	assert.EQ(t, len(spec.Mz), 2)
	assert.EQ(t, spec.Mz[0], 100.0)
	assert.EQ(t, spec.Intensity[1], float32(20.0))
}

func TestPrecursorIntensityResolvedFromRecentMS1(t *testing.T) {
	ms1Mz, _ := codec.Encode([]float64{500.0, 501.0}, false, codec.LittleEndian, codec.Precision64)
	ms1Inten, _ := codec.Encode([]float64{1000.0, 2000.0}, false, codec.LittleEndian, codec.Precision32)
	ms2Mz, _ := codec.Encode([]float64{300.0}, false, codec.LittleEndian, codec.Precision64)
	ms2Inten, _ := codec.Encode([]float64{50.0}, false, codec.LittleEndian, codec.Precision32)

	doc := `<mzData version="1.05">
  <spectrumList count="2">
    <spectrum>
      <spectrumDesc>
        <spectrumSettings>
          <acqSpecification spectrumType="discrete"><acquisition acqNumber="1"></acquisition></acqSpecification>
          <spectrumInstrument msLevel="1"></spectrumInstrument>
        </spectrumSettings>
      </spectrumDesc>
      <mzArrayBinary><data precision="64" endian="little" length="2">` + ms1Mz + `</data></mzArrayBinary>
      <intenArrayBinary><data precision="32" endian="little" length="2">` + ms1Inten + `</data></intenArrayBinary>
    </spectrum>
    <spectrum>
      <spectrumDesc>
        <spectrumSettings>
          <acqSpecification spectrumType="discrete"><acquisition acqNumber="2"></acquisition></acqSpecification>
          <spectrumInstrument msLevel="2"></spectrumInstrument>
        </spectrumSettings>
        <precursorList>
          <precursor spectrumRef="1">
            <ionSelection>
              <cvParam accession="PSI:1000040" name="MassToChargeRatio" value="501.0"></cvParam>
              <cvParam accession="PSI:1000041" name="ChargeState" value="2"></cvParam>
            </ionSelection>
          </precursor>
        </precursorList>
      </spectrumDesc>
      <mzArrayBinary><data precision="64" endian="little" length="1">` + ms2Mz + `</data></mzArrayBinary>
      <intenArrayBinary><data precision="32" endian="little" length="1">` + ms2Inten + `</data></intenArrayBinary>
    </spectrum>
  </spectrumList>
</mzData>`

	r := NewReader(Options{})
	assert.NoError(t, r.Driver().OpenTextStream(doc))

	ms1, err := r.Driver().ReadNextSpectrum()
	assert.NoError(t, err)
	assert.EQ(t, ms1.ScanNumber, int32(1))

	ms2, err := r.Driver().ReadNextSpectrum()
	assert.NoError(t, err)
	assert.EQ(t, ms2.ScanNumber, int32(2))
	assert.EQ(t, ms2.ParentIonMz, 501.0)
	assert.EQ(t, ms2.ParentIonCharge, int32(2))
	assert.EQ(t, ms2.ParentIonIntensity, float32(2000.0))
}
