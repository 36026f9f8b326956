package access

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/Schaudge/msxml/codec"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

// TestMzXMLScanNumberLookupViaForwardScan covers spec.md §8 scenario 1:
// open a two-scan mzXML file with no embedded index, build the index by
// forward scan, and look a scan up by number.
func TestMzXMLScanNumberLookupViaForwardScan(t *testing.T) {
	p1, err := codec.Encode([]float64{100.0, 50.0}, false, codec.BigEndian, codec.Precision32)
	assert.NoError(t, err)
	p2, err := codec.Encode([]float64{200.0, 75.0, 300.0, 125.0}, false, codec.BigEndian, codec.Precision32)
	assert.NoError(t, err)

	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="2">
    <scan num="1" msLevel="1" peaksCount="1" basePeakMz="100.0" basePeakIntensity="50.0" totIonCurrent="50.0">
      <peaks precision="32" byteOrder="network" pairOrder="m/z-int">` + p1 + `</peaks>
    </scan>
    <scan num="2" msLevel="1" peaksCount="2" basePeakMz="300.0" basePeakIntensity="125.0" totIonCurrent="200.0">
      <peaks precision="32" byteOrder="network" pairOrder="m/z-int">` + p2 + `</peaks>
    </scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "two_scan.mzXML", doc)

	a, err := Open(path, MzXML, Options{IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.ReadAndCacheEntireFile())
	assert.EQ(t, a.State(), Indexed)
	assert.EQ(t, a.EntryCount(), 2)

	scans, err := a.GetScanNumberList()
	assert.NoError(t, err)
	assert.EQ(t, len(scans), 2)
	assert.EQ(t, scans[0], int32(1))
	assert.EQ(t, scans[1], int32(2))

	rec, err := a.GetSpectrumByScanNumber(2)
	assert.NoError(t, err)
	assert.EQ(t, rec.ScanNumber, int32(2))
	assert.EQ(t, rec.BasePeakMz, 300.0)
	assert.EQ(t, len(rec.Mz), 2)
	assert.EQ(t, rec.TotalIonCurrent, 200.0)
}

// TestMzXMLZlibCompressedFloat64Peaks covers spec.md §8 scenario 2: a
// zlib-compressed, 64-bit-precision peaks payload fetched by index.
func TestMzXMLZlibCompressedFloat64Peaks(t *testing.T) {
	payload, err := codec.Encode([]float64{400.25, 1000.5, 410.75, 2000.25}, true, codec.LittleEndian, codec.Precision64)
	assert.NoError(t, err)

	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="1">
    <scan num="7" msLevel="1" peaksCount="2">
      <peaks precision="64" byteOrder="little" compressionType="zlib" pairOrder="m/z-int">` + payload + `</peaks>
    </scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "compressed.mzXML", doc)

	a, err := Open(path, MzXML, Options{IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.ReadAndCacheEntireFile())
	rec, err := a.GetSpectrumByScanNumber(7)
	assert.NoError(t, err)
	assert.EQ(t, len(rec.Mz), 2)
	assert.EQ(t, rec.Mz[0], 400.25)
	assert.EQ(t, rec.Mz[1], 410.75)
	assert.EQ(t, rec.Intensity[1], float32(2000.25))
}

// TestMzDataSpectrumIDLookup covers spec.md §8 scenario 3: mzData
// spectra indexed and fetched by spectrum id rather than scan number.
func TestMzDataSpectrumIDLookup(t *testing.T) {
	mzPayload, err := codec.Encode([]float64{150.0, 250.0}, false, codec.LittleEndian, codec.Precision64)
	assert.NoError(t, err)
	intenPayload, err := codec.Encode([]float64{5.0, 6.0}, false, codec.LittleEndian, codec.Precision32)
	assert.NoError(t, err)

	doc := `<mzData version="1.05">
  <spectrumList count="1">
    <spectrum id="3">
      <spectrumDesc>
        <spectrumSettings>
          <acqSpecification spectrumType="discrete"><acquisition acqNumber="3"></acquisition></acqSpecification>
          <spectrumInstrument msLevel="1"></spectrumInstrument>
        </spectrumSettings>
      </spectrumDesc>
      <mzArrayBinary><data precision="64" endian="little" length="2">` + mzPayload + `</data></mzArrayBinary>
      <intenArrayBinary><data precision="32" endian="little" length="2">` + intenPayload + `</data></intenArrayBinary>
    </spectrum>
  </spectrumList>
</mzData>`
	path := writeTempFile(t, "single.mzData", doc)

	a, err := Open(path, MzData, Options{})
	assert.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.ReadAndCacheEntireFile())
	ids, err := a.GetSpectrumIDList()
	assert.NoError(t, err)
	assert.EQ(t, len(ids), 1)
	assert.EQ(t, ids[0], int32(3))

	rec, err := a.GetSpectrumBySpectrumID(3)
	assert.NoError(t, err)
	assert.EQ(t, rec.MSLevel, int32(1))
	assert.EQ(t, len(rec.Mz), 2)
}

// TestMalformedEmbeddedIndexFallsBackToForwardScan covers spec.md §8
// scenario 4: an mzXML file whose trailing <indexOffset> points at
// garbage is discarded, and the accessor transparently falls back to a
// forward scan instead of failing.
func TestMalformedEmbeddedIndexFallsBackToForwardScan(t *testing.T) {
	p1, err := codec.Encode([]float64{100.0, 50.0}, false, codec.BigEndian, codec.Precision32)
	assert.NoError(t, err)

	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="1">
    <scan num="1" msLevel="1" peaksCount="1">
      <peaks precision="32" byteOrder="network" pairOrder="m/z-int">` + p1 + `</peaks>
    </scan>
  </msRun>
  <indexOffset>0</indexOffset>
</mzXML>`
	path := writeTempFile(t, "bad_index.mzXML", doc)

	a, err := Open(path, MzXML, Options{})
	assert.NoError(t, err)
	defer a.Close()

	assert.EQ(t, a.UsedEmbeddedIndex(), false)
	assert.NoError(t, a.ReadAndCacheEntireFile())
	assert.EQ(t, a.EntryCount(), 1)
	rec, err := a.GetSpectrumByScanNumber(1)
	assert.NoError(t, err)
	assert.EQ(t, len(rec.Mz), 1)
}

// TestIndexEntriesAreNonOverlappingAndIncreasing checks the spec.md §8
// invariant that byte ranges are strictly increasing and non-overlapping
// in index order.
func TestIndexEntriesAreNonOverlappingAndIncreasing(t *testing.T) {
	p1, _ := codec.Encode([]float64{1, 1}, false, codec.BigEndian, codec.Precision32)
	p2, _ := codec.Encode([]float64{2, 2}, false, codec.BigEndian, codec.Precision32)
	p3, _ := codec.Encode([]float64{3, 3}, false, codec.BigEndian, codec.Precision32)

	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="3">
    <scan num="1" msLevel="1" peaksCount="1"><peaks precision="32" byteOrder="network">` + p1 + `</peaks></scan>
    <scan num="2" msLevel="1" peaksCount="1"><peaks precision="32" byteOrder="network">` + p2 + `</peaks></scan>
    <scan num="3" msLevel="1" peaksCount="1"><peaks precision="32" byteOrder="network">` + p3 + `</peaks></scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "three_scan.mzXML", doc)

	a, err := Open(path, MzXML, Options{IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer a.Close()
	assert.NoError(t, a.ReadAndCacheEntireFile())
	assert.EQ(t, a.EntryCount(), 3)

	for i := 1; i < a.EntryCount(); i++ {
		prevEnd := a.ix.entries[i-1].End
		cur := a.ix.entries[i]
		if cur.Start <= prevEnd {
			t.Fatalf("entry %d starts at %d, not after previous entry's end %d", i, cur.Start, prevEnd)
		}
	}
}

// TestGetSpectrumHeaderSkipsBinaryData checks that the header-only
// fetch path returns the same scalar fields as the full fetch but
// omits peak arrays.
func TestGetSpectrumHeaderSkipsBinaryData(t *testing.T) {
	p1, _ := codec.Encode([]float64{100.0, 50.0}, false, codec.BigEndian, codec.Precision32)
	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="1">
    <scan num="1" msLevel="1" peaksCount="1" basePeakMz="100.0">
      <peaks precision="32" byteOrder="network">` + p1 + `</peaks>
    </scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "header_only.mzXML", doc)

	a, err := Open(path, MzXML, Options{IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer a.Close()
	assert.NoError(t, a.ReadAndCacheEntireFile())

	full, err := a.GetSpectrumByIndex(0)
	assert.NoError(t, err)
	assert.EQ(t, len(full.Mz), 1)

	header, err := a.GetSpectrumHeaderByIndex(0)
	assert.NoError(t, err)
	assert.EQ(t, header.ScanNumber, int32(1))
	assert.EQ(t, header.BasePeakMz, 100.0)
	assert.EQ(t, len(header.Mz), 0)
}

// TestCacheEntireFileServesScanNumberLookup covers the alternate
// read-caching mode of spec.md §4.6: once cached, lookups are served
// from memory rather than re-parsing subtrees.
func TestCacheEntireFileServesScanNumberLookup(t *testing.T) {
	p1, _ := codec.Encode([]float64{100.0, 50.0}, false, codec.BigEndian, codec.Precision32)
	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="1">
    <scan num="5" msLevel="1" peaksCount="1">
      <peaks precision="32" byteOrder="network">` + p1 + `</peaks>
    </scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "cached.mzXML", doc)

	a, err := Open(path, MzXML, Options{IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer a.Close()

	assert.NoError(t, a.CacheEntireFile())
	assert.EQ(t, a.State(), Cached)

	rec, err := a.GetSpectrumByScanNumber(5)
	assert.NoError(t, err)
	assert.EQ(t, rec.ScanNumber, int32(5))
	assert.EQ(t, len(rec.Mz), 1)
}

// TestStreamAdapterIteratesAllEntriesInOrder exercises the Next/
// Spectrum/Err cursor adapter spec.md §4.6 describes for
// read_next_spectrum.
func TestStreamAdapterIteratesAllEntriesInOrder(t *testing.T) {
	p1, _ := codec.Encode([]float64{1, 1}, false, codec.BigEndian, codec.Precision32)
	p2, _ := codec.Encode([]float64{2, 2}, false, codec.BigEndian, codec.Precision32)
	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="2">
    <scan num="1" msLevel="1" peaksCount="1"><peaks precision="32" byteOrder="network">` + p1 + `</peaks></scan>
    <scan num="2" msLevel="1" peaksCount="1"><peaks precision="32" byteOrder="network">` + p2 + `</peaks></scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "stream.mzXML", doc)

	a, err := Open(path, MzXML, Options{IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer a.Close()
	assert.NoError(t, a.ReadAndCacheEntireFile())

	var scanNumbers []int32
	for a.Next() {
		scanNumbers = append(scanNumbers, a.Spectrum().ScanNumber)
	}
	assert.NoError(t, a.Err())
	assert.EQ(t, len(scanNumbers), 2)
	assert.EQ(t, scanNumbers[0], int32(1))
	assert.EQ(t, scanNumbers[1], int32(2))
}
