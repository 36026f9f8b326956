package msxml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/assert"

	"github.com/Schaudge/msxml/access"
	"github.com/Schaudge/msxml/codec"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestOpenUnknownExtensionReturnsErrUnknownExtension(t *testing.T) {
	path := writeTempFile(t, "notes.txt", "hello")
	_, err := Open(path, Options{})
	assert.EQ(t, err, ErrUnknownExtension)
}

func TestOpenMzXMLStreamsSpectra(t *testing.T) {
	p1, _ := codec.Encode([]float64{100.0, 50.0}, false, codec.BigEndian, codec.Precision32)
	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="1">
    <scan num="1" msLevel="1" peaksCount="1">
      <peaks precision="32" byteOrder="network">` + p1 + `</peaks>
    </scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "sample.mzXML", doc)

	stream, err := Open(path, Options{})
	assert.NoError(t, err)
	defer stream.Close()

	assert.EQ(t, stream.Next(), true)
	assert.EQ(t, stream.Spectrum().ScanNumber, int32(1))
	assert.EQ(t, stream.Next(), false)
	assert.NoError(t, stream.Err())
}

func TestOpenMzXMLRandomAccessReturnsAccessor(t *testing.T) {
	p1, _ := codec.Encode([]float64{100.0, 50.0}, false, codec.BigEndian, codec.Precision32)
	doc := `<mzXML xmlns="http://sashimi.sourceforge.net/schema_revision/mzXML_3.2">
  <msRun scanCount="1">
    <scan num="9" msLevel="1" peaksCount="1">
      <peaks precision="32" byteOrder="network">` + p1 + `</peaks>
    </scan>
  </msRun>
</mzXML>`
	path := writeTempFile(t, "indexed.mzXML", doc)

	stream, err := Open(path, Options{RandomAccess: true, IgnoreEmbeddedIndex: true})
	assert.NoError(t, err)
	defer stream.Close()

	_, isAccessor := stream.(*access.Accessor)
	assert.EQ(t, isAccessor, true)
	assert.NoError(t, stream.Err())
}

func TestOpenMGFDispatchesToTextReader(t *testing.T) {
	doc := "BEGIN IONS\nTITLE=x\nPEPMASS=500.0\n100.0 1.0\nEND IONS\n"
	path := writeTempFile(t, "sample.mgf", doc)

	stream, err := Open(path, Options{})
	assert.NoError(t, err)
	defer stream.Close()
	assert.EQ(t, stream.Next(), true)
	assert.EQ(t, stream.Spectrum().ParentIonMz, 500.0)
}

func TestOpenDTADispatchesToTextReader(t *testing.T) {
	doc := `=================================== "sample.1.1.2.dta" ====================
1000.5 2
100.0 50.0
`
	path := writeTempFile(t, "sample_dta.txt", doc)

	stream, err := Open(path, Options{})
	assert.NoError(t, err)
	defer stream.Close()
	assert.EQ(t, stream.Next(), true)
	assert.EQ(t, stream.Spectrum().ParentIonCharge, int32(2))
}
