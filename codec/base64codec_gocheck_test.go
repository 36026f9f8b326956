package codec

import (
	"testing"

	gocheck "gopkg.in/check.v1"
)

func TestGocheck(t *testing.T) { gocheck.TestingT(t) }

type CodecSuite struct{}

var _ = gocheck.Suite(&CodecSuite{})

// TestRoundTripMatrix exercises every combination of endianness,
// precision, and zlib compression spec.md §4.2 describes, table-driven
// in the gocheck suite style the teacher declares in go.mod.
func (s *CodecSuite) TestRoundTripMatrix(c *gocheck.C) {
	values := []float64{0, 1, -1, 123.456, 1e6, -1e-3}
	for _, endian := range []Endian{BigEndian, LittleEndian} {
		for _, prec := range []Precision{Precision32, Precision64} {
			for _, compressed := range []bool{false, true} {
				text, err := Encode(values, compressed, endian, prec)
				c.Assert(err, gocheck.IsNil)

				got, err := Decode(text, compressed, endian, prec)
				c.Assert(err, gocheck.IsNil)
				c.Assert(len(got), gocheck.Equals, len(values))

				for i, v := range values {
					if prec == Precision32 {
						c.Assert(float64(float32(v)), gocheck.Equals, got[i])
					} else {
						c.Assert(v, gocheck.Equals, got[i])
					}
				}
			}
		}
	}
}

func (s *CodecSuite) TestEmptyInputRoundTrips(c *gocheck.C) {
	text, err := Encode(nil, false, BigEndian, Precision32)
	c.Assert(err, gocheck.IsNil)

	got, err := Decode(text, false, BigEndian, Precision32)
	c.Assert(err, gocheck.IsNil)
	c.Assert(len(got), gocheck.Equals, 0)
}
