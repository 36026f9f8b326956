package bintext

import (
	"bytes"
	"testing"

	"github.com/grailbio/testutil/assert"
)

func TestDetectEncodingASCII(t *testing.T) {
	r, err := NewFromBuffer(bytes.NewReader([]byte("hello\nworld\n")))
	assert.NoError(t, err)
	assert.EQ(t, r.Encoding(), ASCII)
	assert.EQ(t, r.CharSize(), 1)
	assert.EQ(t, r.BOMLength(), 0)
}

func TestDetectEncodingUTF8BOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("<spectrum>\n")...)
	r, err := NewFromBuffer(bytes.NewReader(data))
	assert.NoError(t, err)
	assert.EQ(t, r.Encoding(), UTF8)
	assert.EQ(t, r.BOMLength(), 3)
}

func TestForwardLineBoundariesMixedTerminators(t *testing.T) {
	data := []byte("one\ntwo\r\nthree\rfour")
	r, err := NewFromBuffer(bytes.NewReader(data))
	assert.NoError(t, err)

	var lines []string
	var terms []Terminator
	for {
		ok, err := r.ReadLine(Forward)
		assert.NoError(t, err)
		if !ok {
			break
		}
		lines = append(lines, r.CurrentText())
		terms = append(terms, r.CurrentTerminator())
	}
	assert.EQ(t, lines, []string{"one", "two", "three", "four"})
	assert.EQ(t, terms, []Terminator{LF, CRLF, CR, NoTerminator})
}

func TestReverseMatchesForwardOffsets(t *testing.T) {
	data := []byte("alpha\nbeta\r\ngamma\rdelta\n")
	fwd, err := NewFromBuffer(bytes.NewReader(data))
	assert.NoError(t, err)

	type span struct {
		start, end int64
		text       string
	}
	var forward []span
	for {
		ok, err := fwd.ReadLine(Forward)
		assert.NoError(t, err)
		if !ok {
			break
		}
		forward = append(forward, span{fwd.CurrentStart(), fwd.CurrentEnd(), fwd.CurrentText()})
	}

	rev, err := NewFromBuffer(bytes.NewReader(data))
	assert.NoError(t, err)
	rev.MoveToEnd()
	var reverse []span
	for {
		ok, err := rev.ReadLine(Reverse)
		assert.NoError(t, err)
		if !ok {
			break
		}
		reverse = append(reverse, span{rev.CurrentStart(), rev.CurrentEnd(), rev.CurrentText()})
	}
	assert.EQ(t, len(reverse), len(forward))
	for i := range forward {
		assert.EQ(t, reverse[len(reverse)-1-i], forward[i])
	}
}

func TestSeekPastEndFails(t *testing.T) {
	r, err := NewFromBuffer(bytes.NewReader([]byte("abc")))
	assert.NoError(t, err)
	assert.NotNil(t, r.MoveToByteOffset(100))
}
