package frame

import (
	"bytes"
	"testing"
)

func TestStuffUnstuffRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0x10},
		{0x10, 0x10, 0x10},
		{0x01, 0x10, 0x02},
		{0x68, 0x10, 0xbe, 0x10},
		bytes.Repeat([]byte{0x10}, 30),
	}
	for _, c := range cases {
		stuffed := make([]byte, StuffedLen(len(c)))
		n := Stuff(stuffed, c)
		stuffed = stuffed[:n]

		unstuffed := make([]byte, len(stuffed))
		m := Unstuff(unstuffed, stuffed)
		unstuffed = unstuffed[:m]

		if !bytes.Equal(unstuffed, c) {
			t.Fatalf("round-trip mismatch for % x: got % x", c, unstuffed)
		}
	}
}

func TestUnstuffInPlaceMatchesDisjoint(t *testing.T) {
	src := []byte{0x10, 0x00, 0x01, 0x10, 0x00, 0x02, 0x10, 0x00}

	disjointDst := make([]byte, len(src))
	wantN := Unstuff(disjointDst, src)
	disjointDst = disjointDst[:wantN]

	inPlace := append([]byte(nil), src...)
	gotN := Unstuff(inPlace, inPlace)
	inPlace = inPlace[:gotN]

	if !bytes.Equal(inPlace, disjointDst) {
		t.Fatalf("in-place unstuff diverged: got % x want % x", inPlace, disjointDst)
	}
}

func TestStuffNeverProducesDelimiterSequences(t *testing.T) {
	for n := MinPayloadLen; n <= MaxPayloadLen; n++ {
		src := make([]byte, n+1) // payload + checksum byte
		for i := range src {
			src[i] = byte(i)
		}
		dst := make([]byte, StuffedLen(len(src)))
		k := Stuff(dst, src)
		dst = dst[:k]
		for i := 0; i+1 < len(dst); i++ {
			if dst[i] == 0x10 && (dst[i+1] == 0x02 || dst[i+1] == 0x03) {
				t.Fatalf("stuffed form contains a delimiter-like pair at %d: % x", i, dst)
			}
		}
	}
}
