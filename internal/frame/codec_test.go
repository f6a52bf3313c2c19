package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lakeside/poolbus/internal/buserr"
)

func TestBuildParseRoundTrip(t *testing.T) {
	for n := MinPayloadLen; n <= MaxPayloadLen; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i*37 + n)
		}
		framed, err := Build(payload)
		if err != nil {
			t.Fatalf("len=%d: Build: %v", n, err)
		}
		got, err := Parse(framed)
		if err != nil {
			t.Fatalf("len=%d: Parse: %v", n, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("len=%d: round-trip mismatch: got %x want %x", n, got, payload)
		}
	}
}

func TestBuildEncodesMeasurementRequest(t *testing.T) {
	// S1: payload [0x68, 0x25], checksum = (0x10+0x02+0x68+0x25) mod 256 = 0x9f.
	framed, err := Build([]byte{0x68, 0x25})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x10, 0x02, 0x68, 0x25, 0x9f, 0x10, 0x03}
	if !bytes.Equal(framed, want) {
		t.Fatalf("got % x want % x", framed, want)
	}
}

func TestParseDecodesEmbeddedEscape(t *testing.T) {
	// S2: 10 02 68 10 00 be 10 00 58 10 03 -> [0x68, 0x10, 0xbe, 0x10]
	framed := []byte{0x10, 0x02, 0x68, 0x10, 0x00, 0xbe, 0x10, 0x00, 0x58, 0x10, 0x03}
	got, err := Parse(framed)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x68, 0x10, 0xbe, 0x10}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestParseDecodesMeasurementsReply(t *testing.T) {
	// S4.
	framed := []byte{0x10, 0x02, 0x00, 0x25, 0x12, 0x00, 0x3b, 0x01, 0x00, 0x00, 0x20, 0xa5, 0x10, 0x03}
	got, err := Parse(framed)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x25, 0x12, 0x00, 0x3b, 0x01, 0x00, 0x00, 0x20}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestChecksumEqualToEscapeByteStuffsAndRoundTrips(t *testing.T) {
	// Find a 2-byte payload whose checksum is exactly 0x10.
	var payload []byte
	for a := 0; a < 256; a++ {
		b := (0x10 - 0x10 - 0x02 - a) & 0xff
		cand := []byte{byte(a), byte(b)}
		sum := byte(0x10) + byte(0x02) + cand[0] + cand[1]
		if sum == 0x10 {
			payload = cand
			break
		}
	}
	if payload == nil {
		t.Fatal("no candidate payload found")
	}
	framed, err := Build(payload)
	if err != nil {
		t.Fatal(err)
	}
	// The stuffed checksum 0x10 must appear as 0x10 0x00 just before the footer.
	n := len(framed)
	if framed[n-4] != 0x10 || framed[n-3] != 0x00 {
		t.Fatalf("checksum not stuffed: % x", framed)
	}
	got, err := Parse(framed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got % x want % x", got, payload)
	}
}

func TestParseRejectsTooShort(t *testing.T) {
	_, err := Parse([]byte{0x10, 0x02, 0x10, 0x03})
	if !errors.Is(err, buserr.ErrTooShort) {
		t.Fatalf("got %v want ErrTooShort", err)
	}
}

func TestParseRejectsMalformedDelimiter(t *testing.T) {
	framed, err := Build([]byte{0x68, 0x25})
	if err != nil {
		t.Fatal(err)
	}
	broken := append([]byte(nil), framed...)
	broken[0] = 0x11
	_, err = Parse(broken)
	if !errors.Is(err, buserr.ErrMalformedDelimiter) {
		t.Fatalf("got %v want ErrMalformedDelimiter", err)
	}
}

func TestParseRejectsChecksumMismatch(t *testing.T) {
	framed, err := Build([]byte{0x68, 0x25, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	broken := append([]byte(nil), framed...)
	broken[2] ^= 0x01 // flip a payload bit, leave delimiters and csum alone
	_, err = Parse(broken)
	if !errors.Is(err, buserr.ErrChecksumMismatch) {
		t.Fatalf("got %v want ErrChecksumMismatch", err)
	}
}

func TestBuildRejectsOutOfRangePayload(t *testing.T) {
	if _, err := Build([]byte{0x01}); err == nil {
		t.Fatal("expected error for 1-byte payload")
	}
	big := make([]byte, MaxPayloadLen+1)
	if _, err := Build(big); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}
