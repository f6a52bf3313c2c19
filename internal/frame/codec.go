// Package frame implements the byte-stuffed, checksummed wire framing
// used by the bus: 0x10 0x02 | stuffed(payload) | stuffed(checksum) | 0x10 0x03.
package frame

import (
	"github.com/lakeside/poolbus/internal/buserr"
)

const (
	header0 = 0x10
	header1 = 0x02
	footer0 = 0x10
	footer1 = 0x03

	// MinPayloadLen is the smallest legal application payload: address + opcode.
	MinPayloadLen = 2
	// MaxPayloadLen is the largest application payload build() accepts.
	MaxPayloadLen = 30
	// MaxFrameLen bounds an on-wire frame as carried by a pending-frame record.
	MaxFrameLen = 32
)

// maxBuildLen sizes the scratch buffer build() works in: worst case every
// payload and checksum byte is 0x10 and needs escaping, plus the 4
// delimiter bytes. Most real payloads stuff to well under MaxFrameLen;
// pathological all-0x10 payloads can exceed it, which is why enqueue()
// independently rejects anything over MaxFrameLen rather than trusting
// this precondition alone.
const maxBuildLen = 2*MaxPayloadLen + 2 + 4

// Build frames payload into the returned byte slice: header, stuffed
// payload, stuffed checksum, footer. len(payload) must be within
// [MinPayloadLen, MaxPayloadLen].
func Build(payload []byte) ([]byte, error) {
	if len(payload) < MinPayloadLen {
		return nil, buserr.Wrap("build", buserr.ErrTooShort)
	}
	if len(payload) > MaxPayloadLen {
		return nil, buserr.Wrap("build", buserr.ErrOversizedFrame)
	}

	checksum := byte(header0) + byte(header1)
	for _, b := range payload {
		checksum += b
	}

	buf := make([]byte, maxBuildLen)
	n := 0
	buf[n] = header0
	n++
	buf[n] = header1
	n++
	n += Stuff(buf[n:], payload)
	n += Stuff(buf[n:], []byte{checksum})
	buf[n] = footer0
	n++
	buf[n] = footer1
	n++
	return buf[:n], nil
}

// Parse validates a framed byte sequence and returns its unstuffed
// payload. framed must begin with the header delimiter and end with the
// footer delimiter; the interior is unstuffed into a fresh buffer (framed
// itself is left unchanged) and its checksum verified against the header
// bytes and unstuffed payload.
func Parse(framed []byte) ([]byte, error) {
	if len(framed) < 5 {
		return nil, buserr.Wrap("parse", buserr.ErrTooShort)
	}
	if framed[0] != header0 || framed[1] != header1 {
		return nil, buserr.Wrap("parse: header", buserr.ErrMalformedDelimiter)
	}
	n := len(framed)
	if framed[n-2] != footer0 || framed[n-1] != footer1 {
		return nil, buserr.Wrap("parse: footer", buserr.ErrMalformedDelimiter)
	}

	interior := framed[2 : n-2]
	unstuffed := make([]byte, len(interior))
	m := Unstuff(unstuffed, interior)
	unstuffed = unstuffed[:m]

	if len(unstuffed) < MinPayloadLen+1 {
		return nil, buserr.Wrap("parse: interior", buserr.ErrTooShort)
	}

	payload := unstuffed[:len(unstuffed)-1]
	received := unstuffed[len(unstuffed)-1]

	checksum := byte(header0) + byte(header1)
	for _, b := range payload {
		checksum += b
	}
	if checksum != received {
		return nil, buserr.Wrap("parse", buserr.ErrChecksumMismatch)
	}
	return payload, nil
}
