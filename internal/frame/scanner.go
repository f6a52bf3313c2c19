package frame

// Range identifies a located frame within a scanned buffer: Start is the
// index of its header's first byte, End is one past its footer's last
// byte (so B[Start:End] is the complete framed packet).
type Range struct {
	Start, End int
}

// Scan locates the next complete framed packet in buf.
//
// It searches for the header delimiter, then for a footer delimiter
// strictly after it. If no header is found, Discard reports len(buf):
// the whole buffer is garbage and can be dropped. If a header is found
// but no footer follows it yet, Discard reports the header's offset
// (bytes before it are garbage) and ok is false: the caller should wait
// for more input without losing progress already made past the
// unterminated header.
//
// Scan never rescans a frame it has already reported: callers are
// expected to drop buf[:range.End] before calling again.
func Scan(buf []byte) (r Range, discard int, ok bool) {
	hdr := indexDelim(buf, 0, header0, header1)
	if hdr < 0 {
		return Range{}, len(buf), false
	}
	ftr := indexDelim(buf, hdr+2, footer0, footer1)
	if ftr < 0 {
		return Range{}, hdr, false
	}
	return Range{Start: hdr, End: ftr + 2}, 0, true
}

func indexDelim(buf []byte, from int, b0, b1 byte) int {
	for i := from; i+1 < len(buf); i++ {
		if buf[i] == b0 && buf[i+1] == b1 {
			return i
		}
	}
	return -1
}
