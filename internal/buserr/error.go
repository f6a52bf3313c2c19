// Package buserr defines the error kinds the bus core distinguishes
// (spec-table style: one sentinel per condition, plus context via wrapping).
package buserr

// Error carries an optional message alongside a wrapped cause, mirroring
// how each failure kind is reported across the wire codec, queue and
// registry so that callers can both log a human string and errors.Is
// against the sentinel.
type Error struct {
	msg string
	err error
}

func (e Error) Error() string {
	if e.msg != "" {
		msg := e.msg
		if e.err != nil {
			msg += ": " + e.err.Error()
		}
		return msg
	}
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e Error) Unwrap() error {
	return e.err
}

// Wrap attaches msg as context to err's sentinel identity, leaving err
// reachable via errors.Is/errors.As.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	return Error{msg: msg, err: err}
}

// Sentinel kinds, one per row of the error-handling table: each is the
// identity callers match with errors.Is, independent of the message
// Wrap attaches at the call site.
var (
	// ErrMalformedDelimiter: header/footer bytes did not match 0x10 0x02 ... 0x10 0x03.
	ErrMalformedDelimiter = Error{msg: "malformed delimiter"}
	// ErrTooShort: frame shorter than 5 bytes, or payload shorter than 2 bytes.
	ErrTooShort = Error{msg: "frame too short"}
	// ErrChecksumMismatch: computed checksum disagreed with the received one.
	ErrChecksumMismatch = Error{msg: "checksum mismatch"}
	// ErrUnknownSlave: the head transaction's destination address isn't registered.
	ErrUnknownSlave = Error{msg: "unknown slave address"}
	// ErrOversizedFrame: a framed buffer exceeds the 32-byte wire limit.
	ErrOversizedFrame = Error{msg: "frame exceeds 32 bytes"}
	// ErrQueueFull: the transmit queue has no room for another pending frame.
	ErrQueueFull = Error{msg: "transmit queue full"}
	// ErrResponseTimeout: no reply arrived within the response deadline.
	ErrResponseTimeout = Error{msg: "response timeout"}
	// ErrAlreadyPresent: add() called for an address already in the registry.
	ErrAlreadyPresent = Error{msg: "address already registered"}
	// ErrInvalidAddress: add() called with address 0, the empty-slot sentinel.
	ErrInvalidAddress = Error{msg: "address 0 is reserved for empty slots"}
	// ErrRegistryFull: add() called with no empty slots remaining.
	ErrRegistryFull = Error{msg: "registry full"}
	// ErrTtyEOF: the serial fd reported EOF; the bus is gone.
	ErrTtyEOF = Error{msg: "tty at eof"}
	// ErrTtyConfig: open/tcsetattr/ioctl failed while configuring the tty.
	ErrTtyConfig = Error{msg: "tty configuration failed"}
)
