// Package serial acquires and configures the bus's RS-485 TTY: the
// platform glue spec.md treats as an external collaborator, still
// implemented here as a concrete, testable adapter (see SPEC_FULL.md
// §2). Adapted from the teacher's (daedaluz/goserial) termios2/ioctl
// wrapper, pared down to the request codes this bus actually needs and
// specialized for RS-485 9600 8N1 with RTS-on-send (spec.md §6.1).
package serial

import (
	"io"
	"sync/atomic"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"

	"github.com/lakeside/poolbus/internal/buserr"
)

// Port is an open, configured RS-485 serial device.
type Port struct {
	closed atomic.Bool
	fd     int
}

// Open acquires name as a non-blocking RS-485 TTY at 9600 8N1 with
// RTS-on-send, and flushes any stale input (spec.md §6.1). Any failure
// here is the fatal TtyConfigFailed condition of spec.md §7.
func Open(name string) (*Port, error) {
	fd, err := syscall.Open(name, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, buserr.Wrap("open "+name, buserr.ErrTtyConfig)
	}
	p := &Port{fd: fd}

	if err := p.configure(); err != nil {
		syscall.Close(fd)
		return nil, buserr.Wrap("configure "+name, buserr.ErrTtyConfig)
	}
	return p, nil
}

func (p *Port) configure() error {
	attrs, err := p.getAttr()
	if err != nil {
		return err
	}
	attrs.makeRaw()
	attrs.setSpeed(B9600)
	if err := p.setAttr(TCSANOW, attrs); err != nil {
		return err
	}

	if err := p.SetRS485(&RS485{Flags: RS485Enabled | RS485RTSOnSend}); err != nil {
		return err
	}

	return p.Flush(TCIFLUSH)
}

func (p *Port) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, buserr.ErrTtyEOF
	}
	return syscall.Write(p.fd, data)
}

func (p *Port) Read(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, buserr.ErrTtyEOF
	}
	n, err := syscall.Read(p.fd, data)
	if n == 0 && err == nil {
		// Unix read() convention: 0 bytes with no error is EOF. Translate
		// to the io.Reader contract the engine relies on to detect a
		// gone bus (spec.md §7, TtyEof).
		return 0, io.EOF
	}
	return n, err
}

// Fd is the raw descriptor the reactor watches for read-readiness.
func (p *Port) Fd() int {
	if p.closed.Load() {
		return -1
	}
	return p.fd
}

func (p *Port) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return syscall.Close(p.fd)
}

func (p *Port) getAttr() (*Termios2, error) {
	attrs := &Termios2{}
	if err := ioctl.Ioctl(uintptr(p.fd), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (p *Port) setAttr(_ Action, attrs *Termios2) error {
	return ioctl.Ioctl(uintptr(p.fd), tcsets2, uintptr(unsafe.Pointer(attrs)))
}

// GetRS485 returns the port's current RS-485 configuration.
func (p *Port) GetRS485() (*RS485, error) {
	cfg := &RS485{}
	if err := ioctl.Ioctl(uintptr(p.fd), tiocgrs485, uintptr(unsafe.Pointer(cfg))); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetRS485 applies an RS-485 configuration (mode, RTS polarity, turnaround delays).
func (p *Port) SetRS485(cfg *RS485) error {
	return ioctl.Ioctl(uintptr(p.fd), tiocsrs485, uintptr(unsafe.Pointer(cfg)))
}

// Flush discards buffered data per queue (input, output, or both).
func (p *Port) Flush(queue Queue) error {
	return ioctl.Ioctl(uintptr(p.fd), tcflsh, uintptr(queue))
}
