package serial

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

// Request codes actually exercised by Port: the modern termios2 pair,
// RS-485 mode, and a buffered-data flush. The teacher's goserial pulls
// in many more TTY ioctls (modem lines, break control, the legacy
// one-speed termios pair, pty allocation); this bus only ever needs
// these, so the rest were dropped rather than carried as dead weight.
var (
	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tiocgrs485 = uintptr(0x542E)
	tiocsrs485 = uintptr(0x542F)

	tcflsh = uintptr(0x540B)
)
