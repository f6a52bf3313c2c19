// Package slave holds reference per-device implementations of the
// registry.Handler contract (spec.md §6): the application-level logic
// the core delegates to once a reply has been routed to an address.
package slave

import (
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"
)

const measurementsOpcode = 0x25

// Heater is a reference registry.Handler for a pool heater: it polls for
// the measurements opcode and logs the decoded on-time, cycle count
// and raw temperature (spec.md §6.1, scenario S4).
type Heater struct {
	log *logrus.Entry

	OnTime      uint16
	Cycles      uint16
	Temperature byte
}

// NewHeater returns a Heater that logs decoded measurements through log.
// A nil log uses a discarding logger.
func NewHeater(log *logrus.Entry) *Heater {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	return &Heater{log: log}
}

// OnReply decodes a measurements reply. Payload layout (source address
// at [0], opcode at [1]): [addr, 0x25, onTimeLo, onTimeHi, cyclesLo, cyclesHi, 0x00, 0x00, temp].
// Multi-byte fields are little-endian (spec.md §6.1).
func (h *Heater) OnReply(payload []byte) error {
	if len(payload) < 2 || payload[1] != measurementsOpcode {
		return nil
	}
	if len(payload) < 9 {
		return nil
	}
	h.OnTime = binary.LittleEndian.Uint16(payload[2:4])
	h.Cycles = binary.LittleEndian.Uint16(payload[4:6])
	h.Temperature = payload[8]
	h.log.WithFields(logrus.Fields{
		"on_time":     h.OnTime,
		"cycles":      h.Cycles,
		"temperature": h.Temperature,
	}).Debug("heater measurements")
	return nil
}

// NextRequest asks for fresh measurements every work cycle.
func (h *Heater) NextRequest(buf []byte) (int, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	buf[1] = measurementsOpcode
	return 2, true
}
