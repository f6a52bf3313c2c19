// Package txqueue is the transmit queue and its transaction timers: a
// FIFO of pending outbound frames with a single-in-flight policy, a
// response deadline, and an interframe-gap guard (spec.md §3, §4.3).
package txqueue

import (
	"time"

	"github.com/rs/xid"

	"github.com/lakeside/poolbus/internal/buserr"
	"github.com/lakeside/poolbus/internal/frame"
	"github.com/lakeside/poolbus/internal/reactor"
)

const (
	// ResponseDeadline is the worst-case round trip for a <=32-byte
	// frame at 9600 baud plus turnaround (spec.md §4.3).
	ResponseDeadline = 200 * time.Millisecond
	// InterframeGap is >= 3.5 character times at 9600 baud, the bus's
	// minimum silent-line interval (spec.md §4.3).
	InterframeGap = 4 * time.Millisecond

	// MaxQueueDepth is a backstop bounding unbounded growth, the nearest
	// Go analogue of the original's OutOfMemory enqueue failure (Go has
	// no allocation-failure return path in normal operation; see
	// DESIGN.md).
	MaxQueueDepth = 64
)

// Writer is the transport the queue transmits frames over.
type Writer interface {
	Write(p []byte) (int, error)
}

// Pending is one outstanding outbound frame: the framed bytes, the
// destination address they carry (for timeout/attribution logging
// without re-parsing), and a correlation id for logs.
type Pending struct {
	Frame []byte
	Dest  byte
	ID    xid.ID
}

// Queue is the bus's single transmit queue and its transaction clock.
type Queue struct {
	items []*Pending

	writer   Writer
	deadline reactor.Timer
	gap      reactor.Timer
	gapArmed bool

	onTimeout  func(p *Pending)
	onTransmit func(p *Pending)
}

// New creates a Queue writing frames to w. onTimeout is called when a
// response deadline elapses for the then-current head, before it is
// removed. onTransmit, if non-nil, is called whenever a frame is
// written to the wire (used for metrics).
func New(r reactor.Reactor, w Writer, onTimeout, onTransmit func(p *Pending)) (*Queue, error) {
	q := &Queue{writer: w, onTimeout: onTimeout, onTransmit: onTransmit}
	deadline, err := r.NewTimer(q.onResponseDeadlineElapsed)
	if err != nil {
		return nil, err
	}
	gap, err := r.NewTimer(q.onInterframeGapElapsed)
	if err != nil {
		return nil, err
	}
	q.deadline = deadline
	q.gap = gap
	return q, nil
}

// Len reports how many frames are pending, including the in-flight head.
func (q *Queue) Len() int {
	return len(q.items)
}

// Head returns the outstanding request, or nil if the queue is empty.
func (q *Queue) Head() *Pending {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Enqueue appends framed to the tail, tagged with dest for attribution.
// If the queue was empty and no interframe gap is pending, the new head
// is transmitted immediately.
func (q *Queue) Enqueue(framed []byte, dest byte) (xid.ID, error) {
	if len(framed) > frame.MaxFrameLen {
		return xid.ID{}, buserr.Wrap("enqueue", buserr.ErrOversizedFrame)
	}
	if len(q.items) >= MaxQueueDepth {
		return xid.ID{}, buserr.Wrap("enqueue", buserr.ErrQueueFull)
	}
	p := &Pending{Frame: framed, Dest: dest, ID: xid.New()}
	wasEmpty := len(q.items) == 0
	q.items = append(q.items, p)
	if wasEmpty && !q.gapArmed {
		q.transmitHead()
	}
	return p.ID, nil
}

func (q *Queue) transmitHead() {
	if len(q.items) == 0 {
		return
	}
	head := q.items[0]
	_, _ = q.writer.Write(head.Frame)
	if q.onTransmit != nil {
		q.onTransmit(head)
	}
	q.deadline.Arm(ResponseDeadline)
}

func (q *Queue) removeHead() {
	if len(q.items) == 0 {
		return
	}
	q.items = q.items[1:]
}

// onInterframeGapElapsed fires InterframeGap after a completed reply; if
// another frame is queued, it is transmitted now.
func (q *Queue) onInterframeGapElapsed() {
	q.gapArmed = false
	if len(q.items) > 0 {
		q.transmitHead()
	}
}

// onResponseDeadlineElapsed fires ResponseDeadline after the head with
// no matching reply. The head is dropped; per spec.md's open-questions
// note, no interframe gap is imposed before trying the next head, since
// no bus traffic actually occurred.
func (q *Queue) onResponseDeadlineElapsed() {
	head := q.Head()
	if head == nil {
		return
	}
	if q.onTimeout != nil {
		q.onTimeout(head)
	}
	q.removeHead()
	q.transmitHead()
}

// OnReplyReceived is called once the engine has matched an inbound
// frame to the current head. It cancels the response deadline, retires
// the head, and arms the interframe gap; the gap's own callback will
// transmit the next head if one is queued.
func (q *Queue) OnReplyReceived() {
	q.deadline.Cancel()
	q.removeHead()
	q.gapArmed = true
	q.gap.Arm(InterframeGap)
}
