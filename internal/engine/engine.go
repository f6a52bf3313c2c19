// Package engine is the master engine: the state machine that wires the
// frame codec, transmit queue and slave registry into the bus-mastering
// event loop (spec.md §4.5). It is the reactor's only tenant.
package engine

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lakeside/poolbus/internal/buserr"
	"github.com/lakeside/poolbus/internal/frame"
	"github.com/lakeside/poolbus/internal/reactor"
	"github.com/lakeside/poolbus/internal/registry"
	"github.com/lakeside/poolbus/internal/txqueue"
)

const (
	// ProbeOpcode addresses the probe request opcode (spec.md §6.1).
	ProbeOpcode = 0x00
	// ProbeReplyOpcode is handled internally by the engine: it marks a
	// slave connected rather than reaching the slave's OnReply.
	ProbeReplyOpcode = 0x01

	// ProbeInterval is how often unconnected slaves are probed.
	ProbeInterval = 2 * time.Second
	// WorkInterval is the nominal period between work-scheduler cycles.
	WorkInterval = 500 * time.Millisecond
	// WorkBackoff is the contention-backoff period used while the queue
	// is non-empty (spec.md §4.5, scenario S7).
	WorkBackoff = 100 * time.Millisecond

	// readBufSize is the chunk size read from the TTY per readiness event.
	readBufSize = 256
)

// Transport is the serial device the engine reads and writes.
type Transport interface {
	io.Reader
	io.Writer
	Fd() int
}

// Metrics is the optional observability sink the engine reports into.
// A nil Metrics is valid; every call is a no-op guard at the call site.
type Metrics interface {
	TransactionStarted()
	TransactionTimedOut()
	TransactionCompleted()
	ChecksumError()
	SlaveConnected(addr byte)
	SlaveDisconnected(addr byte)
	QueueDepth(n int)
}

// Engine is the bus master's state machine.
type Engine struct {
	reactor   reactor.Reactor
	registry  *registry.Registry
	queue     *txqueue.Queue
	transport Transport
	log       *logrus.Entry
	metrics   Metrics

	probeTick reactor.Timer
	workTick  reactor.Timer

	buf []byte
}

// New wires a fresh Engine around transport, with capacity slave slots.
// log may be nil (a discarding logger is used); metrics may be nil.
func New(r reactor.Reactor, transport Transport, capacity int, log *logrus.Entry, m Metrics) (*Engine, error) {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = logrus.NewEntry(discard)
	}
	e := &Engine{
		reactor:   r,
		transport: transport,
		log:       log,
		metrics:   m,
		buf:       make([]byte, 0, readBufSize*2),
	}
	e.registry = registry.New(r, capacity, e.onSlaveStale)

	q, err := txqueue.New(r, transport, e.onResponseTimeout, e.onTransmit)
	if err != nil {
		return nil, err
	}
	e.queue = q

	probeTick, err := r.NewTimer(e.onProbeTick)
	if err != nil {
		return nil, err
	}
	e.probeTick = probeTick

	workTick, err := r.NewTimer(e.onWorkTick)
	if err != nil {
		return nil, err
	}
	e.workTick = workTick

	if err := r.AddReader(transport.Fd(), e.onReadable); err != nil {
		return nil, err
	}
	return e, nil
}

// Registry exposes the slave table for startup-time Add calls.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Start arms the probe and work schedulers. Call once before running the
// reactor.
func (e *Engine) Start() {
	e.probeTick.ArmPeriodic(ProbeInterval)
	e.workTick.Arm(WorkInterval)
}

func (e *Engine) onTransmit(p *txqueue.Pending) {
	if e.metrics != nil {
		e.metrics.TransactionStarted()
		e.metrics.QueueDepth(e.queue.Len())
	}
	e.log.WithFields(logrus.Fields{"txn": p.ID.String(), "dest": p.Dest}).Debug("transmitted frame")
}

func (e *Engine) onResponseTimeout(p *txqueue.Pending) {
	if e.metrics != nil {
		e.metrics.TransactionTimedOut()
	}
	e.log.WithFields(logrus.Fields{"txn": p.ID.String(), "dest": p.Dest}).Warn("response timeout")
}

func (e *Engine) onSlaveStale(addr byte) {
	if e.metrics != nil {
		e.metrics.SlaveDisconnected(addr)
	}
	e.log.WithField("addr", addr).Warn("slave went stale")
}

// onReadable drains one readiness event's worth of bytes and extracts as
// many complete frames as are available.
func (e *Engine) onReadable() {
	chunk := make([]byte, readBufSize)
	n, err := e.transport.Read(chunk)
	if n > 0 {
		e.buf = append(e.buf, chunk[:n]...)
		e.drainFrames()
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			e.log.Error("tty at eof, bus is gone")
			e.reactor.Stop(buserr.Wrap("onReadable", buserr.ErrTtyEOF))
			return
		}
		e.log.WithError(err).Warn("tty read error")
	}
}

// drainFrames repeatedly scans e.buf for complete frames, dispatching
// each and dropping consumed/garbage bytes, until only an incomplete
// trailing frame (or nothing) remains.
func (e *Engine) drainFrames() {
	for {
		r, discard, ok := frame.Scan(e.buf)
		if !ok {
			if discard > 0 {
				e.buf = e.buf[discard:]
			}
			return
		}
		framed := e.buf[r.Start:r.End]
		e.onFrame(framed)
		e.buf = e.buf[r.End:]
	}
}

// onFrame attributes a located, delimited frame to the outstanding
// transaction (if any) and advances the transaction regardless of
// whether it parses cleanly (spec.md §3, §4.6): a reply is positionally
// attributed to the head even when it is corrupt, because the bus has
// no other way to tell which request it answers.
func (e *Engine) onFrame(framed []byte) {
	head := e.queue.Head()
	if head == nil {
		e.log.Debug("discarding unsolicited frame")
		return
	}

	payload, err := frame.Parse(framed)
	if err != nil {
		if errors.Is(err, buserr.ErrChecksumMismatch) && e.metrics != nil {
			e.metrics.ChecksumError()
		}
		e.log.WithError(err).WithField("dest", head.Dest).Warn("dropping malformed reply")
		e.queue.OnReplyReceived()
		return
	}

	if err := e.dispatch(head.Dest, payload); err != nil {
		e.log.WithError(err).WithField("dest", head.Dest).Warn("reply for unknown slave")
	}
	if e.metrics != nil {
		e.metrics.TransactionCompleted()
	}
	e.queue.OnReplyReceived()
}

// dispatch routes payload to the registry entry at dest. It returns
// buserr.ErrUnknownSlave when dest isn't registered; the transaction
// still advances regardless (spec.md §4.6), since the reply positionally
// belonged to the head whether or not the core recognizes its sender.
func (e *Engine) dispatch(dest byte, payload []byte) error {
	entry, ok := e.registry.Lookup(dest)
	if !ok {
		return buserr.Wrap("dispatch", buserr.ErrUnknownSlave)
	}

	if len(payload) >= 2 && payload[1] == ProbeReplyOpcode {
		wasConnected := entry.Connected
		e.registry.MarkAlive(entry)
		if !wasConnected {
			e.log.WithField("addr", dest).Info("slave connected")
			if e.metrics != nil {
				e.metrics.SlaveConnected(dest)
			}
		}
		if po, ok := entry.Handler.(registry.ProbeObserver); ok {
			po.OnProbe()
		}
		return nil
	}

	if err := entry.Handler.OnReply(payload); err != nil {
		e.log.WithError(err).WithField("addr", dest).Warn("slave handler rejected reply")
	}
	e.registry.MarkAlive(entry)
	return nil
}

// onProbeTick enqueues a probe for every slave not currently connected
// (spec.md §4.5, scenario S5).
func (e *Engine) onProbeTick() {
	for _, entry := range e.registry.Occupied() {
		if entry.Connected {
			continue
		}
		framed, err := frame.Build([]byte{entry.Address, ProbeOpcode})
		if err != nil {
			continue
		}
		if _, err := e.queue.Enqueue(framed, entry.Address); err != nil {
			e.log.WithError(err).WithField("addr", entry.Address).Warn("failed to enqueue probe")
		}
	}
}

// onWorkTick asks each slave for a request once per cycle, backing off
// to WorkBackoff while the queue is busy (spec.md §4.5, scenario S7).
func (e *Engine) onWorkTick() {
	if e.queue.Len() > 0 {
		e.workTick.Arm(WorkBackoff)
		return
	}
	for _, entry := range e.registry.Occupied() {
		buf := make([]byte, frame.MaxPayloadLen)
		n, ok := entry.Handler.NextRequest(buf)
		if !ok || n < frame.MinPayloadLen || n > frame.MaxPayloadLen {
			continue
		}
		buf[0] = entry.Address
		framed, err := frame.Build(buf[:n])
		if err != nil {
			e.log.WithError(err).WithField("addr", entry.Address).Warn("failed to build request")
			continue
		}
		if _, err := e.queue.Enqueue(framed, entry.Address); err != nil {
			e.log.WithError(err).WithField("addr", entry.Address).Warn("failed to enqueue request")
		}
	}
	e.workTick.Arm(WorkInterval)
}
