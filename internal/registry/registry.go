// Package registry is the bus master's slave table: a small, fixed-size,
// address-sorted set of slaves with liveness tracking (spec.md §4.4).
package registry

import (
	"sort"
	"time"

	"github.com/lakeside/poolbus/internal/buserr"
	"github.com/lakeside/poolbus/internal/reactor"
)

// StalenessWindow is how long a slave may stay silent before it is
// considered disconnected (spec.md §3, §4.4).
const StalenessWindow = 2 * time.Second

// Handler is the capability set a slave implementation provides
// (spec.md §6.2, design note §9: a small interface abstraction replacing
// the original's function-pointer table).
type Handler interface {
	// OnReply is invoked with the full unstuffed payload of a well-formed
	// reply routed to this slave. The opcode is payload[1].
	OnReply(payload []byte) error
	// NextRequest asks the slave for an application payload to send this
	// work cycle. Returning ok=false means "no request this cycle"; n is
	// the length written into buf (byte 0 is overwritten by the caller
	// with the slave's address before framing).
	NextRequest(buf []byte) (n int, ok bool)
}

// ProbeObserver is the optional hook a Handler may additionally
// implement to learn about probe completion; if absent, the engine's
// own probe handling (marking Connected) is the only effect.
type ProbeObserver interface {
	OnProbe()
}

// Entry is one slave's registry record.
type Entry struct {
	Address   byte
	Handler   Handler
	Connected bool

	staleness reactor.Timer
}

// Registry is a fixed-capacity, ascending-by-address table. Zero
// addresses mean an empty slot; the occupied prefix is always followed
// by a contiguous empty suffix (spec.md §3 invariant).
type Registry struct {
	entries  []*Entry
	count    int
	reactor  reactor.Reactor
	onStale  func(addr byte)
}

// New creates a Registry with the given fixed capacity (spec.md's hard
// cap on slaves, ≥ 10 in the reference implementation).
func New(r reactor.Reactor, capacity int, onStale func(addr byte)) *Registry {
	return &Registry{
		entries: make([]*Entry, 0, capacity),
		reactor: r,
		onStale: onStale,
	}
}

// Add inserts a new slave, preserving ascending address order.
func (r *Registry) Add(address byte, h Handler) (*Entry, error) {
	if address == 0 {
		return nil, buserr.Wrap("registry: add", buserr.ErrInvalidAddress)
	}
	idx := sort.Search(r.count, func(i int) bool { return r.entries[i].Address >= address })
	if idx < r.count && r.entries[idx].Address == address {
		return nil, buserr.Wrap("registry: add", buserr.ErrAlreadyPresent)
	}
	if r.count == cap(r.entries) {
		return nil, buserr.Wrap("registry: add", buserr.ErrRegistryFull)
	}
	e := &Entry{Address: address, Handler: h}
	r.entries = append(r.entries, nil)
	copy(r.entries[idx+1:], r.entries[idx:])
	r.entries[idx] = e
	r.count++
	return e, nil
}

// Lookup binary-searches the occupied prefix for address.
func (r *Registry) Lookup(address byte) (*Entry, bool) {
	idx := sort.Search(r.count, func(i int) bool { return r.entries[i].Address >= address })
	if idx < r.count && r.entries[idx].Address == address {
		return r.entries[idx], true
	}
	return nil, false
}

// Occupied returns the occupied entries in ascending address order. The
// returned slice is the registry's own backing storage up to its
// occupied prefix and must not be mutated or retained across an Add.
func (r *Registry) Occupied() []*Entry {
	return r.entries[:r.count]
}

// MarkAlive records a reply from e's slave: it becomes Connected and its
// staleness window is (re)armed. The staleness timer is created lazily,
// on the first reply, since a slave that has never answered has nothing
// to go stale from yet.
func (r *Registry) MarkAlive(e *Entry) {
	e.Connected = true
	if e.staleness == nil {
		addr := e.Address
		t, err := r.reactor.NewTimer(func() { r.onStalenessElapsed(e, addr) })
		if err != nil {
			// Without a timer the slave simply never goes stale; the bus
			// still functions, so this is not treated as fatal. The
			// failure is not reported to the caller.
			return
		}
		e.staleness = t
	}
	e.staleness.Arm(StalenessWindow)
}

func (r *Registry) onStalenessElapsed(e *Entry, addr byte) {
	e.Connected = false
	if r.onStale != nil {
		r.onStale(addr)
	}
}
