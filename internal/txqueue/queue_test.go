package txqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/lakeside/poolbus/internal/buserr"
	"github.com/lakeside/poolbus/internal/reactor"
)

type fakeTimer struct {
	cb    func()
	armed bool
}

func (t *fakeTimer) Arm(time.Duration)         { t.armed = true }
func (t *fakeTimer) ArmPeriodic(time.Duration) { t.armed = true }
func (t *fakeTimer) Cancel()                   { t.armed = false }

type fakeReactor struct {
	timers []*fakeTimer
}

func (f *fakeReactor) NewTimer(cb func()) (reactor.Timer, error) {
	t := &fakeTimer{cb: cb}
	f.timers = append(f.timers, t)
	return t, nil
}
func (f *fakeReactor) AddReader(int, func()) error { return nil }
func (f *fakeReactor) RemoveReader(int) error      { return nil }
func (f *fakeReactor) Run() error                  { return nil }
func (f *fakeReactor) Stop(error)                  {}

// deadlineTimer and gapTimer return New's two timers in creation order.
func (f *fakeReactor) deadlineTimer() *fakeTimer { return f.timers[0] }
func (f *fakeReactor) gapTimer() *fakeTimer      { return f.timers[1] }

type fakeWriter struct {
	writes [][]byte
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	w.writes = append(w.writes, cp)
	return len(p), nil
}

func TestEnqueueTransmitsImmediatelyWhenIdle(t *testing.T) {
	fr := &fakeReactor{}
	w := &fakeWriter{}
	q, err := New(fr, w, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue([]byte{0x10, 0x02, 0x68, 0x25, 0x9f, 0x10, 0x03}, 0x68); err != nil {
		t.Fatal(err)
	}
	if len(w.writes) != 1 {
		t.Fatalf("got %d writes, want 1", len(w.writes))
	}
	if !fr.deadlineTimer().armed {
		t.Fatal("expected response deadline armed")
	}
}

func TestSingleInFlightHoldsSecondFrame(t *testing.T) {
	fr := &fakeReactor{}
	w := &fakeWriter{}
	q, _ := New(fr, w, nil, nil)
	q.Enqueue([]byte{0x10, 0x02, 0x68, 0x25, 0x9f, 0x10, 0x03}, 0x68)
	q.Enqueue([]byte{0x10, 0x02, 0x30, 0x25, 0x67, 0x10, 0x03}, 0x30)
	if len(w.writes) != 1 {
		t.Fatalf("expected only the head transmitted, got %d writes", len(w.writes))
	}
	if q.Len() != 2 {
		t.Fatalf("got queue len %d, want 2", q.Len())
	}
}

func TestReplyAdvancesQueueAfterGap(t *testing.T) {
	fr := &fakeReactor{}
	w := &fakeWriter{}
	q, _ := New(fr, w, nil, nil)
	q.Enqueue([]byte{0x10, 0x02, 0x68, 0x25, 0x9f, 0x10, 0x03}, 0x68)
	q.Enqueue([]byte{0x10, 0x02, 0x30, 0x25, 0x67, 0x10, 0x03}, 0x30)

	q.OnReplyReceived()
	if fr.deadlineTimer().armed {
		t.Fatal("expected response deadline cancelled")
	}
	if q.Len() != 1 {
		t.Fatalf("expected head removed, got len %d", q.Len())
	}
	if len(w.writes) != 1 {
		t.Fatal("second frame must not transmit before the gap elapses")
	}

	fr.gapTimer().cb()
	if len(w.writes) != 2 {
		t.Fatalf("expected second frame transmitted after gap, got %d writes", len(w.writes))
	}
}

func TestTimeoutRemovesHeadAndCallsOnTimeout(t *testing.T) {
	fr := &fakeReactor{}
	w := &fakeWriter{}
	var timedOut byte
	q, _ := New(fr, w, func(p *Pending) { timedOut = p.Dest }, nil)
	q.Enqueue([]byte{0x10, 0x02, 0x68, 0x25, 0x9f, 0x10, 0x03}, 0x68)
	q.Enqueue([]byte{0x10, 0x02, 0x30, 0x25, 0x67, 0x10, 0x03}, 0x30)

	fr.deadlineTimer().cb()
	if timedOut != 0x68 {
		t.Fatalf("got onTimeout dest=%x, want 0x68", timedOut)
	}
	if q.Len() != 1 {
		t.Fatalf("expected head removed, got len %d", q.Len())
	}
	// Timeout starts the next head immediately, no interframe gap.
	if len(w.writes) != 2 {
		t.Fatalf("expected next head transmitted without a gap, got %d writes", len(w.writes))
	}
}

func TestEnqueueRejectsOversizedFrame(t *testing.T) {
	fr := &fakeReactor{}
	w := &fakeWriter{}
	q, _ := New(fr, w, nil, nil)
	big := make([]byte, 40)
	_, err := q.Enqueue(big, 0x01)
	if !errors.Is(err, buserr.ErrOversizedFrame) {
		t.Fatalf("got %v, want ErrOversizedFrame", err)
	}
}
