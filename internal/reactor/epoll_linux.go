package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Epoll is the production Reactor, built directly on epoll(7) and
// timerfd(2): the engine's only scheduling substrate on the target
// platform (spec.md §6.4, Linux field-bus host).
//
// Every reader/timer callback runs on the Run goroutine with no
// locking, per spec.md §5's single-threaded invariant. Stop is the one
// exception: a signal handler calls it from a different goroutine
// (cmd/poolbusd), so stopping/stopErr are synchronized and an eventfd
// wakes a blocked epoll_wait immediately instead of waiting for the
// next bus event.
type Epoll struct {
	fd      int
	wakeFd  int
	readers map[int]func()
	timers  map[int]*fdTimer

	stopping atomic.Bool
	mu       sync.Mutex
	stopErr  error
}

// New creates an Epoll reactor. Callers must Close it when Run returns.
func New() (*Epoll, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(fd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: epoll_ctl(wake): %w", err)
	}
	return &Epoll{
		fd:      fd,
		wakeFd:  wakeFd,
		readers: make(map[int]func()),
		timers:  make(map[int]*fdTimer),
	}, nil
}

// Close releases the underlying epoll fd, the wake eventfd, and any
// timerfds it created.
func (e *Epoll) Close() error {
	for fd := range e.timers {
		unix.Close(fd)
	}
	unix.Close(e.wakeFd)
	return unix.Close(e.fd)
}

func (e *Epoll) AddReader(fd int, cb func()) error {
	e.readers[fd] = cb
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (e *Epoll) RemoveReader(fd int) error {
	delete(e.readers, fd)
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

type fdTimer struct {
	fd  int
	cb  func()
	epo *Epoll
}

func (e *Epoll) NewTimer(cb func()) (Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: timerfd_create: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: epoll_ctl(timer): %w", err)
	}
	t := &fdTimer{fd: fd, cb: cb, epo: e}
	e.timers[fd] = t
	return t, nil
}

func (t *fdTimer) Arm(d time.Duration) {
	spec := unix.ItimerSpec{Value: durationToTimespec(d)}
	_ = unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

func (t *fdTimer) ArmPeriodic(interval time.Duration) {
	ts := durationToTimespec(interval)
	spec := unix.ItimerSpec{Value: ts, Interval: ts}
	_ = unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

func (t *fdTimer) Cancel() {
	var spec unix.ItimerSpec
	_ = unix.TimerfdSettime(t.fd, 0, &spec, nil)
}

func durationToTimespec(d time.Duration) unix.Timespec {
	if d <= 0 {
		d = time.Nanosecond
	}
	return unix.NsecToTimespec(d.Nanoseconds())
}

// Stop asks Run to return err. It may be called from any goroutine (the
// signal handler in cmd/poolbusd calls it from outside the reactor
// loop), so the stop flag and error are synchronized, and a byte
// written to the wake eventfd unblocks a Run that is parked in
// epoll_wait.
func (e *Epoll) Stop(err error) {
	e.mu.Lock()
	e.stopErr = err
	e.mu.Unlock()
	e.stopping.Store(true)

	var one [8]byte
	one[7] = 1
	_, _ = unix.Write(e.wakeFd, one[:])
}

// Run dispatches readiness and timer events until Stop is called, either
// from another goroutine or by a reader/timer callback reporting a fatal
// error, and returns the error given to Stop.
func (e *Epoll) Run() error {
	events := make([]unix.EpollEvent, 16)
	var drain [8]byte
	for !e.stopping.Load() {
		n, err := unix.EpollWait(e.fd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == e.wakeFd:
				_, _ = unix.Read(fd, drain[:])
			case e.timers[fd] != nil:
				t := e.timers[fd]
				_, _ = unix.Read(fd, drain[:])
				t.cb()
			default:
				if cb, ok := e.readers[fd]; ok {
					cb()
				}
			}
			if e.stopping.Load() {
				break
			}
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopErr
}
