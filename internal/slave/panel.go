package slave

import "github.com/sirupsen/logrus"

// Panel is a reference registry.Handler for a wired control panel: it has
// no application-level requests of its own and only cares about
// connection state, via the optional registry.ProbeObserver hook.
type Panel struct {
	log       *logrus.Entry
	Connected int
}

// NewPanel returns a Panel that logs probe replies through log.
func NewPanel(log *logrus.Entry) *Panel {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Panel{log: log}
}

// OnReply is never expected to fire: a panel never appears as a
// get_next_request target in this reference implementation, so the
// core only ever routes it probe replies (handled internally).
func (p *Panel) OnReply(payload []byte) error {
	p.log.WithField("payload", payload).Debug("unexpected panel reply")
	return nil
}

// NextRequest always declines: a panel has no application requests.
func (p *Panel) NextRequest([]byte) (int, bool) {
	return 0, false
}

// OnProbe records a successful probe reply.
func (p *Panel) OnProbe() {
	p.Connected++
}
