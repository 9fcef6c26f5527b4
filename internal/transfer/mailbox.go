package transfer

import (
	"sync"
	"time"
)

type sample struct {
	current int64
	total   int64
	at      time.Time
}

// mailbox hands transport samples to the session loop. Puts never block: a
// sample that arrives before the previous one was taken replaces it, keeping
// the largest byte count seen.
type mailbox struct {
	mu     sync.Mutex
	latest sample
	has    bool
	ready  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) put(s sample) {
	m.mu.Lock()
	if !m.has || s.current >= m.latest.current {
		m.latest = s
	} else {
		m.latest.at = s.at
	}
	m.has = true
	m.mu.Unlock()

	m.wake()
}

func (m *mailbox) take() (sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.latest, m.has
	m.has = false

	return s, ok
}

// wake nudges the consumer without delivering a sample.
func (m *mailbox) wake() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
