// Package notify provides a generic publish/subscribe primitive used to back
// every Observable named in the external interfaces: train positions,
// destinations, reservation lists, and reservation holders all flow through
// a Multiplexer rather than a bespoke channel protocol per observable.
package notify

import (
	"os"
	"runtime/pprof"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

// DefaultMultiplexerTimeout is used by callers that construct a
// Multiplexer without threading a config.Config through (mainly tests).
// Production callers should pass config.Config.MultiplexerTimeout instead.
const DefaultMultiplexerTimeout = 200 * time.Millisecond

type subscriber[E any] struct {
	ch      chan E
	comment string
}

type MultiplexerSender[E any] struct {
	m *Multiplexer[E]
}

func (ms *MultiplexerSender[E]) Send(e E) {
	go ms.m.send(e)
}

// NewMultiplexerSender creates a Multiplexer that abandons a subscriber's
// delivery (logging the event) if it hasn't read within timeout. Send
// returns at once and never blocks the publisher; subscribers are served
// one after another, so a slow subscriber delays the later ones by up to
// timeout per event.
func NewMultiplexerSender[E any](comment string, timeout time.Duration) (*MultiplexerSender[E], *Multiplexer[E]) {
	m := &Multiplexer[E]{
		comment: comment,
		timeout: timeout,
	}
	return &MultiplexerSender[E]{m: m}, m
}

type Multiplexer[E any] struct {
	comment         string
	timeout         time.Duration
	subscribersLock sync.Mutex
	subscribers     []subscriber[E]
}

// subscribersLock must be taken!
func (m *Multiplexer[E]) cleanup() {
	last := len(m.subscribers) - 1
	if m.subscribers[last].ch == nil {
		return
	}
	for i, sub := range m.subscribers {
		if sub.ch == nil {
			m.subscribers[i], m.subscribers[last] = m.subscribers[last], subscriber[E]{}
			return
		}
	}
}

func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	sub := subscriber[E]{
		ch:      c,
		comment: comment,
	}
	last := len(m.subscribers) - 1
	if last >= 0 && m.subscribers[last].ch == nil {
		m.subscribers[last] = sub
		m.cleanup()
	} else {
		m.subscribers = append(m.subscribers, sub)
	}
}

func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers[i] = subscriber[E]{}
	m.cleanup()
}

func (m *Multiplexer[E]) send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		select {
		case sub.ch <- e:
		case <-time.After(m.timeout):
			m.logTimeout(sub, e)
		}
	}
}

func (m *Multiplexer[E]) logTimeout(sub subscriber[E], e E) {
	pprof.Lookup("goroutine").WriteTo(os.Stderr, 1)
	zap.S().Warnw("multiplexer subscriber timed out",
		"multiplexer", m.comment, "subscriber", sub.comment, "event", e)
}

// SubscriberCount reports the number of live subscribers, mainly useful in
// tests that assert Unsubscribe actually stops delivery.
func (m *Multiplexer[E]) SubscriberCount() int {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	n := 0
	for _, sub := range m.subscribers {
		if sub.ch != nil {
			n++
		}
	}
	return n
}
