package syncer

import (
	"sync"
	"time"
)

type State string

const (
	StateIdle    State = "IDLE"
	StateSyncing State = "SYNCING"
	StateBackoff State = "BACKOFF"
)

// Status is a snapshot of the engine published on every state change.
type Status struct {
	State      State
	LastSyncAt time.Time
	LastError  string
	// RetryAt is set in BACKOFF: the engine's own retry is due then.
	RetryAt time.Time
}

// broadcaster fans status snapshots out to observers. Slow observers miss
// intermediate snapshots but always see the latest one.
type broadcaster struct {
	mu      sync.Mutex
	current Status
	subs    map[chan Status]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		current: Status{State: StateIdle},
		subs:    make(map[chan Status]struct{}),
	}
}

func (b *broadcaster) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *broadcaster) publish(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = s
	for ch := range b.subs {
		deliver(ch, s)
	}
}

// deliver replaces a stale buffered snapshot with s.
func deliver(ch chan Status, s Status) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

func (b *broadcaster) subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	ch <- b.current
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
