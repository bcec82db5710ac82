package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/wichigo/Motium-sub012/internal/logging"
)

// DefaultInterval is the period of the background sync trigger.
const DefaultInterval = 30 * time.Minute

// RunTicker calls fire every interval until ctx is done.
func RunTicker(ctx context.Context, interval time.Duration, fire func()) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fire()
		case <-ctx.Done():
			return
		}
	}
}

// Pinger checks server reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OnlineWatcher pings the server periodically and fires when it becomes
// reachable again after being unreachable.
type OnlineWatcher struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	onOnline func()
	log      logging.Logger

	mu      sync.Mutex
	online  bool
	checked bool
}

func NewOnlineWatcher(p Pinger, interval time.Duration, onOnline func(), log logging.Logger) *OnlineWatcher {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &OnlineWatcher{
		pinger:   p,
		interval: interval,
		timeout:  3 * time.Second,
		onOnline: onOnline,
		log:      log,
	}
}

func (w *OnlineWatcher) Online() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}

// Run checks reachability until ctx is done.
func (w *OnlineWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check pings once and fires onOnline on an offline to online
// transition. The first successful ping does not count as a transition.
func (w *OnlineWatcher) Check(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(pctx)
	cancel()

	w.mu.Lock()
	was, checked := w.online, w.checked
	w.online = err == nil
	w.checked = true
	w.mu.Unlock()

	switch {
	case err != nil && was:
		w.log.Info(ctx, "server unreachable, switched to offline mode", "error", err)
	case err == nil && !was:
		w.log.Info(ctx, "server reachable, switched to online mode")
		if checked && w.onOnline != nil {
			w.onOnline()
		}
	}
}
