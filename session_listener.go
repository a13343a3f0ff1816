package phoneauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// sessionListeners fans identity session changes out to engine watchers,
// attaching the profile for non-anonymous principals. Profile loads run
// asynchronously; a watcher that unsubscribed while a load was in flight
// never hears the late result.
type sessionListeners struct {
	engine *Engine

	mu      sync.Mutex
	next    uint64
	entries map[uint64]*sessionWatcher
	closed  bool
}

type sessionWatcher struct {
	fn          func(SessionUpdate)
	live        atomic.Bool
	unsubscribe func()
}

func newSessionListeners(e *Engine) *sessionListeners {
	return &sessionListeners{
		engine:  e,
		entries: make(map[uint64]*sessionWatcher),
	}
}

// WatchSession subscribes fn to session updates. fn receives a nil
// Principal on sign-out. The returned function detaches the watcher;
// after it returns, fn is never called again.
func (e *Engine) WatchSession(fn func(SessionUpdate)) (unsubscribe func()) {
	if e == nil || e.listeners == nil || fn == nil {
		return func() {}
	}
	return e.listeners.watch(fn)
}

func (l *sessionListeners) watch(fn func(SessionUpdate)) func() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return func() {}
	}
	id := l.next
	l.next++
	w := &sessionWatcher{fn: fn}
	w.live.Store(true)
	l.entries[id] = w
	l.mu.Unlock()

	inner := l.engine.identity.OnSessionChange(func(p *Principal) {
		l.deliver(w, p)
	})

	w.unsubscribe = inner

	var once sync.Once
	return func() {
		once.Do(func() {
			w.live.Store(false)
			if inner != nil {
				inner()
			}
			l.mu.Lock()
			delete(l.entries, id)
			l.mu.Unlock()
		})
	}
}

func (l *sessionListeners) deliver(w *sessionWatcher, p *Principal) {
	if !w.live.Load() {
		return
	}

	if p == nil || p.Anonymous {
		w.fn(SessionUpdate{Principal: p})
		return
	}

	// Signal the signed-in principal immediately; the profile follows
	// once loaded.
	w.fn(SessionUpdate{Principal: p})

	go func() {
		profile, err := l.engine.profiles.Get(context.Background(), p.ID)
		if err != nil {
			l.engine.log.Warn().Str("principal_id", p.ID).Msg("phoneauth: profile load for session watcher failed")
			return
		}
		if !w.live.Load() {
			return
		}
		w.fn(SessionUpdate{Principal: p, Profile: profile})
	}()
}

func (l *sessionListeners) close() {
	l.mu.Lock()
	entries := make([]*sessionWatcher, 0, len(l.entries))
	for _, w := range l.entries {
		entries = append(entries, w)
	}
	l.entries = make(map[uint64]*sessionWatcher)
	l.closed = true
	l.mu.Unlock()

	for _, w := range entries {
		w.live.Store(false)
		if w.unsubscribe != nil {
			w.unsubscribe()
		}
	}
}
