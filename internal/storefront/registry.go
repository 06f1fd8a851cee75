package storefront

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ghassenk/jewelstore/internal/authstate"
	"github.com/ghassenk/jewelstore/internal/challenge"
	"github.com/ghassenk/jewelstore/internal/session"
)

// Event types pushed to websocket clients.
const (
	EventSession  = "session"
	EventNavigate = "navigate"
	EventNotice   = "notice"
)

// Event is one message on /ws/session.
type Event struct {
	Type       string            `json:"type"`
	IsLoggedIn *bool             `json:"isLoggedIn,omitempty"`
	Path       string            `json:"path,omitempty"`
	Flow       challenge.Flow    `json:"flow,omitempty"`
	Notice     *challenge.Notice `json:"notice,omitempty"`
}

func sessionEvent(loggedIn bool) Event {
	return Event{Type: EventSession, IsLoggedIn: &loggedIn}
}

// StorageFactory returns the session storage scope of browser session sid.
type StorageFactory func(sid string) session.Storage

type toucher interface {
	Touch(ctx context.Context) error
}

// Browser is the server-side state of one browser session: its Token Store,
// auth context, open login forms and websocket listeners.
type Browser struct {
	ID    string
	Store *session.TokenStore
	Auth  *authstate.Context

	storage session.Storage
	logger  *log.Logger

	mu       sync.Mutex
	machines map[challenge.Flow]*challenge.Machine
	subs     map[int]chan Event
	nextSub  int
	lastSeen  time.Time
	closed    bool
	listening bool
	unsub     func()
}

func newBrowser(ctx context.Context, sid string, storage session.Storage, logger *log.Logger, now time.Time) *Browser {
	store := session.NewTokenStore(storage, logger)
	b := &Browser{
		ID:       sid,
		Store:    store,
		Auth:     authstate.New(ctx, store, logger),
		storage:  storage,
		logger:   logger,
		machines: make(map[challenge.Flow]*challenge.Machine),
		subs:     make(map[int]chan Event),
		lastSeen: now,
	}
	b.unsub = b.Auth.Subscribe(func(loggedIn bool) {
		b.Broadcast(sessionEvent(loggedIn))
	})
	return b
}

// listen starts the cross-handle listener on first use. Only websocket
// listeners need pushed changes; request handlers re-derive the flag.
func (b *Browser) listen(ctx context.Context) {
	b.mu.Lock()
	if b.listening || b.closed {
		b.mu.Unlock()
		return
	}
	b.listening = true
	b.mu.Unlock()

	if err := b.Auth.Listen(context.WithoutCancel(ctx), b.Store); err != nil {
		b.logger.Printf("WARN: session %s: cross-handle listener unavailable: %v", b.ID, err)
		b.mu.Lock()
		b.listening = false
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		b.Auth.Close()
	}
}

// Machine returns the open form for flow, creating it with create on first use.
func (b *Browser) Machine(flow challenge.Flow, create func() (*challenge.Machine, error)) (*challenge.Machine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.machines[flow]; ok {
		return m, nil
	}
	m, err := create()
	if err != nil {
		return nil, err
	}
	b.machines[flow] = m
	return m, nil
}

// Teardown closes the form for flow, cancelling its timers.
func (b *Browser) Teardown(flow challenge.Flow) {
	b.mu.Lock()
	m := b.machines[flow]
	delete(b.machines, flow)
	b.mu.Unlock()
	if m != nil {
		m.Close()
	}
}

// Subscribe registers a websocket listener. The returned func unregisters it.
func (b *Browser) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Broadcast delivers ev to every listener. Slow listeners miss events.
func (b *Browser) Broadcast(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Browser) touch(ctx context.Context, now time.Time) {
	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()
	if t, ok := b.storage.(toucher); ok {
		if err := t.Touch(ctx); err != nil {
			b.logger.Printf("WARN: session %s: refresh ttl: %v", b.ID, err)
		}
	}
}

// keepalive refreshes the storage TTL and re-derives the logged-in flag, so
// a session that expired in storage is reported to long-lived listeners.
func (b *Browser) keepalive(ctx context.Context, now time.Time) {
	b.touch(ctx, now)
	b.Auth.Refresh(ctx)
}

func (b *Browser) idleSince(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.subs) > 0 {
		return 0
	}
	return now.Sub(b.lastSeen)
}

// Close tears down every open form and listener.
func (b *Browser) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	machines := b.machines
	b.machines = make(map[challenge.Flow]*challenge.Machine)
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()

	for _, m := range machines {
		m.Close()
	}
	if b.unsub != nil {
		b.unsub()
	}
	b.Auth.Close()
}

// Registry tracks live browser sessions by id.
type Registry struct {
	newStorage StorageFactory
	idleTTL    time.Duration
	logger     *log.Logger
	now        func() time.Time

	mu       sync.Mutex
	browsers map[string]*Browser
}

// NewRegistry creates a registry whose sessions expire after idleTTL without
// requests or websocket listeners.
func NewRegistry(newStorage StorageFactory, idleTTL time.Duration, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		newStorage: newStorage,
		idleTTL:    idleTTL,
		logger:     logger,
		now:        time.Now,
		browsers:   make(map[string]*Browser),
	}
}

// Open returns the browser session sid, creating it if needed, and marks it
// as active.
func (r *Registry) Open(ctx context.Context, sid string) *Browser {
	now := r.now()
	r.mu.Lock()
	b, ok := r.browsers[sid]
	r.mu.Unlock()

	if !ok {
		// Storage reads happen outside the registry lock.
		fresh := newBrowser(context.WithoutCancel(ctx), sid, r.newStorage(sid), r.logger, now)
		r.mu.Lock()
		b, ok = r.browsers[sid]
		if !ok {
			b = fresh
			r.browsers[sid] = b
		}
		r.mu.Unlock()
		if ok {
			fresh.Close()
		}
	}

	b.touch(ctx, now)
	return b
}

// Len returns the number of live browser sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.browsers)
}

// Sweep closes sessions idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	now := r.now()
	var idle []*Browser

	r.mu.Lock()
	for sid, b := range r.browsers {
		if b.idleSince(now) > r.idleTTL {
			idle = append(idle, b)
			delete(r.browsers, sid)
		}
	}
	r.mu.Unlock()

	for _, b := range idle {
		b.Close()
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Printf("swept %d idle browser sessions", n)
			}
		}
	}
}

// Close tears down every session.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.browsers
	r.browsers = make(map[string]*Browser)
	r.mu.Unlock()
	for _, b := range all {
		b.Close()
	}
}
