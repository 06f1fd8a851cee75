// Package authstate holds the shared "is a user logged in" flag of one browser
// session and broadcasts its changes to whatever renders the UI.
package authstate

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ghassenk/jewelstore/internal/session"
)

// LogoutCaller revokes a token on the identity service.
type LogoutCaller interface {
	Logout(ctx context.Context, token string) error
}

// Watchable reports session changes made through other storage handles.
type Watchable interface {
	Watch(ctx context.Context, fn func(session.Change)) (func(), error)
}

// Context is the single source of truth for IsLoggedIn.
type Context struct {
	store  session.Store
	logger *log.Logger

	mu       sync.Mutex
	loggedIn bool
	subs     map[int]func(bool)
	nextID   int
	stop     func()
}

// New creates a Context initialised from the store's presence check.
func New(ctx context.Context, store session.Store, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.Default()
	}
	return &Context{
		store:    store,
		logger:   logger,
		loggedIn: store.IsAuthenticated(ctx),
		subs:     make(map[int]func(bool)),
	}
}

func (c *Context) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Set updates the flag and notifies subscribers when it changes.
func (c *Context) Set(loggedIn bool) {
	c.mu.Lock()
	if c.loggedIn == loggedIn {
		c.mu.Unlock()
		return
	}
	c.loggedIn = loggedIn
	subs := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(loggedIn)
	}
}

// Refresh re-derives the flag from the store.
func (c *Context) Refresh(ctx context.Context) bool {
	v := c.store.IsAuthenticated(ctx)
	c.Set(v)
	return v
}

// Subscribe registers fn for flag changes. The returned func unregisters it.
func (c *Context) Subscribe(fn func(loggedIn bool)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Listen re-derives the flag whenever another handle changes the session.
func (c *Context) Listen(ctx context.Context, w Watchable) error {
	stop, err := w.Watch(ctx, func(session.Change) {
		c.Refresh(context.Background())
	})
	if err != nil {
		return fmt.Errorf("watch session: %w", err)
	}

	c.mu.Lock()
	prev := c.stop
	c.stop = stop
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

// SignOut revokes the token remotely, then clears the session whatever the
// remote outcome was.
func (c *Context) SignOut(ctx context.Context, caller LogoutCaller) error {
	if rec, ok := c.store.Current(ctx); ok && caller != nil {
		if err := caller.Logout(ctx, rec.Token); err != nil {
			c.logger.Printf("WARN: logout call failed, clearing session anyway: %v", err)
		}
	}

	err := c.store.Logout(ctx)
	if err != nil {
		c.logger.Printf("ERROR: clear session: %v", err)
	}
	c.Set(false)
	return err
}

// Close stops listening for storage changes and drops all subscribers.
func (c *Context) Close() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.subs = make(map[int]func(bool))
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
