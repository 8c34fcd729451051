package txm

import "fmt"

// waitScope tracks the bindings written while a wait scope is active.
//
// The pending set accumulates only writes issued during the scope's lifetime.
// Names are kept in first-write order for deterministic joining, though no
// ordering across bindings is guaranteed to the caller; each join is
// independent.
type waitScope struct {
	block bool
	names []string
	seen  map[string]struct{}
}

func newWaitScope(block bool) *waitScope {
	return &waitScope{block: block, seen: make(map[string]struct{})}
}

func (s *waitScope) add(name string) {
	if _, dup := s.seen[name]; dup {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}

// BeginScope starts a wait scope with the given exit policy.
//
// While the scope is active every write fires non-blocking at the transport
// regardless of per-binding or per-call wait policy, and the binding's name is
// recorded for joining. Scopes do not nest: a second BeginScope fails with
// ErrScopeConflict and leaves the active scope untouched.
//
// With block true, EndScope joins every pending put before returning; with
// block false, EndScope returns immediately and the writes complete in the
// background.
func (c *Controller) BeginScope(block bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scope != nil {
		return ErrScopeConflict
	}
	c.scope = newWaitScope(block)
	c.logger.Debug("wait scope begun", "block", block)

	return nil
}

// EndScope closes the active wait scope.
//
// If the scope was begun with block=true, EndScope polls each pending put to
// completion. Joins are best-effort, fail-at-end: a timeout on one binding
// does not abandon the remaining joins; the first failure is returned after
// all pending bindings have been attempted. The active-scope marker is
// cleared unconditionally, on every path.
func (c *Controller) EndScope() error {
	c.mu.Lock()
	sc := c.scope
	c.scope = nil
	c.mu.Unlock()

	if sc == nil {
		return ErrNoActiveScope
	}
	if !sc.block {
		c.logger.Debug("wait scope ended without joining", "pending", len(sc.names))
		return nil
	}

	var firstErr error
	for _, name := range sc.names {
		conn, ok := c.conns.Load(name)
		if !ok {
			continue
		}
		if err := conn.PollCompletion(c.cfg.putTimeout); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("join %s: %w", name, err)
		}
	}
	c.logger.Debug("wait scope joined", "pending", len(sc.names), "error", firstErr)

	return firstErr
}

// InScope runs fn inside a wait scope, guaranteeing scope release on every
// exit path. When fn succeeds the scope is closed with EndScope and its
// result returned; when fn fails or panics the scope marker is cleared
// without joining, so the controller is never left stuck inside a scope.
func (c *Controller) InScope(block bool, fn func() error) error {
	if err := c.BeginScope(block); err != nil {
		return err
	}

	joined := false
	defer func() {
		if !joined {
			c.abortScope()
		}
	}()

	if err := fn(); err != nil {
		return err
	}

	joined = true

	return c.EndScope()
}

// ScopeActive reports whether a wait scope is currently open.
func (c *Controller) ScopeActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.scope != nil
}

// abortScope clears the scope marker without joining pending puts.
func (c *Controller) abortScope() {
	c.mu.Lock()
	c.scope = nil
	c.mu.Unlock()
}
