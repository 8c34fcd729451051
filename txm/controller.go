package txm

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/txmlab/go-txm/logger"
	"github.com/txmlab/go-txm/pv"
)

// Controller exposes a table of process-variable bindings as named, typed
// attributes with permit-gated writes and scoped wait coordination.
//
// A Controller owns its transport connections exclusively; they are created
// lazily on first access per binding and live until Close. One logical caller
// drives a controller at a time; concurrent use must be serialized externally.
type Controller struct {
	cfg      config
	bindings map[string]Binding
	order    []string
	conns    *xsync.MapOf[string, pv.Conn]
	logger   logger.Logger

	mu    sync.Mutex
	scope *waitScope
}

// New creates a controller over the given binding table.
//
// Without WithTransport the controller drives the in-memory simulated
// transport, the equivalent of operating detached from the instrument.
func New(bindings []Binding, opts ...Option) (*Controller, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.transport == nil {
		cfg.transport = pv.NewSimTransport()
	}

	table, err := tableOf(bindings)
	if err != nil {
		return nil, err
	}

	order := make([]string, len(bindings))
	for i, b := range bindings {
		order[i] = b.Name
	}

	return &Controller{
		cfg:      cfg,
		bindings: table,
		order:    order,
		conns:    xsync.NewMapOf[string, pv.Conn](),
		logger:   cfg.logger,
	}, nil
}

// HasPermit reports whether this controller holds the operating permit.
func (c *Controller) HasPermit() bool { return c.cfg.hasPermit }

// Bindings returns the binding table in declaration order.
func (c *Controller) Bindings() []Binding {
	out := make([]Binding, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.bindings[name])
	}

	return out
}

// Lookup returns the binding declared under name.
func (c *Controller) Lookup(name string) (Binding, bool) {
	b, ok := c.bindings[name]
	return b, ok
}

// Address returns the fully expanded remote address of a binding.
func (c *Controller) Address(name string) (string, error) {
	b, ok := c.bindings[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBinding, name)
	}

	return b.expandAddress(c.cfg.iocPrefix), nil
}

// Get reads the current value of a binding, coerced to its declared type.
func (c *Controller) Get(name string) (any, error) {
	b, ok := c.bindings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBinding, name)
	}

	conn, err := c.conn(b)
	if err != nil {
		return nil, err
	}

	raw, err := conn.Get()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", b, err)
	}

	val, err := pv.Coerce(b.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", b, err)
	}

	return val, nil
}

// GetFloat reads a FloatType binding.
func (c *Controller) GetFloat(name string) (float64, error) {
	v, err := c.Get(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s holds %T, not float", pv.ErrCoercion, name, v)
	}

	return f, nil
}

// GetInt reads an IntType or EnumType binding.
func (c *Controller) GetInt(name string) (int64, error) {
	v, err := c.Get(name)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %s holds %T, not int", pv.ErrCoercion, name, v)
	}

	return i, nil
}

// GetString reads a StringType binding.
func (c *Controller) GetString(name string) (string, error) {
	v, err := c.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s holds %T, not string", pv.ErrCoercion, name, v)
	}

	return s, nil
}

// Put writes a value to a binding using the binding's default wait policy.
//
// When the controller lacks the operating permit and the binding is
// permit-gated, Put returns nil without touching the transport.
// Inside an active wait scope the write is always fired non-blocking and its
// completion joined at scope exit.
func (c *Controller) Put(name string, value any) error {
	_, err := c.TryPut(name, value)
	return err
}

// PutWait writes a value with an explicit wait policy for this call only; the
// binding's declared default is unchanged. An active wait scope still wins:
// the write is fired non-blocking and joined at scope exit regardless of wait.
func (c *Controller) PutWait(name string, value any, wait bool) error {
	_, err := c.TryPutWait(name, value, wait)
	return err
}

// TryPut writes like Put and additionally reports whether the permit gate
// skipped the write. The skip itself is still not an error; callers that must
// surface it, such as the monitoring API, use this variant.
func (c *Controller) TryPut(name string, value any) (skipped bool, err error) {
	b, ok := c.bindings[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBinding, name)
	}

	return c.putBinding(b, value, b.Wait)
}

// TryPutWait writes like PutWait and additionally reports whether the permit
// gate skipped the write.
func (c *Controller) TryPutWait(name string, value any, wait bool) (skipped bool, err error) {
	b, ok := c.bindings[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownBinding, name)
	}

	return c.putBinding(b, value, wait)
}

// WaitFor polls a binding until it equals target or timeout elapses.
//
// It is the cross-variable confirmation primitive: set an actuator's command
// PV, then wait on its separate readback PV. Equality follows the binding's
// value kind, so WaitFor("Shutter_Status", 0, ...) matches a readback of 0.0.
// On expiry it fails with an error wrapping pv.ErrTimeout.
func (c *Controller) WaitFor(name string, target any, timeout time.Duration) error {
	b, ok := c.bindings[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBinding, name)
	}

	want, err := pv.Coerce(b.Type, target)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", b, err)
	}

	c.logger.Debug("wait for readback", "binding", b.Name, "target", want, "timeout", timeout)

	// give the device a poll interval to react before the first read
	time.Sleep(c.cfg.pollInterval)

	deadline := time.Now().Add(timeout)
	for {
		cur, err := c.Get(name)
		if err != nil {
			return err
		}
		if cur == want {
			c.logger.Debug("readback reached target", "binding", b.Name, "target", want)
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("wait for %s to reach %v: %w", b, want, pv.ErrTimeout)
		}
		time.Sleep(c.cfg.pollInterval)
	}
}

// Close tears down every live transport connection. The controller must not
// be used afterwards.
func (c *Controller) Close() error {
	var firstErr error
	c.conns.Range(func(name string, conn pv.Conn) bool {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
		c.conns.Delete(name)

		return true
	})

	return firstErr
}

// putBinding is the single write path shared by the put methods and the
// instrument operations:
//
//	permit check -> coerce -> scope policy -> transport put -> record pending
//
// The returned skipped flag is the permit gate's decision; it is the only
// place that decision is made.
func (c *Controller) putBinding(b Binding, value any, wait bool) (skipped bool, err error) {
	if b.PermitRequired && !c.cfg.hasPermit {
		// silent no-op: lets scripts run unmodified without a permit
		c.logger.Warn("put skipped, no operating permit",
			"binding", b.Name, "address", b.expandAddress(c.cfg.iocPrefix))
		return true, nil
	}

	wire, err := pv.Coerce(b.Type, value)
	if err != nil {
		return false, fmt.Errorf("put %s: %w", b, err)
	}

	conn, err := c.conn(b)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	sc := c.scope
	c.mu.Unlock()

	if sc != nil {
		// inside a scope every put fires non-blocking; completion is joined
		// collectively at scope exit
		if err := conn.Put(wire, false, c.cfg.putTimeout); err != nil {
			return false, fmt.Errorf("put %s: %w", b, err)
		}
		sc.add(b.Name)
		c.logger.Debug("put deferred to wait scope", "binding", b.Name, "value", wire)

		return false, nil
	}

	c.logger.Debug("put", "binding", b.Name, "value", wire, "wait", wait)
	if err := conn.Put(wire, wait, c.cfg.putTimeout); err != nil {
		return false, fmt.Errorf("put %s: %w", b, err)
	}

	return false, nil
}

// conn resolves the live connection for a binding, creating it on first use.
func (c *Controller) conn(b Binding) (pv.Conn, error) {
	if conn, ok := c.conns.Load(b.Name); ok {
		return conn, nil
	}

	address := b.expandAddress(c.cfg.iocPrefix)
	conn, err := c.cfg.transport.Connect(address)
	if err != nil {
		return nil, fmt.Errorf("connect %s (%s): %w", b, address, err)
	}

	actual, loaded := c.conns.LoadOrStore(b.Name, conn)
	if loaded {
		_ = conn.Close()
	}

	return actual, nil
}
