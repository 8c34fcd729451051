package pv

import (
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/xid"

	"github.com/txmlab/go-txm/logger"
)

// SimTransport is an in-memory Transport that simulates a control system.
//
// Every address resolves to a simulated variable holding its last written
// value. A per-address settle latency models the time a physical device takes
// to act on a put: the written value becomes visible, and the put reports
// complete, only after the latency has elapsed. Readback links model device
// pairs such as a shutter command PV and its separate move-status PV.
//
// SimTransport records put counts per address, which makes it double as the
// call-recording fake used throughout the go-txm tests. It is also the
// transport behind dry-run operation of the txmctl commands.
type SimTransport struct {
	vars         *xsync.MapOf[string, *simVar]
	unreachable  *xsync.MapOf[string, struct{}]
	pollInterval time.Duration
	logger       logger.Logger
}

type simLink struct {
	dst   string
	value any
}

type simVar struct {
	mu         sync.Mutex
	value      any
	target     any
	pending    bool
	completeAt time.Time
	latency    time.Duration
	putCount   int
	links      []simLink
}

type simConn struct {
	tr      *SimTransport
	address string
	v       *simVar
	closed  bool
}

var (
	_ Transport = (*SimTransport)(nil)
	_ Conn      = (*simConn)(nil)
)

// NewSimTransport creates a simulated transport with no variables defined.
// Variables spring into existence on first access with an initial value of 0.
func NewSimTransport() *SimTransport {
	return &SimTransport{
		vars:         xsync.NewMapOf[string, *simVar](),
		unreachable:  xsync.NewMapOf[string, struct{}](),
		pollInterval: time.Millisecond,
		logger:       logger.GetLogger(),
	}
}

// SetLogger replaces the logger used for simulated transport events.
func (t *SimTransport) SetLogger(l logger.Logger) {
	if l != nil {
		t.logger = l
	}
}

// Connect resolves address to a simulated connection. It fails with an error
// wrapping ErrConnection if the address was marked unreachable.
func (t *SimTransport) Connect(address string) (Conn, error) {
	if _, bad := t.unreachable.Load(address); bad {
		return nil, fmt.Errorf("%w: %s", ErrConnection, address)
	}

	return &simConn{tr: t, address: address, v: t.variable(address)}, nil
}

// Seed sets the current value of a simulated variable without counting as a put.
func (t *SimTransport) Seed(address string, value any) {
	v := t.variable(address)
	v.mu.Lock()
	v.value = value
	v.pending = false
	v.mu.Unlock()
}

// SetLatency sets the settle latency for an address. Puts issued to the
// address complete, and their values become readable, only after d elapses.
func (t *SimTransport) SetLatency(address string, d time.Duration) {
	v := t.variable(address)
	v.mu.Lock()
	v.latency = d
	v.mu.Unlock()
}

// MarkUnreachable makes subsequent Connect calls for address fail with
// ErrConnection.
func (t *SimTransport) MarkUnreachable(address string) {
	t.unreachable.Store(address, struct{}{})
}

// Link installs a readback link: whenever a put to src completes, the
// variable at dst is set to value. Typical use is a command PV whose effect
// is observed on a separate status PV, e.g. a shutter open command and the
// shutter position readback.
func (t *SimTransport) Link(src, dst string, value any) {
	v := t.variable(src)
	v.mu.Lock()
	v.links = append(v.links, simLink{dst: dst, value: value})
	v.mu.Unlock()
}

// PutCount returns how many puts have been issued to address.
func (t *SimTransport) PutCount(address string) int {
	v := t.variable(address)
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.putCount
}

// Value returns the currently visible value of address, settling any put whose
// latency has already elapsed.
func (t *SimTransport) Value(address string) any {
	v := t.variable(address)
	v.mu.Lock()
	defer v.mu.Unlock()

	t.settleLocked(v)

	return v.value
}

func (t *SimTransport) variable(address string) *simVar {
	v, _ := t.vars.LoadOrCompute(address, func() *simVar {
		return &simVar{value: int64(0)}
	})
	return v
}

// settleLocked commits a pending put whose settle time has passed and applies
// readback links. The caller must hold v.mu.
func (t *SimTransport) settleLocked(v *simVar) {
	if !v.pending || time.Now().Before(v.completeAt) {
		return
	}

	v.value = v.target
	v.pending = false

	for _, link := range v.links {
		dst := t.variable(link.dst)
		if dst == v {
			v.value = link.value
			continue
		}
		dst.mu.Lock()
		dst.value = link.value
		dst.pending = false
		dst.mu.Unlock()
	}
}

func (c *simConn) Address() string { return c.address }

func (c *simConn) Get() (any, error) {
	if c.closed {
		return nil, ErrConnClosed
	}

	c.v.mu.Lock()
	defer c.v.mu.Unlock()

	c.tr.settleLocked(c.v)

	return c.v.value, nil
}

func (c *simConn) Put(value any, wait bool, timeout time.Duration) error {
	if c.closed {
		return ErrConnClosed
	}

	putID := xid.New().String()

	c.v.mu.Lock()
	c.v.putCount++
	c.v.target = value
	c.v.pending = true
	c.v.completeAt = time.Now().Add(c.v.latency)
	c.tr.settleLocked(c.v)
	c.v.mu.Unlock()

	c.tr.logger.Debug("sim put issued",
		"put_id", putID, "address", c.address, "value", value, "wait", wait)

	if !wait {
		return nil
	}

	return c.PollCompletion(timeout)
}

func (c *simConn) PollCompletion(timeout time.Duration) error {
	if c.closed {
		return ErrConnClosed
	}

	deadline := time.Now().Add(timeout)
	for {
		c.v.mu.Lock()
		c.tr.settleLocked(c.v)
		pending := c.v.pending
		c.v.mu.Unlock()

		if !pending {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: put to %s not complete after %s",
				ErrTimeout, c.address, timeout)
		}
		time.Sleep(c.tr.pollInterval)
	}
}

func (c *simConn) Close() error {
	c.closed = true
	return nil
}
