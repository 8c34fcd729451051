package pv

import "time"

// Transport resolves process-variable addresses to live connections.
//
// Implementations wrap an actual control-system client. Address schemas are
// opaque to go-txm and passed through unmodified. Connect fails with an error
// wrapping ErrConnection when the address cannot be resolved or reached.
type Transport interface {
	Connect(address string) (Conn, error)
}

// Conn is a live connection to one process variable.
//
// A Conn is exclusively owned by the controller instance that created it and
// calls are expected to be serialized by that owner. Puts to the same address
// are applied in issue order.
type Conn interface {
	// Address returns the remote address this connection is bound to.
	Address() string

	// Get reads the current raw value of the process variable.
	Get() (any, error)

	// Put writes a value to the process variable.
	//
	// With wait true, Put blocks until the device reports the put complete or
	// timeout elapses, in which case it fails with an error wrapping
	// ErrTimeout. With wait false, Put returns as soon as the transport has
	// accepted the value; completion can be observed later with
	// PollCompletion.
	Put(value any, wait bool, timeout time.Duration) error

	// PollCompletion blocks until the most recently issued put on this
	// connection reports completion, or fails with an error wrapping
	// ErrTimeout after timeout. It returns immediately when no put is pending.
	PollCompletion(timeout time.Duration) error

	// Close tears the connection down. Subsequent operations fail with
	// ErrConnClosed.
	Close() error
}
