package pv

import "errors"

var (
	// ErrConnection indicates that the transport cannot resolve or reach a
	// process-variable address. It is surfaced to the caller immediately and
	// never retried by go-txm; retry policy, if any, belongs to the transport.
	ErrConnection = errors.New("transport cannot reach process variable address")

	// ErrCoercion indicates that a value cannot be converted to or from a
	// binding's declared value kind. The conversion rules never truncate:
	// a float with a fractional part does not coerce to an int PV.
	ErrCoercion = errors.New("value cannot be coerced to declared type")

	// ErrTimeout indicates that a bounded wait (a blocking put, a completion
	// poll, or a readback wait) exceeded its timeout before the transport
	// reported completion.
	ErrTimeout = errors.New("timed out waiting for process variable")

	// ErrConnClosed indicates an operation on a connection that has been closed.
	ErrConnClosed = errors.New("connection closed")
)
