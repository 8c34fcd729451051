// Package pv defines the process-variable transport boundary of go-txm.
//
// A process variable (PV) is a named, remotely addressable control-system value
// representing a sensor reading or an actuator setpoint. This package does not
// implement any wire protocol; it declares the Transport and Conn interfaces an
// external control-system client must satisfy, the value kinds a PV can carry,
// and the coercion rules between caller-supplied values and wire values.
//
// Key Features:
//   - Transport Boundary: Connect/Get/Put/PollCompletion operations with
//     duration-bounded blocking, never unbounded.
//   - Value Kinds: float, int, string and enum-of-int PVs with strict, explicit
//     coercion. Values are never silently truncated.
//   - Simulated Transport: an in-memory Transport with per-address settle
//     latency, readback links and call counters, used for tests and dry-runs.
//
// All blocking operations in this package are bounded by timeouts and poll
// rather than block; there is no cooperative cancellation.
package pv
