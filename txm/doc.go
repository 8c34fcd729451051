// Package txm implements the control-abstraction core of a transmission X-ray
// microscope client: named process-variable bindings, a controller that
// resolves them to live transport connections, permit-gated writes, and
// scoped wait coordination for batched actuator moves.
//
// Key Features:
//   - Binding Tables: each controller type declares a static table mapping
//     binding names to PV addresses, value kinds, default wait policy and
//     permit requirement. Connections are resolved lazily, once per controller
//     instance per binding.
//   - Permit Guard: writes to permit-gated bindings silently no-op when the
//     controller holds no operating permit. This is deliberate: it lets
//     beamline scripts run unmodified in a read-only mode. It is a local
//     safety switch, not a security boundary; the permit flag is trusted at
//     face value. Scripts driving gated actuators without a permit observe
//     apparently-successful calls that have no physical effect.
//   - Wait Scopes: BeginScope/EndScope (or the closure form InScope) fire all
//     writes inside the scope non-blocking and optionally join them together
//     at scope exit, so several physically-parallel moves are waited on
//     collectively instead of serially.
//   - Instrument Controllers: Microscope carries the 32-ID nano-CT binding
//     table and the domain operations built on the core (shutters, sample and
//     energy moves, file-writer setup, detector capture). NewMicroCT swaps in
//     the micro-CT stage addresses.
//
// A Controller is driven by a single logical caller. If goroutines share one,
// the caller must serialize access; the controller does not.
package txm
