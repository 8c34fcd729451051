// Package scan implements the beamline's standard data-collection
// procedures on top of the txm controllers: energy scans and stepped
// tomography scans.
//
// Each scan run gets a UUID and reports every captured acquisition
// through a Recorder; package scanlog provides the sqlite-backed
// implementation. Scans are plain synchronous procedures, driven to
// completion by a single caller.
package scan
