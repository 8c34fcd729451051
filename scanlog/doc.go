// Package scanlog records scan runs and their captured points in a SQLite
// database, implementing scan.Recorder. The database outlives the process,
// giving beamline operators a queryable history of what was collected when.
package scanlog
