// Package monitor exposes a controller over a small HTTP JSON API, letting
// operators inspect bindings, read and write process variables and browse
// recorded scan runs from outside the process. Writes go through the
// controller, so the permit gate applies to them exactly as it does in code.
package monitor
