// Package registry owns the fictitious project population: name generation,
// per-project build state, and run-wide aggregates.
//
// Projects are created once at startup and never deleted. All per-project
// mutation goes through Project methods, which serialize the active-build map
// and the counters behind one mutex so concurrent deferred finishes cannot
// corrupt state or double-count.
package registry
