// Package manager implements the model lifecycle: memory-aware loading with
// eviction, unloading, switching, inference dispatch, and the background
// idle sweep and emergency cleanup loops.
//
// Layout:
//
//	types.go    - lifecycle states and the per-instance record
//	config.go   - tunables and defaults
//	errors.go   - typed error taxonomy
//	strategy.go - loading decisions and victim selection
//	load.go     - load path, retry scheduling
//	unload.go   - unload and switch paths
//	generate.go - inference dispatch
//	sweep.go    - idle sweep, emergency cleanup, memory optimization
//	metrics.go  - prometheus collectors
package manager
