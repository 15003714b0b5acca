// Package sim provides a parallel discrete-event simulation kernel in which
// flow executors contend for typed, time-limited resources.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - simulator.go: the clock, the future-event heap and the barrier action that advances time
//   - worker.go: the two-phase tick (dispatch, then sweep) run by every worker goroutine
//   - workgroup.go: the branch-and-bound feasibility search over resource requirements
//   - conflict_zone.go: how searches that touch the same shared resource are serialized
//
// # Architecture
//
// A Model describes resource types, resources with their timetables,
// activities with workgroups, flows and element generators. NewSimulator
// validates the model and partitions it into ActivityManagers: connected
// components of the graph linking resource types used together. Every manager
// is owned by one worker, and only that worker runs feasibility searches for
// the manager's activities, during the sweep phase.
//
// Each tick pops every event at the lowest pending timestamp. Workers execute
// contiguous shares of the batch; events raised for the same timestamp are
// executed in the same tick, later ones are merged into the heap at the
// barrier. After dispatch every worker sweeps its managers, starting the
// waiting executors whose workgroup can be satisfied.
//
// Resources bound to types of more than one manager are shared. Searches
// booking a shared resource merge their conflict zones and lock the zone's
// mutex stack before re-validating and committing, so two managers can never
// commit the same resource.
//
// Sub-packages:
//   - sim/trace/: notification records, a concurrent recorder and run summaries
//
// # Determinism
//
// Element ids, executor keys, queue order and per-subsystem random streams
// (see PartitionedRNG) do not depend on worker scheduling. A run with one
// worker is fully reproducible for a given seed. Runs with several workers
// produce the same trace.Canonical records for models without shared
// resources, provided that parallel strands of one element do not branch in
// the same tick.
package sim
