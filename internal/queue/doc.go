// Package queue schedules upload jobs with bounded concurrency and drives
// each job through its pipeline stages.
//
// The Queue owns an in-memory job table guarded by a single mutex; workers
// request state transitions through the owner rather than mutating jobs
// directly. Dispatch fills free worker slots from the queued set, staggering
// starts, and is reentrancy-guarded so a watchdog tick and a
// completion-triggered dispatch cannot race each other into double-starting a
// job. The watchdog repairs the stall where queued jobs exist with no active
// workers and no dispatch in flight.
//
// Job statuses form an explicit state machine (see models.go); transitions
// outside the table are refused and logged. Terminal jobs are never
// re-dispatched; errored jobs return to the pool only through an explicit
// retry.
package queue
