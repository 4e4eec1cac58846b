// Package queue persists pipeline state in SQLite: jobs, source items,
// transcript units, and dead letter records.
//
// A Job is the state machine instance for one pipeline run. Stage handlers
// never write rows directly; they mutate the in-memory Job and the workflow
// manager persists at stage boundaries. The single-writer guarantee comes
// from ClaimStage, a compare-and-set transition from pending to running.
package queue
