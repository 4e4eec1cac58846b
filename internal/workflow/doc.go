// Package workflow drives jobs through the pipeline: a worker pool claims
// runnable jobs from the queue, executes their next stage, and applies the
// retry, dead-letter, and heartbeat-reclaim policies around failures.
package workflow
