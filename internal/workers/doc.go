// Package workers defines the contracts between stage handlers and the
// external services that do the heavy lifting: the metadata lookup used at
// submission time and the fetch, transform, and inference tools invoked while
// a job moves through the pipeline.
package workers
