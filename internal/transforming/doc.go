// Package transforming implements the second pipeline stage: converting a
// fetched download into the normalized audio format the inference backend
// consumes.
package transforming
