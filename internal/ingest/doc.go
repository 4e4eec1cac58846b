// Package ingest is the submission gatekeeper. It canonicalizes external
// identifiers, throttles per-owner request bursts, deduplicates resubmissions,
// resolves catalog metadata, and registers accepted work in the queue.
package ingest
