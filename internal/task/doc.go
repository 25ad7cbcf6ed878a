// Package task runs background work for scan jobs: handing pending jobs to
// the recognition worker and routing the content of finished ones.
//
// Tasks are persisted before they are queued so that a restart can pick up
// anything left pending or processing. Persisted rows only carry a type and a
// JSON payload, so the runner rebuilds executable tasks through a Rehydrator.
package task
