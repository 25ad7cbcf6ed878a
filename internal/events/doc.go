// Package events lets services announce scan lifecycle changes without
// knowing who reacts to them.
//
// The scan service emits a ScanSubmitted event when a job enters pending and
// a ScanCompleted event when a job reaches done. The task package registers a
// handler that turns these into persisted background tasks.
package events
