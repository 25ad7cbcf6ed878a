// Package store defines the persistence interfaces for notebooks, pages,
// scan jobs and routed content, the sentinel errors their implementations
// return, and the transaction runner services write through.
package store
