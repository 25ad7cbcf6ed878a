// Package service contains the page-scan use cases: the page registry, notebook
// provisioning, the scan job lifecycle and content routing. Services coordinate
// the domain types and the store interfaces, own transaction boundaries and
// translate store errors into the sentinels below, which the API layer maps to
// HTTP status codes.
//
// Services depend on store.TxRunner and the store interfaces only; nothing here
// knows which database backs them.
package service
