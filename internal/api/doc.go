// Package api handles incoming HTTP requests for the capture client, notebook
// owners and the recognition worker. It decodes and validates requests, calls
// the services, and maps their errors onto status codes without leaking
// internal detail.
package api
