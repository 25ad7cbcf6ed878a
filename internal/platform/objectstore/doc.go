// Package objectstore keeps uploaded page images. Two backends are provided:
// LocalStore writes under a directory and serves it over HTTP, GCSStore writes
// to a Cloud Storage bucket. Both hand back public URLs and can read an object
// back from its URL for in-process recognition.
package objectstore
