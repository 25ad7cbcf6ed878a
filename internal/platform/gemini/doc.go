// Package gemini implements recognition.Recognizer on Google's Gemini API.
//
// The page photographs are sent inline with a transcription prompt in a
// single request. Transient API failures are retried with exponential backoff
// and jitter; blocked or empty responses are returned immediately so that the
// job is failed rather than retried forever.
package gemini
