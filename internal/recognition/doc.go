// Package recognition turns page images into text. It defines the Recognizer
// boundary implemented by the Gemini client and the in-process dispatcher
// that runs a recognizer against a scan job and reports the outcome back
// through the scan service, the same way an external worker would.
package recognition
