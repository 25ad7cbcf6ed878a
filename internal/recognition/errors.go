package recognition

import "errors"

// Common errors returned by recognizers.
var (
	// ErrRecognitionFailed is returned when recognition fails for any general reason
	ErrRecognitionFailed = errors.New("failed to recognise page text")

	// ErrInvalidResponse is returned when the model response is empty or malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during recognition")

	// ErrInvalidConfig is returned when the recognizer configuration is invalid
	ErrInvalidConfig = errors.New("invalid recognizer configuration")

	// ErrNoImages is returned when there is nothing to recognise.
	ErrNoImages = errors.New("no images to recognise")
)
