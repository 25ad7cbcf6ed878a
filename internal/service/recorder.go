package service

import "github.com/phrazzld/pagescan/internal/domain"

// TokenGenerator mints page tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// Recorder receives scan and routing counts. *metrics.Metrics implements it.
type Recorder interface {
	ScanSubmitted()
	ScanSuperseded(n int)
	ScanCompleted()
	ScanFailed(kind domain.JobErrorKind)
	ContentRouted(outcome string, tasks, events int)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ScanSubmitted() {}
func (NopRecorder) ScanSuperseded(int) {}
func (NopRecorder) ScanCompleted() {}
func (NopRecorder) ScanFailed(domain.JobErrorKind) {}
func (NopRecorder) ContentRouted(string, int, int) {}
