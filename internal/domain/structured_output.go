package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StructuredOutput is the parsed form of a job's recognised text: the text
// with markers stripped plus the marked lines bucketed by category, each in
// page order.
type StructuredOutput struct {
	CleanedText string   `json:"cleaned_text"`
	Tasks       []string `json:"tasks"`
	Calendar    []string `json:"calendar"`
	Notes       []string `json:"notes"`
}

// normalized replaces nil buckets with empty ones so the JSON shape is stable.
func (s StructuredOutput) normalized() StructuredOutput {
	out := StructuredOutput{CleanedText: s.CleanedText}
	out.Tasks = append([]string{}, s.Tasks...)
	out.Calendar = append([]string{}, s.Calendar...)
	out.Notes = append([]string{}, s.Notes...)
	return out
}

// IsEmpty reports whether there is nothing to route.
func (s StructuredOutput) IsEmpty() bool {
	return s.CleanedText == "" && len(s.Tasks) == 0 && len(s.Calendar) == 0 && len(s.Notes) == 0
}

// DecodeStructuredOutput parses a stored document, rejecting fields it does
// not recognise.
func DecodeStructuredOutput(data []byte) (StructuredOutput, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var out StructuredOutput
	if err := dec.Decode(&out); err != nil {
		return StructuredOutput{}, fmt.Errorf("%w: structured output: %v", ErrInvalidShape, err)
	}
	return out.normalized(), nil
}

// DecodeJobError parses a stored job error, rejecting unknown kinds.
func DecodeJobError(kind, detail string) (JobError, error) {
	k := JobErrorKind(kind)
	if !k.IsValid() {
		return JobError{}, fmt.Errorf("%w: job error kind %q", ErrInvalidShape, kind)
	}
	return JobError{Kind: k, Detail: detail}, nil
}
