package domain

import "bytes"

// Outcome is the classified result of one simulation run
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Classify reports success only when the marker occupies the bytes ending
// one before the end of stdout, i.e. the marker followed by a single
// trailing byte (normally the newline).
func Classify(stdout []byte) Outcome {
	n := len(stdout)
	if n < len(SuccessMarker)+1 {
		return OutcomeFailure
	}
	if bytes.Equal(stdout[n-len(SuccessMarker)-1:n-1], []byte(SuccessMarker)) {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
