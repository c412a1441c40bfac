// Package agent defines the Worker domain entity and its specialization.
package agent

// Specialization is the role category of a worker within a team.
type Specialization string

const (
	SpecResearcher Specialization = "Researcher"
	SpecCoder      Specialization = "Coder"
	SpecReviewer   Specialization = "Reviewer"
	SpecTester     Specialization = "Tester"
	SpecWriter     Specialization = "Writer"
)

// ValidSpecialization reports whether s is a known specialization.
func ValidSpecialization(s string) bool {
	switch Specialization(s) {
	case SpecResearcher, SpecCoder, SpecReviewer, SpecTester, SpecWriter:
		return true
	}
	return false
}

// ParseSpecialization maps a specialization string from the reasoning
// capability to the closed set. Unrecognized strings fall back to
// Researcher. The fallback is the documented matching policy for dynamic
// LLM output, not an error.
func ParseSpecialization(s string) Specialization {
	if ValidSpecialization(s) {
		return Specialization(s)
	}
	return SpecResearcher
}
