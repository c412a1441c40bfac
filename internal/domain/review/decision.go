// Package review defines the manager's review decision for a task output.
package review

import "errors"

// Outcome is the closed set of review outcomes.
type Outcome string

const (
	OutcomeApproved          Outcome = "approved"
	OutcomeRevisionRequested Outcome = "revision_requested"
	OutcomeRejected          Outcome = "rejected"
)

// ValidOutcome reports whether o is a known outcome.
func ValidOutcome(o string) bool {
	switch Outcome(o) {
	case OutcomeApproved, OutcomeRevisionRequested, OutcomeRejected:
		return true
	}
	return false
}

// Decision is the manager's verdict on a single task output.
// Feedback is set for revision requests, Reason for rejections.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Feedback string  `json:"feedback,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// Approved returns an approval decision.
func Approved() Decision {
	return Decision{Outcome: OutcomeApproved}
}

// RevisionRequested returns a revision decision with feedback for the worker.
func RevisionRequested(feedback string) Decision {
	return Decision{Outcome: OutcomeRevisionRequested, Feedback: feedback}
}

// Rejected returns a rejection decision with the manager's reason.
func Rejected(reason string) Decision {
	return Decision{Outcome: OutcomeRejected, Reason: reason}
}

// Validate checks that the decision variant carries its required field.
func (d *Decision) Validate() error {
	if !ValidOutcome(string(d.Outcome)) {
		return errors.New("unknown review outcome: " + string(d.Outcome))
	}
	if d.Outcome == OutcomeRevisionRequested && d.Feedback == "" {
		return errors.New("revision request requires feedback")
	}
	if d.Outcome == OutcomeRejected && d.Reason == "" {
		return errors.New("rejection requires a reason")
	}
	return nil
}
