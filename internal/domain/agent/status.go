package agent

// Status represents the current state of a worker.
type Status string

const (
	StatusIdle    Status = "idle"    // no assigned task, eligible for dispatch
	StatusWorking Status = "working" // exactly one assigned task
	StatusBlocked Status = "blocked" // assignment exists but cannot progress
)

// statusTransitions is the allowed worker status transition table.
var statusTransitions = map[Status][]Status{
	StatusIdle:    {StatusWorking},
	StatusWorking: {StatusIdle, StatusBlocked},
	StatusBlocked: {StatusIdle},
}

// CanTransition reports whether the transition from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, t := range statusTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}
