// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
// Delivery is at least once; ordering is guaranteed per publisher within a
// subject, with no global total order across publishers.
type Queue interface {
	// Publish sends a message to the given subject. Publish never blocks on
	// subscriber processing.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for crewd lifecycle events and agent messages.
const (
	SubjectGoalSubmitted = "goals.submitted"  // external goal submissions
	SubjectTeamFormed    = "teams.formed"     // team formation completed
	SubjectWorkerCreated = "workers.created"  // a worker was instantiated
	SubjectTaskAssigned  = "tasks.assigned"   // a pending task was dispatched
	SubjectTaskCompleted = "tasks.completed"  // a task output was approved
	SubjectAgentMessage  = "agents.message"   // agents.message.{worker_id}: point-to-point inbox
)
