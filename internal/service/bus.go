package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crewforge/crewd/internal/domain"
	"github.com/crewforge/crewd/internal/domain/event"
	"github.com/crewforge/crewd/internal/domain/message"
	"github.com/crewforge/crewd/internal/port/messagequeue"
)

// ManagerIdentity is the well-known bus identity of the manager agent.
const ManagerIdentity = "manager"

// Bus publishes lifecycle events and routes point-to-point agent messages
// over the message queue. Events are broadcast with at-least-once delivery;
// messages are addressed to a single registered inbox.
type Bus struct {
	queue messagequeue.Queue
	log   *slog.Logger

	mu      sync.RWMutex
	inboxes map[string]func() // identity -> subscription cancel
}

// InboxHandler processes a message delivered to a registered inbox.
type InboxHandler func(ctx context.Context, msg message.AgentMessage) error

// NewBus creates a Bus over the given queue. The manager identity is
// pre-registered as a valid destination.
func NewBus(queue messagequeue.Queue, log *slog.Logger) *Bus {
	return &Bus{
		queue:   queue,
		log:     log,
		inboxes: map[string]func(){ManagerIdentity: func() {}},
	}
}

// PublishEvent broadcasts a lifecycle event on its type's subject.
// Publishing never blocks on subscriber processing.
func (b *Bus) PublishEvent(ctx context.Context, ev event.AgentEvent) error {
	subject, payload, err := eventWirePayload(ev)
	if err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := b.queue.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	b.log.Debug("event published", "subject", subject, "event_id", ev.ID, "team_id", ev.TeamID)
	return nil
}

// Send delivers a point-to-point message to the destination's inbox.
// Returns MessageDeliveryError if the destination is not registered.
func (b *Bus) Send(ctx context.Context, msg message.AgentMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	b.mu.RLock()
	_, known := b.inboxes[msg.To]
	b.mu.RUnlock()
	if !known {
		return &domain.MessageDeliveryError{To: msg.To}
	}

	data, err := json.Marshal(messagequeue.AgentMessagePayload{
		MessageID: msg.ID,
		From:      msg.From,
		To:        msg.To,
		Type:      string(msg.Type),
		Payload:   msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal agent message: %w", err)
	}

	subject := messagequeue.SubjectAgentMessage + "." + msg.To
	if err := b.queue.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	b.log.Debug("message sent", "from", msg.From, "to", msg.To, "type", string(msg.Type))
	return nil
}

// RegisterInbox subscribes the identity's inbox subject and registers it as a
// valid destination. The returned cancel unsubscribes and deregisters.
func (b *Bus) RegisterInbox(ctx context.Context, identity string, handler InboxHandler) (func(), error) {
	subject := messagequeue.SubjectAgentMessage + "." + identity

	cancelSub, err := b.queue.Subscribe(ctx, subject, func(ctx context.Context, _ string, data []byte) error {
		var wire messagequeue.AgentMessagePayload
		if err := json.Unmarshal(data, &wire); err != nil {
			return fmt.Errorf("decode inbox message: %w", err)
		}
		return handler(ctx, message.AgentMessage{
			ID:      wire.MessageID,
			From:    wire.From,
			To:      wire.To,
			Type:    message.Type(wire.Type),
			Payload: wire.Payload,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.inboxes[identity] = cancelSub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.inboxes, identity)
		b.mu.Unlock()
		cancelSub()
	}, nil
}

// SubscribeEvents registers a raw handler for a lifecycle event subject.
func (b *Bus) SubscribeEvents(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	return b.queue.Subscribe(ctx, subject, handler)
}

// eventWirePayload maps a domain event to its queue subject and wire schema.
func eventWirePayload(ev event.AgentEvent) (string, any, error) {
	switch ev.Type {
	case event.TypeTaskAssigned:
		var p event.TaskAssignedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return "", nil, err
		}
		return messagequeue.SubjectTaskAssigned, messagequeue.TaskAssignedPayload{
			EventID: ev.ID, TeamID: ev.TeamID, TaskID: p.TaskID, WorkerID: p.WorkerID,
		}, nil

	case event.TypeTaskCompleted:
		var p event.TaskCompletedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return "", nil, err
		}
		return messagequeue.SubjectTaskCompleted, messagequeue.TaskCompletedPayload{
			EventID: ev.ID, TeamID: ev.TeamID, TaskID: p.TaskID, WorkerID: p.WorkerID,
		}, nil

	case event.TypeWorkerCreated:
		var p event.WorkerCreatedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return "", nil, err
		}
		return messagequeue.SubjectWorkerCreated, messagequeue.WorkerCreatedPayload{
			EventID: ev.ID, TeamID: ev.TeamID, WorkerID: p.WorkerID, Specialization: p.Specialization,
		}, nil

	case event.TypeTeamFormed:
		var p event.TeamFormedPayload
		if err := ev.DecodePayload(&p); err != nil {
			return "", nil, err
		}
		return messagequeue.SubjectTeamFormed, messagequeue.TeamFormedPayload{
			EventID: ev.ID, TeamID: ev.TeamID, WorkerCount: p.WorkerCount,
		}, nil
	}
	return "", nil, fmt.Errorf("unknown event type %q", ev.Type)
}
