package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "crewd"

// Metrics holds all crewd metric instruments.
type Metrics struct {
	TasksDispatched metric.Int64Counter
	TasksApproved   metric.Int64Counter
	TasksFailed     metric.Int64Counter
	Revisions       metric.Int64Counter
	ReasoningCalls  metric.Int64Counter
	TaskDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksDispatched, err = meter.Int64Counter("crewd.tasks.dispatched",
		metric.WithDescription("Number of tasks dispatched to workers"))
	if err != nil {
		return nil, err
	}

	m.TasksApproved, err = meter.Int64Counter("crewd.tasks.approved",
		metric.WithDescription("Number of task outputs approved"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("crewd.tasks.failed",
		metric.WithDescription("Number of tasks that ended failed"))
	if err != nil {
		return nil, err
	}

	m.Revisions, err = meter.Int64Counter("crewd.tasks.revisions",
		metric.WithDescription("Number of revision requests issued"))
	if err != nil {
		return nil, err
	}

	m.ReasoningCalls, err = meter.Int64Counter("crewd.reasoning.calls",
		metric.WithDescription("Number of reasoning port calls"))
	if err != nil {
		return nil, err
	}

	m.TaskDuration, err = meter.Float64Histogram("crewd.task.duration_seconds",
		metric.WithDescription("Task execution duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
