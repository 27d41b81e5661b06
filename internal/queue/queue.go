package queue

import "context"

// TopicEmail carries deferred transactional mail jobs.
const TopicEmail = "mindvoyage.email"

// Task is a broker-agnostic payload delivered to consumers.
type Task struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes one task. Returning an error nacks the task so the
// broker redelivers it.
type Handler func(ctx context.Context, task Task) error

// Broker is the operation set both backends implement.
type Broker interface {
	Enqueue(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Consume(ctx context.Context, topic string, handler Handler) error
	Close() error
}
