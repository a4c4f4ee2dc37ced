package outbox

import "context"

// AllEvents subscribes a handler to every event name.
const AllEvents = "*"

// Event is anything the orchestrator reports to the event sink.
type Event interface {
	EventName() string
}

type Handler func(ctx context.Context, e Event) error

// Publisher is the event sink. Publish must return promptly: it enqueues, it
// does not wait for handlers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
