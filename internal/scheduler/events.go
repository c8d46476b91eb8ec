package scheduler

// Event represents a scheduler lifecycle event.
// Minimal and stable: name + turn/model ids and optional fields.
type Event struct {
	Name    string
	TurnID  string
	ModelID string
	Fields  map[string]any
}

// EventPublisher receives events from the scheduler. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
