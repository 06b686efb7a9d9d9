package bootstrap

// Event represents a bootstrap lifecycle event.
// Minimal and stable: name + stage and optional fields via key/values.
type Event struct {
	Name   string
	RunID  string
	Stage  Stage
	Fields map[string]any
}

// Event names.
const (
	EventStageStart  = "stage_start"
	EventStageDone   = "stage_done"
	EventStageFailed = "stage_failed"
)

// EventPublisher receives events from the controller. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
