package bootstrap

import (
	"sync"

	"voiced/pkg/types"
)

// EventSource is implemented by publishers that retain events. The
// controller includes their events in Status.
type EventSource interface {
	Events() []Event
}

// MemoryPublisher stores events in-memory. cmd/voiced installs one so that
// /status lists the stage events of the run.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the event names in publish order, formatted as name:stage.
func (p *MemoryPublisher) Names() []string {
	evs := p.Events()
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Name+":"+string(e.Stage))
	}
	return out
}

// EventStatuses converts events into their JSON representation.
func EventStatuses(evs []Event) []types.EventStatus {
	out := make([]types.EventStatus, 0, len(evs))
	for _, e := range evs {
		out = append(out, types.EventStatus{Name: e.Name, Stage: string(e.Stage), Fields: e.Fields})
	}
	return out
}
