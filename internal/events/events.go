// Package events carries project status changes to whoever listens.
package events

import (
	"context"
	"sync"
)

// Publisher records and fans out a project event. Failures are the
// publisher's to log; a lost event never fails the caller's operation.
type Publisher interface {
	Publish(ctx context.Context, projectID int, eventType string, payload interface{})
}

// Nop drops every event
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, int, string, interface{}) {}

// Event is one recorded publish
type Event struct {
	ProjectID int
	Type      string
	Payload   interface{}
}

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher
func (r *Recorder) Publish(_ context.Context, projectID int, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{ProjectID: projectID, Type: eventType, Payload: payload})
}

// Events returns a copy of everything recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
