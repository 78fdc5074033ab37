package domain

import (
	"time"
)

// EventID is a unique identifier for an event.
type EventID string

// String returns the string representation of the EventID.
func (id EventID) String() string {
	return string(id)
}

// EventType tags the variant carried by an Event.
type EventType string

const (
	// EventItemUpdated carries a partial JobUpdate for one job.
	EventItemUpdated EventType = "item_updated"
	// EventLog carries diagnostic text for one job.
	EventLog EventType = "log"
	// EventJobFinished is always the last event of a job run.
	EventJobFinished EventType = "job_finished"
	// EventQueueStarted and EventQueueFinished bracket a scheduler run.
	EventQueueStarted  EventType = "queue_started"
	EventQueueFinished EventType = "queue_finished"
	// EventJobAdded and EventJobRemoved report queue membership changes.
	EventJobAdded   EventType = "job_added"
	EventJobRemoved EventType = "job_removed"
)

// Event is a message on the event channel.
type Event struct {
	ID        EventID    `json:"id"`
	Seq       uint64     `json:"seq"`
	Type      EventType  `json:"type"`
	JobID     JobID      `json:"job_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Update    *JobUpdate `json:"update,omitempty"`
	Text      string     `json:"text,omitempty"`
}

// ItemUpdated builds an update event for a job.
func ItemUpdated(id JobID, u JobUpdate) Event {
	return Event{Type: EventItemUpdated, JobID: id, Update: &u}
}

// LogEvent builds a log event for a job.
func LogEvent(id JobID, text string) Event {
	return Event{Type: EventLog, JobID: id, Text: text}
}

// JobFinished builds the terminal event of a job run.
func JobFinished(id JobID) Event {
	return Event{Type: EventJobFinished, JobID: id}
}

// MembershipEvent builds a job_added or job_removed event.
func MembershipEvent(t EventType, id JobID) Event {
	return Event{Type: t, JobID: id}
}

// QueueEvent builds a scheduler-level event that is not tied to a job.
func QueueEvent(t EventType, text string) Event {
	return Event{Type: t, Text: text}
}

// EventEmitter is implemented by anything that accepts events.
type EventEmitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(Event)

// Emit calls f(event).
func (f EmitterFunc) Emit(event Event) {
	f(event)
}

// EventFilter specifies criteria for querying events.
type EventFilter struct {
	Type       *EventType `json:"type,omitempty"`
	JobID      JobID      `json:"job_id,omitempty"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	SearchText string     `json:"search_text,omitempty"`
}

// EventQuery represents a query for events with pagination.
type EventQuery struct {
	Filter EventFilter `json:"filter"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// EventQueryResult contains the result of an event query.
type EventQueryResult struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}
