package provisioning

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Observer receives structured events as stages run.
type Observer interface {
	// Event emits a structured event
	Event(event Event)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured workflow event.
type Event struct {
	Type      EventType         // Type of event
	Stage     string            // Stage name
	Message   string            // Human-readable message
	Resource  string            // Resource name if applicable
	Err       error             // Set on failures
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of workflow event.
type EventType string

const (
	EventStageStarted   EventType = "stage.started"
	EventStageSkipped   EventType = "stage.skipped"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"

	EventResourceCreated  EventType = "resource.created"
	EventResourceExists   EventType = "resource.exists"
	EventResourceDeleting EventType = "resource.deleting"
	EventResourceDeleted  EventType = "resource.deleted"
)

// LogObserver writes events to a logr logger.
type LogObserver struct {
	log    logr.Logger
	fields map[string]string
}

// NewLogObserver creates an observer logging to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log, fields: map[string]string{}}
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	event = withDefaults(event, o.fields)

	kv := []any{"event", string(event.Type)}
	if event.Stage != "" {
		kv = append(kv, "stage", event.Stage)
	}
	if event.Resource != "" {
		kv = append(kv, "resource", event.Resource)
	}
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kv = append(kv, k, event.Fields[k])
	}

	if event.Err != nil {
		o.log.Error(event.Err, event.Message, kv...)
		return
	}
	o.log.Info(event.Message, kv...)
}

// WithFields implements Observer.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	return &LogObserver{log: o.log, fields: mergeFields(o.fields, fields)}
}

// RecordingObserver keeps events in memory. Workflow tests use it to
// assert on the order of stages and resource changes.
type RecordingObserver struct {
	mu     *sync.Mutex
	events *[]Event
	fields map[string]string
}

// NewRecordingObserver creates an empty recording observer.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{mu: &sync.Mutex{}, events: &[]Event{}, fields: map[string]string{}}
}

// Event implements Observer.
func (o *RecordingObserver) Event(event Event) {
	event = withDefaults(event, o.fields)
	o.mu.Lock()
	defer o.mu.Unlock()
	*o.events = append(*o.events, event)
}

// WithFields implements Observer. The returned observer records into the
// same event list.
func (o *RecordingObserver) WithFields(fields map[string]string) Observer {
	return &RecordingObserver{mu: o.mu, events: o.events, fields: mergeFields(o.fields, fields)}
}

// Events returns a copy of the recorded events.
func (o *RecordingObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), *o.events...)
}

// Stages returns the names of stages that emitted an event of type t, in
// order.
func (o *RecordingObserver) Stages(t EventType) []string {
	var names []string
	for _, e := range o.Events() {
		if e.Type == t {
			names = append(names, e.Stage)
		}
	}
	return names
}

func withDefaults(event Event, fields map[string]string) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Fields = mergeFields(fields, event.Fields)
	return event
}

func mergeFields(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Helper functions for common events

// LogStageStart logs a stage start event.
func LogStageStart(observer Observer, stage string) {
	observer.Event(Event{Type: EventStageStarted, Stage: stage, Message: "starting"})
}

// LogStageSkipped logs a stage whose precondition already held.
func LogStageSkipped(observer Observer, stage string) {
	observer.Event(Event{Type: EventStageSkipped, Stage: stage, Message: "already satisfied"})
}

// LogStageComplete logs a stage completion event.
func LogStageComplete(observer Observer, stage string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventStageCompleted,
		Stage:   stage,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogStageFailed logs a stage failure event.
func LogStageFailed(observer Observer, stage string, err error) {
	observer.Event(Event{Type: EventStageFailed, Stage: stage, Message: "failed", Err: err})
}

// LogResourceCreated logs a successful resource creation event.
func LogResourceCreated(observer Observer, stage, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceCreated,
		Stage:    stage,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s created", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceExists logs when a resource already exists.
func LogResourceExists(observer Observer, stage, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceExists,
		Stage:    stage,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s already exists", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleting logs a resource deletion start event.
func LogResourceDeleting(observer Observer, stage, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleting,
		Stage:    stage,
		Resource: resourceName,
		Message:  fmt.Sprintf("deleting %s", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}

// LogResourceDeleted logs a successful resource deletion event.
func LogResourceDeleted(observer Observer, stage, resourceType, resourceName string) {
	observer.Event(Event{
		Type:     EventResourceDeleted,
		Stage:    stage,
		Resource: resourceName,
		Message:  fmt.Sprintf("%s deleted", resourceType),
		Fields:   map[string]string{"type": resourceType},
	})
}
