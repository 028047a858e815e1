package types

// EventType identifies a change notification emitted by the bookmark engine.
// Events carry no structured payload: consumers re-read the store they care
// about.
type EventType string

const (
	EventTypeBookmarksUpdated EventType = "bookmarks_updated" // EventTypeBookmarksUpdated indicates the file-level list changed.
	EventTypeMarksUpdated     EventType = "marks_updated"     // EventTypeMarksUpdated indicates a document's line bookmarks changed.
	EventTypeIdentityChanged  EventType = "identity_changed"  // EventTypeIdentityChanged indicates the scope or branch changed and stores were reloaded.
	EventTypeWarning          EventType = "warning"           // EventTypeWarning indicates a non-fatal problem the user should see.
)

// Event is a single change notification.
type Event struct {
	// Type indicates the kind of event.
	Type EventType

	// DocumentID is set for line-level events.
	DocumentID string

	// Message holds human readable detail for warning events.
	Message string
}

// Emitter receives engine notifications.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

// Emit calls f(ev).
func (f EmitterFunc) Emit(ev Event) { f(ev) }

// NopEmitter discards every event.
var NopEmitter Emitter = EmitterFunc(func(Event) {})

// NewBookmarksUpdatedEvent creates a file-level change event.
func NewBookmarksUpdatedEvent() Event {
	return Event{Type: EventTypeBookmarksUpdated}
}

// NewMarksUpdatedEvent creates a line-level change event for a document.
func NewMarksUpdatedEvent(documentID string) Event {
	return Event{Type: EventTypeMarksUpdated, DocumentID: documentID}
}

// NewIdentityChangedEvent creates an identity change event.
func NewIdentityChangedEvent() Event {
	return Event{Type: EventTypeIdentityChanged}
}

// NewWarningEvent creates a warning event.
func NewWarningEvent(documentID, message string) Event {
	return Event{Type: EventTypeWarning, DocumentID: documentID, Message: message}
}
