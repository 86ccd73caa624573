package service

const (
	EventNoteSaved      = "note_saved"
	EventNoteDeleted    = "note_deleted"
	EventNotesReordered = "notes_reordered"
	EventSessionCreated = "session_created"
	EventSessionTitle   = "session_title"
	EventSessionDeleted = "session_deleted"
	EventEssayGenerated = "essay_generated"
	EventModelSelected  = "model_selected"
)

// Publisher pushes store events to the owner's live connections. Delivery
// is best effort and never fails the operation that produced the event.
type Publisher interface {
	PublishToUser(userID, event string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) PublishToUser(string, string, interface{}) {}

func publisherOrNoop(p Publisher) Publisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

type NoteEvent struct {
	NoteID string `json:"note_id"`
}

type NotesReorderedEvent struct {
	NoteIDs []string `json:"note_ids"`
}

type SessionEvent struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title,omitempty"`
}

type EssayEvent struct {
	SessionID string `json:"session_id"`
	ArticleID string `json:"article_id"`
	Title     string `json:"title"`
}

type ModelEvent struct {
	Model string `json:"model"`
}
