package domain

import "time"

const DefaultCategory = "Uncategorized"

type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Order     int       `json:"order"`
	IsEssay   bool      `json:"is_essay"`
	CreatedAt time.Time `json:"created_at"`
}

type SaveNoteRequest struct {
	Note     string `json:"note" validate:"required"`
	Category string `json:"category" validate:"max=50"`
	IsEssay  bool   `json:"is_essay"`
}

type NoteIDsRequest struct {
	NoteIDs []string `json:"note_ids" validate:"required"`
}

type ReorderNotesRequest struct {
	Notes []string `json:"notes" validate:"required"`
}

// NoteResponse is the wire shape of a note; owner is implied by the caller.
type NoteResponse struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Order    int    `json:"order"`
	IsEssay  bool   `json:"is_essay"`
}

type NotesResponse struct {
	Success bool            `json:"success"`
	Notes   []*NoteResponse `json:"notes"`
}

func NewNoteResponse(n *Note) *NoteResponse {
	return &NoteResponse{
		ID:       n.ID,
		Content:  n.Content,
		Category: n.Category,
		Order:    n.Order,
		IsEssay:  n.IsEssay,
	}
}

func NewNoteResponses(notes []*Note) []*NoteResponse {
	responses := make([]*NoteResponse, 0, len(notes))
	for _, n := range notes {
		responses = append(responses, NewNoteResponse(n))
	}
	return responses
}
