package domain

import "time"

const DefaultSessionTitle = "New Chat"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sequence  int64     `json:"sequence"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	IsEssay   bool      `json:"is_essay"`
	CreatedAt time.Time `json:"created_at"`
}

type NewSessionResponse struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type GenerateTitleRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	Model     string `json:"model"`
}

type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
	Model     string `json:"model"`
}

type ChatResponse struct {
	Response string `json:"response"`
	IsEssay  bool   `json:"is_essay"`
}

type GenerateEssayRequest struct {
	NoteIDs   []string `json:"note_ids" validate:"required"`
	SessionID string   `json:"session_id" validate:"required"`
	Model     string   `json:"model"`
}

type EssayResponse struct {
	Success   bool   `json:"success"`
	Essay     string `json:"essay"`
	ArticleID string `json:"article_id,omitempty"`
}

type MessageResponse struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	IsEssay   bool      `json:"is_essay"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
