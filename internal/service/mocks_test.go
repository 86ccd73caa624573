package service

import (
	"context"
	"sort"
	"sync"

	"gptme-server/internal/completion"
	"gptme-server/internal/domain"
	"gptme-server/internal/repository"

	"github.com/stretchr/testify/mock"
)

type mockUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username {
			return repository.ErrDuplicate
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := m.FindByUsername(ctx, username)
	return err == nil, nil
}

func (m *mockUserRepository) UpdateSelectedModel(ctx context.Context, id, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.SelectedModel = model
	return nil
}

type mockNoteRepository struct {
	mu    sync.Mutex
	notes map[string]*domain.Note
}

func newMockNoteRepository() *mockNoteRepository {
	return &mockNoteRepository{
		notes: make(map[string]*domain.Note),
	}
}

func (m *mockNoteRepository) Append(ctx context.Context, note *domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	note.Order = 0
	for _, n := range m.notes {
		if n.UserID == note.UserID && n.Order >= note.Order {
			note.Order = n.Order + 1
		}
	}
	cp := *note
	m.notes[note.ID] = &cp
	return nil
}

func (m *mockNoteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.notes[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockNoteRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	notes := []*domain.Note{}
	for _, n := range m.notes {
		if n.UserID == userID {
			cp := *n
			notes = append(notes, &cp)
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Order != notes[j].Order {
			return notes[i].Order < notes[j].Order
		}
		return notes[i].CreatedAt.Before(notes[j].CreatedAt)
	})
	return notes, nil
}

func (m *mockNoteRepository) ListByIDs(ctx context.Context, userID string, ids []string) ([]*domain.Note, error) {
	all, _ := m.ListByUser(ctx, userID)

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	notes := []*domain.Note{}
	for _, n := range all {
		if wanted[n.ID] {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

func (m *mockNoteRepository) Reorder(ctx context.Context, userID string, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, id := range orderedIDs {
		if n, ok := m.notes[id]; ok && n.UserID == userID {
			n.Order = i
		}
	}
	return nil
}

func (m *mockNoteRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notes[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

// mockChatRepository also serves as the article repository so that essay
// appends land in both views.
type mockChatRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.ChatSession
	messages map[string][]*domain.ChatMessage
	articles map[string]*domain.Article
}

func newMockChatRepository() *mockChatRepository {
	return &mockChatRepository{
		sessions: make(map[string]*domain.ChatSession),
		messages: make(map[string][]*domain.ChatMessage),
		articles: make(map[string]*domain.Article),
	}
}

func (m *mockChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *session
	m.sessions[session.ID] = &cp
	return nil
}

func (m *mockChatRepository) FindSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockChatRepository) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := []*domain.ChatSession{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			sessions = append(sessions, &cp)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (m *mockChatRepository) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Title = title
	return nil
}

func (m *mockChatRepository) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *mockChatRepository) AppendMessages(ctx context.Context, sessionID string, messages ...*domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.appendLocked(sessionID, messages)
}

func (m *mockChatRepository) appendLocked(sessionID string, messages []*domain.ChatMessage) error {
	if _, ok := m.sessions[sessionID]; !ok {
		return repository.ErrNotFound
	}

	seq := int64(len(m.messages[sessionID]))
	for _, msg := range messages {
		seq++
		msg.SessionID = sessionID
		msg.Sequence = seq
		cp := *msg
		m.messages[sessionID] = append(m.messages[sessionID], &cp)
	}
	return nil
}

func (m *mockChatRepository) AppendEssay(ctx context.Context, message *domain.ChatMessage, article *domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.appendLocked(message.SessionID, []*domain.ChatMessage{message}); err != nil {
		return err
	}
	cp := *article
	m.articles[article.ID] = &cp
	return nil
}

func (m *mockChatRepository) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := []*domain.ChatMessage{}
	for _, msg := range m.messages[sessionID] {
		cp := *msg
		messages = append(messages, &cp)
	}
	return messages, nil
}

func (m *mockChatRepository) FindByID(ctx context.Context, id string) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.articles[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockChatRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	articles := []*domain.Article{}
	for _, a := range m.articles {
		if a.UserID == userID {
			cp := *a
			articles = append(articles, &cp)
		}
	}
	return articles, nil
}

func (m *mockChatRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	articles, _ := m.ListByUser(ctx, userID)
	return int64(len(articles)), nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Complete(ctx context.Context, req completion.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type publishedEvent struct {
	UserID  string
	Event   string
	Payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishToUser(userID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{UserID: userID, Event: event, Payload: payload})
}

func (p *recordingPublisher) last() publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return publishedEvent{}
	}
	return p.events[len(p.events)-1]
}

type staticCatalogue struct {
	models []domain.ModelInfo
}

func newStaticCatalogue() *staticCatalogue {
	return &staticCatalogue{models: []domain.ModelInfo{
		{ID: "gpt-4", Persona: domain.PersonaFormal, Instruction: "formal persona", MaxTokens: 150, EssayTokens: 1000},
		{ID: "gpt-3.5-turbo", Persona: domain.PersonaCasual, Instruction: "casual persona", MaxTokens: 100, EssayTokens: 800},
	}}
}

func (c *staticCatalogue) Models() []domain.ModelInfo {
	return c.models
}

func (c *staticCatalogue) Lookup(id string) (domain.ModelInfo, bool) {
	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return domain.ModelInfo{}, false
}

func (c *staticCatalogue) Default() domain.ModelInfo {
	return c.models[0]
}
