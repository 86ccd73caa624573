package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gptme-server/internal/completion"
	"gptme-server/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatFixture struct {
	service *ChatService
	chats   *mockChatRepository
	notes   *NoteService
	users   *mockUserRepository
	gateway *mockGateway
	pub     *recordingPublisher
}

func newChatFixture() *chatFixture {
	users := newMockUserRepository()
	noteRepo := newMockNoteRepository()
	chats := newMockChatRepository()
	gateway := &mockGateway{}
	pub := &recordingPublisher{}

	users.Create(context.Background(), &domain.User{ID: "user1", Username: "one"})
	users.Create(context.Background(), &domain.User{ID: "user2", Username: "two"})

	models := NewModelService(users, newStaticCatalogue(), pub)
	return &chatFixture{
		service: NewChatService(chats, noteRepo, chats, gateway, models, pub, nil, zap.NewNop()),
		chats:   chats,
		notes:   NewNoteService(noteRepo, pub, nil, zap.NewNop()),
		users:   users,
		gateway: gateway,
		pub:     pub,
	}
}

func (f *chatFixture) session(t *testing.T, userID string) *domain.ChatSession {
	t.Helper()
	s, err := f.service.CreateSession(context.Background(), userID)
	require.NoError(t, err)
	return s
}

func TestChatService_CreateSession(t *testing.T) {
	f := newChatFixture()

	s := f.session(t, "user1")
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, domain.DefaultSessionTitle, s.Title)

	sessions, err := f.service.ListSessions(context.Background(), "user1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, s.ID, sessions[0].ID)
	assert.Equal(t, EventSessionCreated, f.pub.last().Event)
}

func TestChatService_ListSessionsNewestFirst(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	older := f.session(t, "user1")
	f.chats.sessions[older.ID].CreatedAt = time.Now().Add(-time.Hour)
	newer := f.session(t, "user1")
	f.session(t, "user2")

	sessions, err := f.service.ListSessions(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, older.ID, sessions[1].ID)
}

func TestChatService_AppendTurn(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	f.gateway.On("Complete", mock.Anything, completion.Request{
		Model:             "gpt-3.5-turbo",
		SystemInstruction: "casual persona",
		UserContent:       "hello",
		MaxTokens:         100,
	}).Return("hi there", nil).Once()

	reply, err := f.service.AppendTurn(ctx, "user1", &domain.ChatRequest{
		Message:   "hello",
		SessionID: s.ID,
		Model:     "gpt-3.5-turbo",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	f.gateway.AssertExpectations(t)

	messages, err := f.service.ListMessages(ctx, "user1", s.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, messages[1].Role)
	assert.Equal(t, "hi there", messages[1].Content)
	assert.Less(t, messages[0].Sequence, messages[1].Sequence)
	assert.False(t, messages[1].IsEssay)
}

func TestChatService_AppendTurnUsesSelectedModel(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	require.NoError(t, f.users.UpdateSelectedModel(ctx, "user1", "gpt-3.5-turbo"))

	f.gateway.On("Complete", mock.Anything, mock.MatchedBy(func(req completion.Request) bool {
		return req.Model == "gpt-3.5-turbo" && req.SystemInstruction == "casual persona"
	})).Return("yo", nil).Once()

	_, err := f.service.AppendTurn(ctx, "user1", &domain.ChatRequest{Message: "hey", SessionID: s.ID})
	require.NoError(t, err)
	f.gateway.AssertExpectations(t)
}

func TestChatService_AppendTurnGatewayFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "gateway error", err: &completion.GatewayError{Message: "rate limited"}},
		{name: "empty completion", err: completion.ErrEmptyCompletion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture()
			ctx := context.Background()
			s := f.session(t, "user1")

			f.gateway.On("Complete", mock.Anything, mock.Anything).Return("", tt.err).Once()

			_, err := f.service.AppendTurn(ctx, "user1", &domain.ChatRequest{Message: "hello", SessionID: s.ID})
			assert.ErrorIs(t, err, tt.err)

			messages, err := f.service.ListMessages(ctx, "user1", s.ID)
			require.NoError(t, err)
			assert.Empty(t, messages)
		})
	}
}

func TestChatService_AppendTurnInvalidSession(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	foreign := f.session(t, "user2")

	for _, id := range []string{"missing", foreign.ID} {
		_, err := f.service.AppendTurn(ctx, "user1", &domain.ChatRequest{Message: "hi", SessionID: id})
		assert.ErrorIs(t, err, ErrInvalidSession)
	}
	f.gateway.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestChatService_GenerateTitle(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	f.gateway.On("Complete", mock.Anything, mock.MatchedBy(func(req completion.Request) bool {
		return req.SystemInstruction == titleInstruction && req.UserContent == "How do I bake bread?"
	})).Return(`  "Baking Bread At Home."  `, nil).Once()

	title, err := f.service.GenerateTitle(ctx, "user1", &domain.GenerateTitleRequest{
		Message:   "How do I bake bread?",
		SessionID: s.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Baking Bread At Home", title)

	stored, err := f.chats.FindSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Baking Bread At Home", stored.Title)

	ev := f.pub.last()
	assert.Equal(t, EventSessionTitle, ev.Event)
	assert.Equal(t, SessionEvent{SessionID: s.ID, Title: "Baking Bread At Home"}, ev.Payload)
}

func TestChatService_GenerateTitleFailures(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")
	foreign := f.session(t, "user2")

	_, err := f.service.GenerateTitle(ctx, "user1", &domain.GenerateTitleRequest{Message: "x", SessionID: "missing"})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = f.service.GenerateTitle(ctx, "user1", &domain.GenerateTitleRequest{Message: "x", SessionID: foreign.ID})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	gwErr := &completion.GatewayError{Message: "boom"}
	f.gateway.On("Complete", mock.Anything, mock.Anything).Return("", gwErr).Once()

	_, err = f.service.GenerateTitle(ctx, "user1", &domain.GenerateTitleRequest{Message: "x", SessionID: s.ID})
	assert.ErrorIs(t, err, gwErr)

	stored, _ := f.chats.FindSession(ctx, s.ID)
	assert.Equal(t, domain.DefaultSessionTitle, stored.Title)
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Simple Title", want: "Simple Title"},
		{in: `"Quoted Title"`, want: "Quoted Title"},
		{in: "“Smart Quotes”", want: "Smart Quotes"},
		{in: "One two three four five six seven", want: "One two three four five"},
		{in: "Ends with period.", want: "Ends with period"},
		{in: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanTitle(tt.in))
		})
	}
}

func TestChatService_GenerateEssay(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	a, err := f.notes.Add(ctx, "user1", &domain.SaveNoteRequest{Note: "Cats sleep a lot", Category: "Pets"})
	require.NoError(t, err)
	b, err := f.notes.Add(ctx, "user1", &domain.SaveNoteRequest{Note: "Dogs bark", Category: "Pets"})
	require.NoError(t, err)
	foreign, err := f.notes.Add(ctx, "user2", &domain.SaveNoteRequest{Note: "secret", Category: "Private"})
	require.NoError(t, err)

	f.gateway.On("Complete", mock.Anything, completion.Request{
		Model:             "gpt-4",
		SystemInstruction: essayInstruction,
		UserContent:       "Pets: Cats sleep a lot\n\nPets: Dogs bark",
		MaxTokens:         1000,
	}).Return("An essay about pets.", nil).Twice()

	req := &domain.GenerateEssayRequest{
		NoteIDs:   []string{b[1].ID, foreign[0].ID, a[0].ID},
		SessionID: s.ID,
	}

	article, err := f.service.GenerateEssay(ctx, "user1", req)
	require.NoError(t, err)
	assert.Equal(t, "An essay about pets.", article.Content)
	assert.Equal(t, "Generated Article 1", article.Title)
	assert.Equal(t, s.ID, article.SessionID)

	second, err := f.service.GenerateEssay(ctx, "user1", req)
	require.NoError(t, err)
	assert.Equal(t, "Generated Article 2", second.Title)
	f.gateway.AssertExpectations(t)

	messages, err := f.service.ListMessages(ctx, "user1", s.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.True(t, messages[0].IsEssay)
	assert.Equal(t, domain.RoleAssistant, messages[0].Role)

	stored, err := f.chats.FindByID(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, "user1", stored.UserID)
	assert.Equal(t, EventEssayGenerated, f.pub.last().Event)
}

func TestChatService_GenerateEssayNoValidNotes(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	foreign, err := f.notes.Add(ctx, "user2", &domain.SaveNoteRequest{Note: "secret"})
	require.NoError(t, err)

	for _, ids := range [][]string{{}, {"missing"}, {foreign[0].ID}} {
		_, err := f.service.GenerateEssay(ctx, "user1", &domain.GenerateEssayRequest{NoteIDs: ids, SessionID: s.ID})
		assert.ErrorIs(t, err, ErrNoValidNotes)
	}

	messages, _ := f.service.ListMessages(ctx, "user1", s.ID)
	assert.Empty(t, messages)
	count, _ := f.chats.CountByUser(ctx, "user1")
	assert.Zero(t, count)
	f.gateway.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestChatService_GenerateEssayGatewayFailure(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	notes, err := f.notes.Add(ctx, "user1", &domain.SaveNoteRequest{Note: "n"})
	require.NoError(t, err)

	f.gateway.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Once()

	_, err = f.service.GenerateEssay(ctx, "user1", &domain.GenerateEssayRequest{NoteIDs: []string{notes[0].ID}, SessionID: s.ID})
	assert.Error(t, err)

	messages, _ := f.service.ListMessages(ctx, "user1", s.ID)
	assert.Empty(t, messages)
	count, _ := f.chats.CountByUser(ctx, "user1")
	assert.Zero(t, count)
}

func TestChatService_GenerateEssayInvalidSession(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	foreign := f.session(t, "user2")

	notes, err := f.notes.Add(ctx, "user1", &domain.SaveNoteRequest{Note: "n"})
	require.NoError(t, err)

	_, err = f.service.GenerateEssay(ctx, "user1", &domain.GenerateEssayRequest{NoteIDs: []string{notes[0].ID}, SessionID: foreign.ID})
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestChatService_GenerateEssaySessionDeletedMidCall(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	notes, err := f.notes.Add(ctx, "user1", &domain.SaveNoteRequest{Note: "n"})
	require.NoError(t, err)

	f.gateway.On("Complete", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { f.chats.DeleteSession(ctx, s.ID) }).
		Return("An essay.", nil).Once()

	_, err = f.service.GenerateEssay(ctx, "user1", &domain.GenerateEssayRequest{NoteIDs: []string{notes[0].ID}, SessionID: s.ID})
	assert.ErrorIs(t, err, ErrInvalidSession)

	count, _ := f.chats.CountByUser(ctx, "user1")
	assert.Zero(t, count)
}

func TestChatService_ListMessagesForeignSession(t *testing.T) {
	f := newChatFixture()
	foreign := f.session(t, "user2")

	_, err := f.service.ListMessages(context.Background(), "user1", foreign.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestChatService_DeleteSession(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()
	s := f.session(t, "user1")

	f.gateway.On("Complete", mock.Anything, mock.Anything).Return("reply", nil).Once()
	_, err := f.service.AppendTurn(ctx, "user1", &domain.ChatRequest{Message: "hi", SessionID: s.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, f.service.DeleteSession(ctx, "user2", s.ID), ErrInvalidSession)

	require.NoError(t, f.service.DeleteSession(ctx, "user1", s.ID))
	_, err = f.service.ListMessages(ctx, "user1", s.ID)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Empty(t, f.chats.messages[s.ID])
	assert.Equal(t, EventSessionDeleted, f.pub.last().Event)
}
