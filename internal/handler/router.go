package handler

import (
	"net/http"

	"gptme-server/internal/config"
	"gptme-server/internal/middleware"
	"gptme-server/internal/observability"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Notes     *NoteHandler
	Chats     *ChatHandler
	Articles  *ArticleHandler
	WebSocket *WebSocketHandler

	Tokens     middleware.TokenValidator
	CookieName string
	CORS       config.CORSConfig
	Metrics    *observability.Collector
	Logger     *zap.Logger
}

// NewRouter registers every route and wraps the router in CORS handling so
// preflight requests are answered before route matching.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.RecoveryMiddleware(cfg.Logger))
	r.Use(middleware.LoggerMiddleware(cfg.Logger, cfg.Metrics))

	r.HandleFunc("/health", Health).Methods("GET")
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods("GET")
	}

	r.HandleFunc("/register", cfg.Auth.Register).Methods("POST")
	r.HandleFunc("/login", cfg.Auth.Login).Methods("POST")
	r.HandleFunc("/refresh", cfg.Auth.Refresh).Methods("POST")
	r.HandleFunc("/logout", cfg.Auth.Logout).Methods("GET", "POST")

	if cfg.WebSocket != nil {
		r.HandleFunc("/ws", cfg.WebSocket.HandleConnection)
	}

	protected := r.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.Tokens, cfg.CookieName))

	protected.HandleFunc("/me", cfg.Users.GetMe).Methods("GET")
	protected.HandleFunc("/models", cfg.Users.ListModels).Methods("GET")
	protected.HandleFunc("/select_model", cfg.Users.SelectModel).Methods("POST")

	protected.HandleFunc("/new_session", cfg.Chats.NewSession).Methods("POST")
	protected.HandleFunc("/generate_title", cfg.Chats.GenerateTitle).Methods("POST")
	protected.HandleFunc("/chat", cfg.Chats.Chat).Methods("POST")
	protected.HandleFunc("/generate_essay", cfg.Chats.GenerateEssay).Methods("POST")
	protected.HandleFunc("/get_session_messages/{session_id}", cfg.Chats.SessionMessages).Methods("GET")
	protected.HandleFunc("/get_user_sessions", cfg.Chats.UserSessions).Methods("GET")
	protected.HandleFunc("/delete_session/{session_id}", cfg.Chats.DeleteSession).Methods("DELETE")

	protected.HandleFunc("/save_note", cfg.Notes.Save).Methods("POST")
	protected.HandleFunc("/get_notes", cfg.Notes.List).Methods("GET")
	protected.HandleFunc("/search_notes", cfg.Notes.Search).Methods("GET")
	protected.HandleFunc("/get_selected_notes", cfg.Notes.Selected).Methods("POST")
	protected.HandleFunc("/update_notes_order", cfg.Notes.Reorder).Methods("POST")
	protected.HandleFunc("/delete_note/{id}", cfg.Notes.Delete).Methods("DELETE")

	protected.HandleFunc("/get_articles", cfg.Articles.List).Methods("GET")
	protected.HandleFunc("/articles/{id}", cfg.Articles.Get).Methods("GET")
	protected.HandleFunc("/articles/{id}/html", cfg.Articles.RenderHTML).Methods("GET")

	return middleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)(r)
}
