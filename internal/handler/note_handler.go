package handler

import (
	"net/http"

	"gptme-server/internal/domain"
	"gptme-server/internal/middleware"
	"gptme-server/internal/service"
	"gptme-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewNoteHandler(service *service.NoteService, logger *zap.Logger) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *NoteHandler) writeNotes(w http.ResponseWriter, notes []*domain.Note) {
	response.Success(w, &domain.NotesResponse{
		Success: true,
		Notes:   domain.NewNoteResponses(notes),
	})
}

func (h *NoteHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req domain.SaveNoteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	notes, err := h.service.Add(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.writeNotes(w, notes)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.writeNotes(w, notes)
}

func (h *NoteHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	notes, err := h.service.Search(r.Context(), middleware.GetUserID(r), query.Get("query"), query.Get("category"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.writeNotes(w, notes)
}

func (h *NoteHandler) Selected(w http.ResponseWriter, r *http.Request) {
	var req domain.NoteIDsRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	notes, err := h.service.Selected(r.Context(), middleware.GetUserID(r), req.NoteIDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.writeNotes(w, notes)
}

func (h *NoteHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req domain.ReorderNotesRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	if err := h.service.Reorder(r.Context(), middleware.GetUserID(r), req.Notes); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, response.Response{Success: true})
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	noteID := mux.Vars(r)["id"]
	if noteID == "" {
		response.BadRequest(w, "Note ID is required")
		return
	}

	if err := h.service.Delete(r.Context(), middleware.GetUserID(r), noteID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.OK(w, "Note deleted successfully")
}
