package handler

import (
	"net/http"

	"gptme-server/internal/domain"
	"gptme-server/internal/middleware"
	"gptme-server/internal/service"
	"gptme-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type UserHandler struct {
	userService  *service.UserService
	modelService *service.ModelService
	validator    *validator.Validate
	logger       *zap.Logger
}

func NewUserHandler(userService *service.UserService, modelService *service.ModelService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService:  userService,
		modelService: modelService,
		validator:    validator.New(),
		logger:       logger,
	}
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetByID(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, user)
}

func (h *UserHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.modelService.List(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, models)
}

func (h *UserHandler) SelectModel(w http.ResponseWriter, r *http.Request) {
	var req domain.SelectModelRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	if err := h.modelService.Select(r.Context(), middleware.GetUserID(r), req.Model); err != nil {
		writeError(w, h.logger, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"success": true,
		"model":   req.Model,
	})
}
