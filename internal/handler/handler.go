package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"gptme-server/internal/completion"
	"gptme-server/internal/service"
	"gptme-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// statusClientClosedRequest is written when the client disconnected before
// the handler finished.
const statusClientClosedRequest = 499

// failureWriter writes a failure body. response.Error puts the text under
// "error", response.Fail under "message".
type failureWriter func(w http.ResponseWriter, statusCode int, text string)

// decode reads a JSON body into dst and validates it. On failure the 400
// response is already written.
func decode(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	return decodeWith(w, r, validate, dst, response.Error)
}

func decodeWith(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}, fail failureWriter) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

// writeError maps service and gateway errors onto HTTP responses.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	writeErrorWith(w, logger, err, response.Error)
}

func writeErrorWith(w http.ResponseWriter, logger *zap.Logger, err error, fail failureWriter) {
	var gwErr *completion.GatewayError

	switch {
	case errors.Is(err, service.ErrDuplicateUsername):
		fail(w, http.StatusConflict, "Username already exists")
	case errors.Is(err, service.ErrAuthenticationFailure):
		fail(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, service.ErrInvalidRefreshToken):
		fail(w, http.StatusUnauthorized, "Invalid refresh token")
	case errors.Is(err, service.ErrNotFoundOrUnauthorized):
		response.Fail(w, http.StatusNotFound, "Not found or unauthorized")
	case errors.Is(err, service.ErrInvalidSession):
		fail(w, http.StatusNotFound, "Invalid session")
	case errors.Is(err, service.ErrSessionNotFound):
		fail(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, service.ErrUserNotFound):
		fail(w, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrNoValidNotes):
		response.Fail(w, http.StatusBadRequest, "No valid notes found")
	case errors.Is(err, service.ErrUnknownModel):
		fail(w, http.StatusBadRequest, "Unknown model")
	case errors.Is(err, completion.ErrEmptyCompletion):
		fail(w, http.StatusBadGateway, "The model returned an empty response")
	case errors.Is(err, context.Canceled):
		logger.Debug("Request canceled by client", zap.Error(err))
		fail(w, statusClientClosedRequest, "Request canceled")
	case errors.As(err, &gwErr):
		logger.Warn("Completion gateway failed",
			zap.String("model", gwErr.Model),
			zap.Int("status_code", gwErr.StatusCode),
			zap.Error(err),
		)
		fail(w, http.StatusBadGateway, gwErr.Message)
	default:
		logger.Error("Request failed", zap.Error(err))
		fail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]string{"status": "ok"})
}
