package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viewtube/accounts/internal/common"
)

// Envelope is the uniform response body for every route.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// statusFromError maps sentinel errors onto HTTP status codes. Anything
// unrecognized is an internal error; its detail never reaches the caller.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrorInvalidCredentials),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenReused):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, common.ErrorDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// messageFromError picks the caller-facing message. Sentinel texts are safe;
// wrapped detail (driver errors, jwt internals) is dropped.
func messageFromError(err error) string {
	for _, sentinel := range []error{
		common.ErrorValidation,
		common.ErrorInvalidCredentials,
		common.ErrTokenReused,
		common.ErrTokenExpired,
		common.ErrInvalidToken,
		common.ErrorUnauthorized,
		common.ErrorNotFound,
		common.ErrorAlreadyExists,
		common.ErrorDependency,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return common.ErrorInternal.Error()
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFromError(err), nil, messageFromError(err))
}
