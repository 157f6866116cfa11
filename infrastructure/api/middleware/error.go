package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/helixml/vectorizer/domain/vectorizer"
	"github.com/helixml/vectorizer/infrastructure/api/jsonapi"
	"github.com/helixml/vectorizer/infrastructure/embedding"
	"github.com/helixml/vectorizer/internal/database"
)

// ContentType is the JSON:API media type.
const ContentType = "application/vnd.api+json"

// StatusFor maps an error to its HTTP status code and title.
func StatusFor(err error) (int, string) {
	var apiErr *APIError
	var serverErr *ServerError

	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code(), "API Error"
	case errors.As(err, &serverErr):
		return serverErr.StatusCode(), "Server Error"
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, vectorizer.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, vectorizer.ErrSourceNotFound):
		return http.StatusNotFound, "Source Not Found"
	case errors.Is(err, vectorizer.ErrInvalidConfig),
		errors.Is(err, vectorizer.ErrInvalidIdentifier),
		errors.Is(err, vectorizer.ErrNoPrimaryKey):
		return http.StatusBadRequest, "Validation Error"
	case errors.Is(err, vectorizer.ErrNameCollision), errors.Is(err, vectorizer.ErrNoSchedule):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, vectorizer.ErrPermissionDenied):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, embedding.ErrPostgresRequired):
		return http.StatusNotImplemented, "Not Implemented"
	}
	return http.StatusInternalServerError, "Internal Server Error"
}

// WriteError writes a JSON:API formatted error response.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	status, title := StatusFor(err)

	detail := err.Error()
	var apiErr *APIError
	var serverErr *ServerError
	switch {
	case errors.As(err, &apiErr):
		detail = apiErr.Message()
	case errors.As(err, &serverErr):
		detail = serverErr.Message()
	}

	correlationID := GetCorrelationID(r.Context())
	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "request error",
			"correlation_id", correlationID,
			"status", status,
			"error", err.Error(),
			"path", r.URL.Path,
		)
	}

	e := jsonapi.NewError(strconv.Itoa(status), title, detail)
	e.ID = correlationID

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonapi.NewErrorResponse(e))
}

// WriteJSON writes a JSON:API response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
