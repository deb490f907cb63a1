// internal/controller/respond.go
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/canvass-backend/internal/errors"
)

// BadRequestError marks malformed input: bad ids, query values or bodies.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var (
		bad   *BadRequestError
		stale *appErrors.StaleAssignmentError
		cfg   *appErrors.ConfigurationError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &stale):
		return http.StatusConflict
	case errors.As(err, &cfg):
		return http.StatusUnprocessableEntity
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrSuspended),
		errors.Is(err, appErrors.ErrForbidden),
		errors.Is(err, appErrors.ErrBulkSendDisabled):
		return http.StatusForbidden
	case errors.Is(err, appErrors.ErrOutsideTextingHours),
		errors.Is(err, appErrors.ErrContactOptedOut),
		errors.Is(err, appErrors.ErrMessageTooLong),
		errors.Is(err, appErrors.ErrEmptyMessage),
		errors.Is(err, appErrors.ErrInvalidMessageStatus):
		return http.StatusBadRequest
	case appErrors.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes err as {"error": ...}. Internal errors are logged and
// their text is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	var stale *appErrors.StaleAssignmentError
	switch {
	case errors.As(err, &stale):
		msg = stale.Error()
	case status == http.StatusServiceUnavailable:
		slog.WarnContext(r.Context(), "transient store error", "path", r.URL.Path, "error", err)
		msg = "temporarily unavailable, retry"
	case status == http.StatusInternalServerError:
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	WriteJSON(w, status, map[string]string{"error": msg})
}

// URLInt parses a positive integer URL parameter.
func URLInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// DecodeJSON decodes the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid body: %v", err)
	}
	return nil
}

type ctxKey int

const userIDKey ctxKey = iota

// UserIDHeader carries the acting user's id. Authentication happens in
// front of this service.
const UserIDHeader = "X-User-ID"

// Identify requires a positive user id header and stores it in the
// request context.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.Header.Get(UserIDHeader))
		if err != nil || id <= 0 {
			WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid " + UserIDHeader})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
	})
}

func WithUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the acting user, or 0 outside Identify.
func UserID(ctx context.Context) int {
	id, _ := ctx.Value(userIDKey).(int)
	return id
}
