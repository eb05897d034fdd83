package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ruteri/tee-agent-registry/interfaces"
)

// StatusForError maps registry errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRequestBodyTooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, interfaces.ErrNotOwner),
		errors.Is(err, interfaces.ErrAgentRemoved),
		errors.Is(err, interfaces.ErrNotWhitelisted):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrInvalidKeyType),
		errors.Is(err, interfaces.ErrInvalidArgument):
		return http.StatusBadRequest
	case interfaces.IsVerificationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrMeasurementsNotApproved),
		errors.Is(err, interfaces.ErrPlatformIDNotApproved),
		errors.Is(err, interfaces.ErrNotInLocalWhitelist),
		errors.Is(err, interfaces.ErrLocalModeOnly):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrSignerUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorResponse. Internal errors are logged and
// their detail is not exposed.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := StatusForError(err)
	resp := ErrorResponse{Error: err.Error()}

	var removed *interfaces.AgentRemovedError
	if errors.As(err, &removed) {
		resp.Reasons = removed.Reasons
	}
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "err", err)
		resp.Error = "internal server error"
	}
	WriteJSON(w, status, resp)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON body into v, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: limit is %d bytes", ErrRequestBodyTooBig, tooBig.Limit)
		}
		return errors.Join(interfaces.ErrInvalidArgument, err)
	}
	if err := validate(v); err != nil {
		return errors.Join(interfaces.ErrInvalidArgument, err)
	}
	return nil
}

// ParsePagination reads the offset and limit query parameters. Missing
// values default to 0, which for limit means no limit.
func ParsePagination(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: invalid offset %q", interfaces.ErrInvalidArgument, v)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("%w: invalid limit %q", interfaces.ErrInvalidArgument, v)
		}
	}
	return offset, limit, nil
}
