package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"trackitall/internal/auth"
	"trackitall/internal/core"
	applog "trackitall/internal/log"
)

var (
	errMalformedBody = errors.New("malformed request body")
	errTooLarge      = errors.New("request body too large")
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case core.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStorageUnavailable),
		errors.Is(err, core.ErrBlobUnavailable),
		errors.Is(err, core.ErrQueueUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, errTooLarge):
		return "The uploaded file is too large."
	case errors.Is(err, errMalformedBody):
		return "The request body is not valid."
	default:
		return core.UserMessage(err)
	}
}

// writeError logs server faults and answers with the client safe message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	}
	writeJSON(w, status, errorResponse{Error: errorMessage(err)})
}

// principal returns the caller stored by the auth middleware. Every route
// using it sits behind that middleware.
func principal(r *http.Request) core.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// ownerFor picks the partition a request addresses: the caller's own unless
// ?owner= names another. The services reject a foreign owner for non-admins.
func ownerFor(r *http.Request, p core.Principal) string {
	if owner := r.URL.Query().Get("owner"); owner != "" {
		return owner
	}
	return p.ObjectID
}
