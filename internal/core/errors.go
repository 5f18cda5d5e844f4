package core

import "errors"

// Client input errors.
var (
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDescription = errors.New("description too long (max 200 characters)")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidRange       = errors.New("start date must not be after end date")
	ErrInvalidEmail       = errors.New("missing email address")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("concurrent modification")
)

// Infrastructure errors. Raw driver errors are wrapped behind these at the
// service boundary.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrBlobUnavailable    = errors.New("blob store unavailable")
	ErrQueueUnavailable   = errors.New("queue unavailable")
)

// IsClientError reports whether err was caused by bad input rather than an
// infrastructure fault.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidCategory),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDescription),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrConflict):
		return true
	}
	return false
}

// UserMessage maps err to a message safe to show to API clients.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCategory):
		return "The selected category does not exist."
	case errors.Is(err, ErrInvalidAmount):
		return "The amount must be a positive number."
	case errors.Is(err, ErrInvalidDescription):
		return "The description is too long (max 200 characters)."
	case errors.Is(err, ErrInvalidDate):
		return "The date is not valid."
	case errors.Is(err, ErrInvalidRange):
		return "The start date must not be after the end date."
	case errors.Is(err, ErrInvalidEmail):
		return "No email address is known for this account."
	case errors.Is(err, ErrNotFound):
		return "The requested resource was not found."
	case errors.Is(err, ErrUnauthorized):
		return "You are not allowed to access this resource."
	case errors.Is(err, ErrConflict):
		return "The resource was modified concurrently, reload and try again."
	case errors.Is(err, ErrStorageUnavailable),
		errors.Is(err, ErrBlobUnavailable),
		errors.Is(err, ErrQueueUnavailable):
		return "The service is temporarily unavailable, please try again."
	default:
		return "An unexpected error occurred."
	}
}
