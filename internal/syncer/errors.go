package syncer

import (
	"github.com/pkg/errors"

	"collab-lab/internal/repositories"
	"collab-lab/internal/store"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrFileTooLarge    = errors.New("file exceeds the plan limit")
	ErrStorage         = errors.New("storage unavailable")
	ErrGroupNotFound   = repositories.ErrGroupNotFound
	ErrMessageNotFound = repositories.ErrMessageNotFound
	ErrUserNotFound    = repositories.ErrUserNotFound
	ErrRequestNotFound = errors.New("friend request not found")
	ErrBlobNotFound    = errors.New("file not found")
	ErrForbidden       = errors.New("only the group owner may do this")
	ErrNotMember       = errors.New("not a member of the group")
	ErrMuted           = errors.New("muted in this group")
	ErrNoActiveGroup   = errors.New("no active group")
	ErrInvalidReaction = errors.New("reaction must be a single emoji")
	ErrInvalidInput    = errors.New("invalid input")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrClosed          = errors.New("controller closed")
)

// Reason maps an error returned by the controller to a stable string the UI
// can switch on.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, ErrFileTooLarge):
		return "file_too_large"
	case errors.Is(err, ErrStorage), errors.Is(err, store.ErrUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrGroupNotFound), errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRequestNotFound),
		errors.Is(err, ErrBlobNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrMuted):
		return "muted"
	case errors.Is(err, ErrNoActiveGroup):
		return "no_active_group"
	case errors.Is(err, ErrInvalidReaction):
		return "invalid_reaction"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrUsernameTaken):
		return "conflict"
	}
	return "internal"
}

type storageError struct {
	cause error
}

func (e *storageError) Error() string { return ErrStorage.Error() + ": " + e.cause.Error() }

func (e *storageError) Is(target error) bool { return target == ErrStorage }

func (e *storageError) Unwrap() error { return e.cause }

// classify tags backend failures with ErrStorage and passes domain errors
// through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrUnavailable) {
		if _, ok := err.(*storageError); ok {
			return err
		}
		return &storageError{cause: err}
	}
	return err
}
