package domain

import (
	"errors"
	"fmt"
)

// Категории ошибок. Конкретные ошибки оборачивают категорию,
// поэтому errors.Is работает и по категории, и по конкретной ошибке.
var (
	ErrAuthentication = errors.New("authentication error")
	ErrAuthorization  = errors.New("authorization error")
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrStore          = errors.New("store error")
)

var (
	ErrMissingCredential = fmt.Errorf("%w: missing or malformed credential", ErrAuthentication)
	ErrInvalidCredential = fmt.Errorf("%w: invalid or expired credential", ErrAuthentication)
	ErrUnauthenticated   = fmt.Errorf("%w: session is not authenticated", ErrAuthentication)

	ErrNotMember = fmt.Errorf("%w: user is not a member of this room", ErrAuthorization)
	ErrNotAdmin  = fmt.Errorf("%w: only a room admin can do this", ErrAuthorization)

	ErrEmptyContent     = fmt.Errorf("%w: content is empty", ErrValidation)
	ErrContentTooLong   = fmt.Errorf("%w: content is too long", ErrValidation)
	ErrInvalidType      = fmt.Errorf("%w: invalid message type", ErrValidation)
	ErrInvalidRoomKind  = fmt.Errorf("%w: invalid room kind", ErrValidation)
	ErrRoomNameRequired = fmt.Errorf("%w: room name is required", ErrValidation)
	ErrInvalidUserID    = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrSelfDirect       = fmt.Errorf("%w: cannot open a direct room with yourself", ErrValidation)

	ErrRoomNotFound    = fmt.Errorf("%w: room", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("%w: message", ErrNotFound)
	ErrNotInRoom       = fmt.Errorf("%w: user not in the room", ErrNotFound)

	ErrNotMessageOwner = fmt.Errorf("%w: only the sender can change this message", ErrForbidden)
	ErrNotRoomCreator  = fmt.Errorf("%w: only the room creator can do this", ErrForbidden)

	ErrMessageDeleted      = fmt.Errorf("%w: message is deleted", ErrConflict)
	ErrAlreadyJoined       = fmt.Errorf("%w: user already joined the room", ErrConflict)
	ErrRoomInactive        = fmt.Errorf("%w: room is inactive", ErrConflict)
	ErrDirectRoomFixed     = fmt.Errorf("%w: direct room membership cannot change", ErrConflict)
	ErrCannotRemoveCreator = fmt.Errorf("%w: room creator cannot be removed", ErrConflict)
)

// StoreError оборачивает сбой хранилища в категорию ErrStore.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
