package calls

import "errors"

var (
	ErrNotFound          = errors.New("calls: session not found")
	ErrUnauthorized      = errors.New("calls: user is not allowed to act on this session")
	ErrInvalidTransition = errors.New("calls: invalid state transition")
	ErrUserBusy          = errors.New("calls: user is busy")
	ErrUserNotFound      = errors.New("calls: user not found")
	ErrSelfCall          = errors.New("calls: cannot call yourself")
	ErrInvalidCallType   = errors.New("calls: invalid call type")
	ErrInvalidQuality    = errors.New("calls: invalid quality")
	ErrInvalidReason     = errors.New("calls: invalid end reason")
	ErrCallExists        = errors.New("calls: call id already exists")
)

// BusyError names which participant was busy. It matches ErrUserBusy.
type BusyError struct {
	UserID string
}

func (e *BusyError) Error() string { return ErrUserBusy.Error() + ": " + e.UserID }

func (e *BusyError) Is(target error) bool { return target == ErrUserBusy }
