package services

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmailInUse         = fmt.Errorf("%w: email already in use", ErrValidation)
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")

	ErrForbidden      = errors.New("forbidden")
	ErrAdminRequired  = fmt.Errorf("%w: admin role required", ErrForbidden)
	ErrNotGroupMember = fmt.Errorf("%w: not a member of this group", ErrForbidden)

	ErrNotFound       = errors.New("not found")
	ErrTaskNotFound   = fmt.Errorf("%w: task", ErrNotFound)
	ErrGroupNotFound  = fmt.Errorf("%w: group", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("%w: user", ErrNotFound)
	ErrInviteNotFound = fmt.Errorf("%w: invitation", ErrNotFound)
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
