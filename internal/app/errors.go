package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// Shown to end users; must not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrRegistrationFieldsRequired = errors.New("email, username and password are required")
	ErrEmailAlreadyRegistered     = errors.New("Email already registered")
	ErrUsernameTaken              = errors.New("Username already taken")

	ErrRefreshTokenRequired = errors.New("refresh token required")

	// ErrEmptyMessage rejects chat turns whose trimmed message is empty.
	ErrEmptyMessage = errors.New("Message empty")

	ErrCourseNotFound    = errors.New("course not found")
	ErrForbidden         = errors.New("forbidden")
	ErrKnowledgeNotFound = errors.New("knowledge entry not found")
)
