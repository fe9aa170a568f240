package identity

import (
	"errors"
	"fmt"

	"github.com/user/vernacular/pkg/auth"
)

// Code classifies login failures.
type Code string

const (
	CodeInvalidCredential  Code = "INVALID_CREDENTIAL"
	CodeTooManyAttempts    Code = "TOO_MANY_ATTEMPTS"
	CodeInvalidEmailFormat Code = "INVALID_EMAIL_FORMAT"
	CodeUnknown            Code = "AUTH_UNKNOWN"
)

// AuthError is returned by Provider.Login and Provider.Logout.
type AuthError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UserMessage is the text shown on a login surface for code.
func UserMessage(code Code) string {
	switch code {
	case CodeInvalidCredential:
		return "Invalid email or password."
	case CodeTooManyAttempts:
		return "Too many failed attempts. Please try again later."
	case CodeInvalidEmailFormat:
		return "Please enter a valid email address."
	default:
		return "Failed to sign in. Please check your credentials."
	}
}

func newAuthError(code Code, err error) *AuthError {
	return &AuthError{Code: code, Message: UserMessage(code), Err: err}
}

func ErrInvalidCredential(err error) *AuthError  { return newAuthError(CodeInvalidCredential, err) }
func ErrTooManyAttempts(err error) *AuthError    { return newAuthError(CodeTooManyAttempts, err) }
func ErrInvalidEmailFormat(err error) *AuthError { return newAuthError(CodeInvalidEmailFormat, err) }
func ErrUnknown(err error) *AuthError            { return newAuthError(CodeUnknown, err) }

// Is reports whether err carries an *AuthError with the given code.
func Is(err error, code Code) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Code == code
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// Translate maps a backend failure onto an *AuthError.
func Translate(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	switch auth.CodeOf(err) {
	case auth.CodeInvalidCredential, auth.CodeUserNotFound, auth.CodeWrongPassword:
		return ErrInvalidCredential(err)
	case auth.CodeTooManyRequests:
		return ErrTooManyAttempts(err)
	case auth.CodeInvalidEmail:
		return ErrInvalidEmailFormat(err)
	default:
		return ErrUnknown(err)
	}
}
