package session

import (
	"fmt"
	"math"
	"time"
)

// Code identifies an identity provider failure. Values match what the API sends.
type Code string

const (
	CodeInvalidCredential Code = "invalid-credential"
	CodeWrongPassword     Code = "wrong-password"
	CodeUserNotFound      Code = "user-not-found"
	CodeEmailInUse        Code = "email-already-in-use"
	CodeInvalidEmail      Code = "invalid-email"
	CodeWeakPassword      Code = "weak-password"
	CodeTooManyRequests   Code = "too-many-requests"
	CodeUnknown           Code = "unknown"
)

var messages = map[Code]string{
	CodeInvalidCredential: "Invalid email or password.",
	CodeWrongPassword:     "Invalid password. Please try again.",
	CodeUserNotFound:      "No user found with this email.",
	CodeEmailInUse:        "This email is already in use.",
	CodeInvalidEmail:      "Invalid email address.",
	CodeWeakPassword:      "Password should be at least 6 characters long.",
	CodeTooManyRequests:   "Too many attempts. Please try again later.",
}

type Op string

const (
	OpLogin  Op = "login"
	OpSignup Op = "signup"
)

type AuthError struct {
	Code Code
	Op   Op
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Message is the sentence shown to the user.
func (e *AuthError) Message() string {
	if msg, ok := messages[e.Code]; ok {
		return msg
	}
	op := e.Op
	if op == "" {
		op = OpLogin
	}
	return fmt.Sprintf("An unexpected error occurred during %s.", op)
}

// LockedError is returned while the local sign-in lockout is active.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("sign-in locked for %ds", e.Seconds())
}

// Seconds rounds the remaining cooldown up to whole seconds.
func (e *LockedError) Seconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

func (e *LockedError) Message() string {
	return fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", e.Seconds())
}
