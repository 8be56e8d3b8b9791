package view

import "ttrpg-tracker/internal/app/session"

const (
	LoginPath     = "/login"
	LoginRequired = "Please log in to access this page."
)

type Access int

const (
	AccessLoading Access = iota
	AccessAllow
	AccessRedirect
)

type Route struct {
	Access  Access
	Path    string
	Message string
}

// Guard decides what a protected view shows for the current session.
func Guard(resolved bool, user *session.User) Route {
	switch {
	case !resolved:
		return Route{Access: AccessLoading}
	case user == nil:
		return Route{Access: AccessRedirect, Path: LoginPath, Message: LoginRequired}
	default:
		return Route{Access: AccessAllow}
	}
}
