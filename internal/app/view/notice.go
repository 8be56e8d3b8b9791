package view

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ttrpg-tracker/internal/app/apperr"
	"ttrpg-tracker/internal/app/session"
	"ttrpg-tracker/internal/domain/character"
)

const (
	NoticeVisibleFor = 4 * time.Second
	NoticeFadeFor    = time.Second
)

type NoticePhase int

const (
	NoticeVisible NoticePhase = iota
	NoticeFading
	NoticeGone
)

func (p NoticePhase) String() string {
	switch p {
	case NoticeVisible:
		return "visible"
	case NoticeFading:
		return "fading"
	default:
		return "gone"
	}
}

// Notice is a transient message that clears itself.
type Notice struct {
	Message string
	ShownAt time.Time
}

func (n Notice) Phase(now time.Time) NoticePhase {
	age := now.Sub(n.ShownAt)
	switch {
	case age < NoticeVisibleFor:
		return NoticeVisible
	case age < NoticeVisibleFor+NoticeFadeFor:
		return NoticeFading
	default:
		return NoticeGone
	}
}

const genericFailure = "Something went wrong. Please try again."

// MessageFor turns an operation error into the sentence shown to the user.
func MessageFor(err error) string {
	var (
		authErr *session.AuthError
		locked  *session.LockedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &locked):
		return locked.Message()
	case errors.As(err, &authErr):
		return authErr.Message()
	case errors.Is(err, ErrCreateInFlight):
		return "Still saving the previous character."
	case errors.Is(err, apperr.ErrLimitExceeded):
		return fmt.Sprintf("You can only have a maximum of %d characters.", character.MaxPerUser)
	case errors.Is(err, apperr.ErrInvalidInput):
		msg := err.Error()
		if i := strings.Index(msg, apperr.ErrInvalidInput.Error()+": "); i >= 0 {
			msg = msg[i+len(apperr.ErrInvalidInput.Error())+2:]
		}
		return msg
	default:
		return genericFailure
	}
}

// notices holds at most one live notice.
type notices struct {
	now     func() time.Time
	current *Notice
}

func (n *notices) show(err error) {
	n.current = &Notice{Message: MessageFor(err), ShownAt: n.now()}
}

func (n *notices) get() (Notice, bool) {
	if n.current == nil || n.current.Phase(n.now()) == NoticeGone {
		n.current = nil
		return Notice{}, false
	}
	return *n.current, true
}
