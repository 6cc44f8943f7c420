package conversation

import (
	"errors"
	"fmt"

	"lunchbot/slackmsg"

	"github.com/slack-go/slack"
)

// UserError is a problem with what the user typed or clicked. Its message
// is shown to them as is.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userErrorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

const genericFailure = "Sorry, something went wrong on my side. Please try again in a moment."

// ErrorReply turns an error from HandleCommand or HandleAction into the
// message the user sees.
func ErrorReply(err error) slack.Msg {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return slackmsg.Ephemeral(":warning: " + userErr.Message)
	}
	return slackmsg.Ephemeral(genericFailure)
}

// IsUserError reports whether err only needs to be shown, not logged as a failure.
func IsUserError(err error) bool {
	var userErr *UserError
	return errors.As(err, &userErr)
}
