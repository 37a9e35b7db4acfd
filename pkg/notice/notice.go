// Package notice turns operation outcomes into short user-facing messages.
package notice

import (
	"fmt"

	"github.com/Sternrassler/mediahub-client/pkg/client"
	"github.com/Sternrassler/mediahub-client/pkg/validate"
)

// Level is the severity of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Common texts.
const (
	TitleError     = "Error"
	MessageConnect = "Could not connect to the server"
)

// Notice is a transient message shown after an operation.
type Notice struct {
	Level   Level
	Title   string
	Message string
}

// Success creates a success notice.
func Success(title, message string) Notice {
	return Notice{Level: LevelSuccess, Title: title, Message: message}
}

// Error creates an error notice.
func Error(title, message string) Notice {
	return Notice{Level: LevelError, Title: title, Message: message}
}

// IsError reports whether n reports a failure.
func (n Notice) IsError() bool {
	return n.Level == LevelError
}

func (n Notice) String() string {
	return fmt.Sprintf("[%s] %s: %s", n.Level, n.Title, n.Message)
}

// FromError maps err to an error notice. Backend rejections show the
// backend's message, or fallback when it sent none. Transport failures show
// a generic connectivity message.
func FromError(title string, err error, fallback string) Notice {
	switch {
	case err == nil:
		return Notice{}
	case validate.IsValidation(err):
		return Error(title, err.Error())
	case client.IsTransport(err):
		return Error(TitleError, MessageConnect)
	case client.IsRemote(err):
		if msg, ok := client.RemoteMessage(err); ok {
			return Error(title, msg)
		}
		return Error(title, fallback)
	default:
		return Error(title, fallback)
	}
}
