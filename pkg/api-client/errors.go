package apiclient

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Kind classifies why a request failed.
type Kind int

const (
	// No response was received (connection error, timeout, cancelled context).
	KindNetwork Kind = iota + 1
	// The server answered with an error status.
	KindServer
	// The request could not be built or the failure is otherwise unexplained.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindUnexpected:
		return "unexpected"
	}
	return "unknown"
}

const (
	MessageNoResponse = "No response from server"
	MessageUnexpected = "An unexpected error occurred"
)

// Error is the failure returned by every Client method.
// Message is suitable for showing to the user.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindServer {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MessageNoResponse, Err: err}
}

func unexpectedError(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: MessageUnexpected, Err: err}
}

// serverError builds the error for an error status.
// The message comes from the `message` or `error` field of the body when present.
func serverError(status int, body []byte) *Error {
	e := &Error{
		Kind:       KindServer,
		StatusCode: status,
		Message:    fmt.Sprintf("Request failed with status %d", status),
	}
	if !gjson.ValidBytes(body) {
		return e
	}
	for _, field := range []string{"message", "error"} {
		if v := gjson.GetBytes(body, field); v.Type == gjson.String && v.String() != "" {
			e.Message = v.String()
			break
		}
	}
	return e
}
