// Package notify delivers user-facing success and failure messages.
package notify

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// New creates a notification with a fresh ULID stamped at the given time.
// Times a ULID cannot carry, such as the zero time, get an ID stamped now.
func New(kind Kind, message string, at time.Time) Notification {
	var id ulid.ULID
	if at.Before(time.UnixMilli(0)) || ulid.Timestamp(at) > ulid.MaxTime() {
		id = ulid.Make()
	} else {
		id = ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy())
	}
	return Notification{
		ID:        id.String(),
		Kind:      kind,
		Message:   message,
		CreatedAt: at,
	}
}

// Emitter receives notifications. Implementations must not block.
type Emitter interface {
	Notify(n Notification)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Notification)

func (f EmitterFunc) Notify(n Notification) {
	f(n)
}

// Discard drops every notification.
var Discard Emitter = EmitterFunc(func(Notification) {})

// LogEmitter writes notifications to a zerolog logger.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(logger *zerolog.Logger) LogEmitter {
	if logger == nil {
		l := zerolog.New(zerolog.NewConsoleWriter())
		logger = &l
	}
	return LogEmitter{log: logger.With().Str("component", "notify").Logger()}
}

func (e LogEmitter) Notify(n Notification) {
	ev := e.log.Info()
	if n.Kind == KindError {
		ev = e.log.Warn()
	}
	ev.Str("id", n.ID).Str("type", string(n.Kind)).Msg(n.Message)
}
