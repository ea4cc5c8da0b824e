// Package errkind provides the structured error type shared across the
// daemon. It is grounded on the teacher's top-level errors.go
// (*Error{Op, DevID, Queue, Code, Errno, Msg, Inner}, Unwrap/Is) and on
// jangala-dev-devicecode-go/errcode (a string Code newtype implementing
// error, with an Of(err) extraction helper).
package errkind

import "fmt"

// Kind is a stable, log-facing error category. It is a string newtype:
// comparable, allocation-free, and an error in its own right so callers
// can return a bare Kind when there is no extra context to attach.
type Kind string

const (
	BufferFull             Kind = "buffer_full"
	InvalidSize            Kind = "invalid_size"
	TypeRegistrationFailed Kind = "type_registration_failed"
	SendFailure            Kind = "send_failure"
	PeerClosed             Kind = "peer_closed"
	CorruptEntry           Kind = "corrupt_entry"
	ConfigError            Kind = "config_error"
	QuotaExceeded          Kind = "quota_exceeded"
)

func (k Kind) Error() string { return string(k) }

// Error carries a Kind plus enough context to identify which session,
// channel or ring half was affected, mirroring the teacher's Error
// struct field-for-field in spirit.
type Error struct {
	Op      string // operation that failed, e.g. "AllocAndWrite", "sendmmsg"
	Kind    Kind
	Session string // producer PID or session identifier, empty if n/a
	Channel string // channel name, empty if n/a
	Msg     string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Session != "" && e.Channel != "":
		return fmt.Sprintf("datarouter: %s: %s (session=%s channel=%s)", e.Op, msg, e.Session, e.Channel)
	case e.Session != "":
		return fmt.Sprintf("datarouter: %s: %s (session=%s)", e.Op, msg, e.Session)
	case e.Channel != "":
		return fmt.Sprintf("datarouter: %s: %s (channel=%s)", e.Op, msg, e.Channel)
	default:
		return fmt.Sprintf("datarouter: %s: %s", e.Op, msg)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match both against another *Error with the same
// Kind and against a bare Kind value.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if k, ok := target.(Kind); ok {
		return e.Kind == k
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// New builds an Error with no extra context.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// Wrap builds an Error that carries a wrapped cause.
func Wrap(op string, kind Kind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Op: op, Kind: kind, Msg: msg, Cause: cause}
}

// ForSession returns a copy of err with a session identifier attached
// when err is an *Error; any other error is returned unchanged.
func ForSession(err error, session string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Session = session
	return &cp
}

// ForChannel attaches a channel name to an existing Error.
func ForChannel(err error, channel string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Channel = channel
	return &cp
}

// Of extracts a Kind from an error, defaulting to an empty Kind when err
// carries no recognizable kind. Mirrors errcode.Of from
// jangala-dev-devicecode-go.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := err.(Kind); ok {
		return k
	}
	type coder interface{ Kind() Kind }
	if c, ok := err.(coder); ok {
		return c.Kind()
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ""
}
