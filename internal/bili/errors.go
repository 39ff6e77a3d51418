package bili

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure. Only ErrKindAuth and
// ErrKindFilesystem (at startup) abort a whole run; everything else is
// handled at the per-item boundary.
type ErrorKind string

const (
	ErrKindAuth        ErrorKind = "auth"
	ErrKindNetwork     ErrorKind = "network"
	ErrKindRateLimited ErrorKind = "rate_limited"
	ErrKindNoRendition ErrorKind = "no_rendition"
	ErrKindRemux       ErrorKind = "remux"
	ErrKindFilesystem  ErrorKind = "filesystem"
	ErrKindAPI         ErrorKind = "api"
)

type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func wrapError(kind ErrorKind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// WrapError tags err with kind so callers can route it with IsKind.
func WrapError(kind ErrorKind, msg string, err error) error {
	return wrapError(kind, msg, err)
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or ErrKindNetwork for untagged errors (transport failures reach the
// orchestrator untagged).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindNetwork
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
