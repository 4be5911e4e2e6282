package persistence

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic      = errors.New("bad chunk magic")
	ErrVersion       = errors.New("unsupported chunk version")
	ErrChecksum      = errors.New("chunk checksum mismatch")
	ErrTruncated     = errors.New("chunk record truncated")
	ErrFlushInFlight = errors.New("flush already in flight")
	ErrUnknownKind   = errors.New("unknown backend kind")
)

// NotFoundError is returned when a project does not exist.
type NotFoundError struct {
	Project string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("project %q not found", e.Project)
}

// CorruptDataError reports a persisted record that cannot be decoded.
type CorruptDataError struct {
	Project string
	Record  string
	Err     error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("project %q: corrupt %s: %v", e.Project, e.Record, e.Err)
}

func (e *CorruptDataError) Unwrap() error {
	return e.Err
}

// IOError wraps a storage failure. Callers keep their dirty state and retry.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// wrapIO leaves typed data errors alone and wraps everything else.
func wrapIO(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	var cd *CorruptDataError
	if errors.As(err, &nf) || errors.As(err, &cd) {
		return err
	}
	return &IOError{Op: op, Err: err}
}
