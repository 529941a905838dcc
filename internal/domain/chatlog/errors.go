package chatlog

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies engine failures by how the caller is expected to react.
type Kind string

const (
	// KindSchema: required columns missing. Fatal for the run.
	KindSchema Kind = "schema"
	// KindParse: a single row could not be parsed. The row is dropped.
	KindParse Kind = "parse"
	// KindService: an external call failed after retries. Callers degrade to a fallback.
	KindService Kind = "service"
	// KindPersistence: the backing store failed after retries. Fatal, resumable from the batch boundary.
	KindPersistence Kind = "persistence"
	// KindValidation: bad caller input.
	KindValidation Kind = "validation"
)

// Error is the canonical engine error. Batch fields are only meaningful for
// KindPersistence; LastCompletedBatch is -1 when no batch finished.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error

	BatchIndex         int
	BatchStart         int
	BatchEnd           int
	LastCompletedBatch int
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if op := strings.TrimSpace(e.Op); op != "" {
		b.WriteString(op)
		b.WriteString(": ")
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(msg)
	} else if e.Cause != nil {
		b.WriteString(e.Cause.Error())
	} else {
		b.WriteString("failed")
	}
	if e.Kind == KindPersistence {
		fmt.Fprintf(&b, " (batch=%d rows=[%d,%d) last_completed=%d)", e.BatchIndex, e.BatchStart, e.BatchEnd, e.LastCompletedBatch)
	}
	fmt.Fprintf(&b, " (%s)", e.Kind)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:               kind,
		Op:                 strings.TrimSpace(op),
		Message:            strings.TrimSpace(message),
		Cause:              cause,
		LastCompletedBatch: -1,
	}
}

// Wrap tags err with kind; nil stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(kind, op, "", err)
}

// SchemaError names the missing required columns.
func SchemaError(missing []string) error {
	return NewError(KindSchema, "normalize", fmt.Sprintf("missing columns: [%s]", strings.Join(missing, ", ")), nil)
}

// ParseError reports an unparseable row value.
func ParseError(row int, column string, value any) error {
	return NewError(KindParse, "normalize", fmt.Sprintf("row %d: unparseable %s %q", row, column, fmt.Sprint(value)), nil)
}

// PersistenceError carries the batch boundary so a run can resume.
func PersistenceError(op string, batchIndex, start, end, lastCompleted int, cause error) error {
	e := NewError(KindPersistence, op, "", cause)
	e.BatchIndex = batchIndex
	e.BatchStart = start
	e.BatchEnd = end
	e.LastCompletedBatch = lastCompleted
	return e
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
