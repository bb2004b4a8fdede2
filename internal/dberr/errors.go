// Package dberr defines the engine-wide error taxonomy.
//
// The original Java backend throws a handful of shared Exception
// instances freely across every subsystem. Go has no exceptions, so
// each taxonomy entry becomes a Kind carried by a single wrapped error
// type; callers compare with errors.Is(err, dberr.ErrXxx) instead of
// catching by class.
package dberr

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Kind identifies one taxonomy entry from spec.md §7.
type Kind int

const (
	KindUnknown Kind = iota

	// Storage / file
	KindFileExists
	KindFileNotExists
	KindFileCannotRW
	KindBadXIDFile
	KindBadLogFile
	KindMemTooSmall
	KindDataTooLarge
	KindDatabaseBusy

	// Logical
	KindInvalidCommand
	KindInvalidField
	KindInvalidValues
	KindInvalidLogOp
	KindFieldNotFound
	KindFieldNotIndexed
	KindTableNotFound
	KindTableNoIndex
	KindDuplicatedTable
	KindNullEntry
	KindInvalidPkgData

	// Concurrency
	KindConcurrentUpdate
	KindDeadlock
	KindNestedTransaction
	KindNoTransaction
)

func (k Kind) String() string {
	switch k {
	case KindFileExists:
		return "FileExists"
	case KindFileNotExists:
		return "FileNotExists"
	case KindFileCannotRW:
		return "FileCannotRW"
	case KindBadXIDFile:
		return "BadXIDFile"
	case KindBadLogFile:
		return "BadLogFile"
	case KindMemTooSmall:
		return "MemTooSmall"
	case KindDataTooLarge:
		return "DataTooLarge"
	case KindDatabaseBusy:
		return "DatabaseBusy"
	case KindInvalidCommand:
		return "InvalidCommand"
	case KindInvalidField:
		return "InvalidField"
	case KindInvalidValues:
		return "InvalidValues"
	case KindInvalidLogOp:
		return "InvalidLogOp"
	case KindFieldNotFound:
		return "FieldNotFound"
	case KindFieldNotIndexed:
		return "FieldNotIndexed"
	case KindTableNotFound:
		return "TableNotFound"
	case KindTableNoIndex:
		return "TableNoIndex"
	case KindDuplicatedTable:
		return "DuplicatedTable"
	case KindNullEntry:
		return "NullEntry"
	case KindInvalidPkgData:
		return "InvalidPkgData"
	case KindConcurrentUpdate:
		return "ConcurrentUpdate"
	case KindDeadlock:
		return "Deadlock"
	case KindNestedTransaction:
		return "NestedTransaction"
	case KindNoTransaction:
		return "NoTransaction"
	default:
		return "Unknown"
	}
}

// Error is the single error type every subsystem returns for logical
// and concurrency failures. Unrecoverable storage failures go through
// Fatal instead (see below) and never return through this type.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, dberr.New(KindX, "")) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a Kind-tagged error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a Kind-tagged error around an underlying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Sentinel values for errors.Is comparisons against bare kinds.
var (
	ErrConcurrentUpdate  = New(KindConcurrentUpdate, "")
	ErrDeadlock          = New(KindDeadlock, "")
	ErrNestedTransaction = New(KindNestedTransaction, "")
	ErrNoTransaction     = New(KindNoTransaction, "")
	ErrDatabaseBusy      = New(KindDatabaseBusy, "")
	ErrTableNotFound     = New(KindTableNotFound, "")
	ErrFieldNotFound     = New(KindFieldNotFound, "")
	ErrFieldNotIndexed   = New(KindFieldNotIndexed, "")
	ErrDuplicatedTable   = New(KindDuplicatedTable, "")
)

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Fatal reports an unrecoverable storage failure (corrupt XID file,
// failed fsync, WAL corruption past bad-tail recovery) and terminates
// the process with a single diagnostic, per spec.md §7's propagation
// policy. It never returns.
func Fatal(log *logrus.Entry, kind Kind, msg string, cause error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	fields := logrus.Fields{"kind": kind.String()}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	log.WithFields(fields).Fatal(msg)
}
