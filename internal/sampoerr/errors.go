// Package sampoerr defines the error taxonomy shared across the release
// planning engine, following a sentinel-error-plus-wrapper pattern used
// throughout the rest of this module.
package sampoerr

import "errors"

// Sentinel errors, one per recoverable condition the engine distinguishes.
var (
	ErrNotInitialized     = errors.New("sampo: .sampo directory not found")
	ErrNoPackagesFound    = errors.New("sampo: no packages found in workspace")
	ErrInvalidConfig      = errors.New("sampo: invalid configuration")
	ErrInvalidChangeset   = errors.New("sampo: invalid changeset")
	ErrUnknownPackage     = errors.New("sampo: unknown package")
	ErrAmbiguousPackage   = errors.New("sampo: ambiguous package reference")
	ErrInvalidVersion     = errors.New("sampo: invalid version")
	ErrConstraintViolated = errors.New("sampo: planned bump violates a dependency constraint")
	ErrBranchNotAllowed   = errors.New("sampo: current branch is not allowed to release")
	ErrIO                 = errors.New("sampo: I/O failure")
	ErrDuplicatePackage   = errors.New("sampo: duplicate package id across ecosystems")
)

// Kind classifies which sentinel an *Error wraps, for callers that want to
// switch on the condition without string-matching messages.
type Kind int

const (
	KindNotInitialized Kind = iota
	KindNoPackagesFound
	KindInvalidConfig
	KindInvalidChangeset
	KindUnknownPackage
	KindAmbiguousPackage
	KindInvalidVersion
	KindConstraintViolated
	KindBranchNotAllowed
	KindIO
	KindDuplicatePackage
)

var kindSentinel = map[Kind]error{
	KindNotInitialized:     ErrNotInitialized,
	KindNoPackagesFound:    ErrNoPackagesFound,
	KindInvalidConfig:      ErrInvalidConfig,
	KindInvalidChangeset:   ErrInvalidChangeset,
	KindUnknownPackage:     ErrUnknownPackage,
	KindAmbiguousPackage:   ErrAmbiguousPackage,
	KindInvalidVersion:     ErrInvalidVersion,
	KindConstraintViolated: ErrConstraintViolated,
	KindBranchNotAllowed:   ErrBranchNotAllowed,
	KindIO:                 ErrIO,
	KindDuplicatePackage:   ErrDuplicatePackage,
}

// Error is a taxonomy-tagged error with optional file/package context and
// an optional wrapped cause. errors.Is against the matching sentinel
// succeeds through the Is method; Unwrap returns the cause (nil when none
// is set), so errors.Is and errors.As also reach the cause.
type Error struct {
	Kind    Kind
	Message string
	File    string // affected file, when applicable
	Package string // affected package id, when applicable
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Package != "" {
		msg = e.Package + ": " + msg
	}
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's sentinel kind, so
// errors.Is(err, sampoerr.ErrUnknownPackage) works without needing the
// caller to unwrap through Cause.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinel[e.Kind]
	return ok && sentinel == target
}

// New constructs an *Error of the given kind with a message and no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithFile returns a copy of e with File set, for chaining onto New/Wrap.
func (e *Error) WithFile(file string) *Error {
	c := *e
	c.File = file
	return &c
}

// WithPackage returns a copy of e with Package set, for chaining onto New/Wrap.
func (e *Error) WithPackage(pkg string) *Error {
	c := *e
	c.Package = pkg
	return &c
}
