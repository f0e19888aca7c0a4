package show

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the show package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, show.ErrValidation) {
//	    // reject the show file, keep the engine running
//	}
var (
	// ErrValidation is returned when a show's step records fail to compile.
	ErrValidation = errors.New("show: validation failed")

	// ErrVersionMismatch is returned when a show file's schema version
	// does not match the engine's expected version.
	ErrVersionMismatch = errors.New("show: version mismatch")

	// ErrTokenMismatch is returned when a play call supplies tokens the
	// show does not declare.
	ErrTokenMismatch = errors.New("show: token mismatch")

	// ErrInvalidStep is returned for an out-of-range explicit step target.
	ErrInvalidStep = errors.New("show: invalid step")

	// ErrShowNotFound is returned when a named show is not in the library.
	ErrShowNotFound = errors.New("show: not found")

	// ErrStopped is returned when operating on an already-stopped instance.
	ErrStopped = errors.New("show: instance stopped")
)

// ValidationError reports a compile failure, naming the show and the
// offending step or key so the author can find it.
type ValidationError struct {
	Show   string
	Step   int    // 0-based step record index, -1 when not step-specific
	Key    string // offending section or device key, "" when not key-specific
	Reason string
	Hint   string // optional "did you mean" suggestion
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "show %q", e.Show)
	if e.Step >= 0 {
		fmt.Fprintf(&b, " step %d", e.Step)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key %q", e.Key)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Hint != "" {
		fmt.Fprintf(&b, " (did you mean %q?)", e.Hint)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// VersionError reports a show-schema version mismatch at load time.
type VersionError struct {
	Show     string
	Required int
	Found    int // 0 when the file carries no version marker
}

func (e *VersionError) Error() string {
	if e.Found == 0 {
		return fmt.Sprintf("show %q: missing #show_version marker (required %d)", e.Show, e.Required)
	}
	return fmt.Sprintf("show %q: show_version %d, engine requires %d", e.Show, e.Found, e.Required)
}

func (e *VersionError) Unwrap() error { return ErrVersionMismatch }

// TokenMismatchError reports play-time tokens that are not a subset of
// the show's declared token set. It rejects only the offending play
// call; the compiled show is unaffected.
type TokenMismatchError struct {
	Show     string
	Unknown  []string
	Declared []string
}

func (e *TokenMismatchError) Error() string {
	return fmt.Sprintf("show %q: unknown tokens %v (declared: %v)",
		e.Show, e.Unknown, e.Declared)
}

func (e *TokenMismatchError) Unwrap() error { return ErrTokenMismatch }

// InvalidStepError reports a negative or out-of-range explicit step
// target passed to an advance call.
type InvalidStepError struct {
	Show string
	Step int // the 1-based target that was rejected
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("show %q: invalid step target %d", e.Show, e.Step)
}

func (e *InvalidStepError) Unwrap() error { return ErrInvalidStep }
