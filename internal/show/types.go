package show

import (
	"sort"
	"time"
)

// Step is one timeline entry: how long the step holds before the next
// one fires, and the action blocks dispatched when it is entered.
//
// A negative duration marks an open-ended step: the instance stalls
// there until it is advanced or stopped.
type Step struct {
	Duration time.Duration
	Actions  map[string]any // section name -> validated payload
}

// Path locates one token occurrence inside a compiled step list. The
// first element is the step index (int), the second the action section
// name (string), and the remaining elements map keys (string) or slice
// indices (int) inside the payload. For a key occurrence the final
// element is the token-marked key itself.
type Path []any

// TokenIndex records where each declared token occurs in a show's
// compiled step tree, split by occurrence kind. A token may occur many
// times; each occurrence contributes one path.
type TokenIndex struct {
	Values map[string][]Path // token name -> paths where it is a scalar value
	Keys   map[string][]Path // token name -> paths where it is a map key
}

// Has reports whether the token name is declared anywhere in the show.
func (ti TokenIndex) Has(name string) bool {
	if _, ok := ti.Values[name]; ok {
		return true
	}
	_, ok := ti.Keys[name]
	return ok
}

// Names returns the sorted set of declared token names.
func (ti TokenIndex) Names() []string {
	seen := make(map[string]struct{}, len(ti.Values)+len(ti.Keys))
	for name := range ti.Values {
		seen[name] = struct{}{}
	}
	for name := range ti.Keys {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Show is a compiled, token-indexed timeline. It is created once by
// Compile and read-only afterwards; instances work on private deep
// copies of its steps. The show tracks its running instances by opaque
// id only, never by reference.
type Show struct {
	name   string
	steps  []Step
	tokens TokenIndex

	// instanceIDs is the set of currently running instance ids.
	// Mutated only on the control-loop goroutine.
	instanceIDs map[int64]struct{}

	// lastStepIndex remembers where the most recent instance stopped,
	// so a resumed play can pick up from there.
	lastStepIndex int
}

// Name returns the show's identifier (file base name or logical name).
func (s *Show) Name() string { return s.name }

// TotalSteps returns the number of compiled steps.
func (s *Show) TotalSteps() int { return len(s.steps) }

// Tokens returns the sorted names of the show's declared tokens.
func (s *Show) Tokens() []string { return s.tokens.Names() }

// Steps returns an independent deep copy of the compiled steps, so
// callers can substitute tokens without aliasing shared state.
func (s *Show) Steps() []Step {
	return deepCopySteps(s.steps)
}

// RunningCount returns how many instances of this show are running.
func (s *Show) RunningCount() int { return len(s.instanceIDs) }

func (s *Show) registerInstance(id int64) {
	s.instanceIDs[id] = struct{}{}
}

func (s *Show) deregisterInstance(id int64) {
	delete(s.instanceIDs, id)
}

// deepCopySteps copies the step list including every nested action map
// and slice, so mutations on the copy never reach the original.
func deepCopySteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, step := range steps {
		actions := make(map[string]any, len(step.Actions))
		for key, payload := range step.Actions {
			actions[key] = deepCopyValue(payload)
		}
		out[i] = Step{Duration: step.Duration, Actions: actions}
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = deepCopyValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = deepCopyValue(inner)
		}
		return out
	default:
		return val
	}
}

// Logger is the minimal logging interface this package needs.
// Satisfied by *logging.Logger and by test fakes.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is configured.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
