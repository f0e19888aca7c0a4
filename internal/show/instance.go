package show

import (
	"sort"
	"time"
)

// PlayOptions configures one playback of a show.
type PlayOptions struct {
	// Priority arbitrates device ownership against other instances.
	Priority int

	// Speed divides step durations and fade times. Zero means 1.0.
	Speed float64

	// StartStep is 1-based; negative counts from the end (-1 = last
	// step). Zero starts at the beginning, or at the remembered
	// position when Resume is set.
	StartStep int

	// Loops is the number of additional times the timeline repeats
	// after the first pass: 0 plays once, 2 plays three times, -1
	// repeats forever.
	Loops int

	// SyncMS phase-locks the first step to the next clock boundary
	// that is a multiple of this many milliseconds. Zero falls back to
	// the controller default; negative disables syncing outright.
	SyncMS int

	// Resume continues from the step where this show last stopped
	// instead of resetting to the beginning. Ignored when StartStep is
	// set.
	Resume bool

	// ManualAdvance stalls the instance after every step until an
	// Advance or StepBack call moves it.
	ManualAdvance bool

	// Blend lets devices this instance releases fall through to the
	// next-highest holder instead of going idle.
	Blend bool

	// Hold keeps the instance's device values applied after it stops,
	// skipping the restore pass.
	Hold bool

	// Key is a caller-supplied handle; StopShowsByKey stops every
	// instance sharing it.
	Key string

	// Tokens maps declared token names to play-time values. Must be a
	// subset of the show's token set.
	Tokens map[string]any

	// Callback fires exactly once when the instance stops, whether it
	// completed its loops or was stopped externally.
	Callback func()
}

// Instance is one live playback of a Show: a private token-substituted
// step copy plus position, priority, and loop state. Instances are
// created and owned by the Controller; the state machine is
// running -> (paused <-> running) -> stopped, and stopped is terminal.
type Instance struct {
	c    *Controller
	id   int64
	show *Show
	key  string

	steps []Step

	nextStepIndex int
	priority      int
	speed         float64
	loops         int
	loopsPlayed   int
	manualAdvance bool
	blend         bool
	hold          bool
	tokens        map[string]any
	callback      func()

	nextStepTime time.Time
	pending      Handle
	hasPending   bool
	paused       bool
	stopped      bool

	executionID string
}

// ID returns the controller-assigned instance id.
func (in *Instance) ID() int64 { return in.id }

// Key returns the caller-supplied handle, if any.
func (in *Instance) Key() string { return in.key }

// ShowName returns the name of the show being played.
func (in *Instance) ShowName() string { return in.show.Name() }

// Priority returns the instance's arbitration priority.
func (in *Instance) Priority() int { return in.priority }

// Stopped reports whether the instance has reached its terminal state.
func (in *Instance) Stopped() bool { return in.stopped }

// Paused reports whether playback is paused.
func (in *Instance) Paused() bool { return in.paused }

// NextStepIndex returns the 0-based index of the next step to fire.
func (in *Instance) NextStepIndex() int { return in.nextStepIndex }

// LoopsPlayed returns how many times the timeline has wrapped.
func (in *Instance) LoopsPlayed() int { return in.loopsPlayed }

// runNextStep fires the current step and schedules the next one. The
// time guard makes stale scheduled invocations harmless: a cancelled
// or superseded entry that still fires sees now < nextStepTime and
// returns.
func (in *Instance) runNextStep(now time.Time) {
	if in.stopped || in.paused {
		return
	}
	if now.Before(in.nextStepTime) {
		return
	}
	in.hasPending = false

	if in.nextStepIndex >= len(in.steps) {
		switch {
		case in.loops > 0:
			in.loops--
			in.loopsPlayed++
			in.nextStepIndex = 0
			in.c.instanceLooped(in)
		case in.loops < 0:
			in.loopsPlayed++
			in.nextStepIndex = 0
			in.c.instanceLooped(in)
		default:
			in.stop("complete")
			return
		}
	}

	step := in.steps[in.nextStepIndex]
	in.dispatch(step)
	in.nextStepIndex++

	if in.manualAdvance {
		return
	}
	if step.Duration <= 0 {
		// Open-ended step: stall here until advanced or stopped.
		return
	}

	timeToNext := step.Duration
	if in.speed != 1 {
		timeToNext = time.Duration(float64(step.Duration) / in.speed)
	}
	in.nextStepTime = now.Add(timeToNext)
	in.pending = in.c.sched.ScheduleAt(in.nextStepTime, in.runNextStep)
	in.hasPending = true
}

// dispatch hands each action block of a step to its player, device
// classes first in apply order, then anything else alphabetically.
func (in *Instance) dispatch(step Step) {
	ctx := PlayContext{
		InstanceID: in.id,
		Key:        in.key,
		Priority:   in.priority,
		Speed:      in.speed,
		Blend:      in.blend,
	}
	for _, section := range orderedSections(step.Actions) {
		player, ok := in.c.players[section]
		if !ok {
			continue
		}
		player.Apply(in.c, ctx, step.Actions[section])
	}
}

// advance jumps playback. showStep is an explicit 1-based target (0
// means none); steps skips forward relative to the current position.
// The pending tick is cancelled and the target step fires immediately.
func (in *Instance) advance(steps int, showStep int) error {
	if in.stopped {
		return ErrStopped
	}
	if showStep < 0 {
		return &InvalidStepError{Show: in.show.Name(), Step: showStep}
	}

	in.cancelPending()
	total := len(in.steps)
	if showStep > 0 {
		if showStep > total {
			return &InvalidStepError{Show: in.show.Name(), Step: showStep}
		}
		in.nextStepIndex = showStep - 1
	} else {
		// nextStepIndex already points at the natural next step, so
		// advancing by one fires exactly that step.
		if steps < 1 {
			steps = 1
		}
		in.nextStepIndex = (in.nextStepIndex + steps - 1) % total
	}

	now := in.c.now
	in.nextStepTime = now
	in.paused = false
	in.runNextStep(now)
	return nil
}

// stepBack moves playback n steps backwards, wrapping at the start.
func (in *Instance) stepBack(n int) error {
	if in.stopped {
		return ErrStopped
	}
	if n < 1 {
		n = 1
	}

	in.cancelPending()
	total := len(in.steps)
	in.nextStepIndex = ((in.nextStepIndex-n)%total + total) % total

	now := in.c.now
	in.nextStepTime = now
	in.paused = false
	in.runNextStep(now)
	return nil
}

// pause cancels the pending tick without touching position or
// nextStepTime; resume re-derives behavior from those.
func (in *Instance) pause() {
	if in.stopped || in.paused {
		return
	}
	in.paused = true
	in.cancelPending()
}

// resume re-enters the tick; the time guard keeps an early resume from
// firing the next step ahead of schedule.
func (in *Instance) resume() {
	if in.stopped || !in.paused {
		return
	}
	in.paused = false

	now := in.c.now
	if now.Before(in.nextStepTime) {
		in.pending = in.c.sched.ScheduleAt(in.nextStepTime, in.runNextStep)
		in.hasPending = true
		return
	}
	in.runNextStep(now)
}

// stop is idempotent: the second and later calls are no-ops, so the
// completion callback fires exactly once and devices restore exactly
// once.
func (in *Instance) stop(reason string) {
	if in.stopped {
		return
	}
	in.stopped = true
	in.cancelPending()
	in.show.deregisterInstance(in.id)
	in.show.lastStepIndex = in.nextStepIndex % max(len(in.steps), 1)
	in.c.finishInstance(in, reason)

	if in.callback != nil {
		in.callback()
	}
}

func (in *Instance) cancelPending() {
	if in.hasPending {
		in.c.sched.Cancel(in.pending)
		in.hasPending = false
	}
}

// orderedSections returns action section names, device classes in
// apply order first, then the rest alphabetically.
func orderedSections(actions map[string]any) []string {
	var ordered []string
	seen := make(map[string]struct{}, len(actions))
	for _, section := range applyOrder {
		if _, ok := actions[section]; ok {
			ordered = append(ordered, section)
			seen[section] = struct{}{}
		}
	}
	var rest []string
	for section := range actions {
		if _, ok := seen[section]; !ok {
			rest = append(rest, section)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}
