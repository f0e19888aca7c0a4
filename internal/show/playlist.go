package show

import (
	"sort"
	"time"
)

// PlaylistEntry is one show within a playlist step.
type PlaylistEntry struct {
	Show  *Show
	Loops int
	Speed float64
	Blend bool

	// Repeat makes the show loop for the step's whole duration
	// (equivalent to Loops = -1). Ignored for the step's trigger show.
	Repeat bool
}

// StepSettings configures how one playlist step advances.
type StepSettings struct {
	// Time advances the step after this long. Ignored when a trigger
	// show is set.
	Time time.Duration

	// TriggerShow names the show in this step whose completion
	// advances the playlist. A trigger show configured with infinite
	// or zero loops is forced to one loop, or it would never complete.
	TriggerShow string

	// Hold keeps this step's device values applied when the playlist
	// moves on, instead of restoring them.
	Hold bool
}

// Playlist sequences groups of shows. Steps are identified by
// ascending step numbers; each step starts one or more shows at the
// playlist's priority and advances either after a fixed time or when
// its trigger show completes. States: idle -> starting -> running ->
// stopping -> idle.
//
// Playlists run on the control-loop goroutine only; cross-thread
// callers go through Controller.Do.
type Playlist struct {
	name string
	c    *Controller
	log  Logger

	stepNums []int                 // ascending, de-duplicated
	entries  map[int][]PlaylistEntry
	settings map[int]StepSettings

	priority    int
	repeat      bool
	repeatCount int

	currentStepPosition int
	currentRepeatLoop   int

	running  bool
	starting bool
	stopping bool

	// instances started for each step position, for stop bookkeeping.
	stepInstances map[int][]*Instance

	pendingAdvance Handle
	hasPending     bool
}

// NewPlaylist creates an empty playlist attached to a controller.
func NewPlaylist(name string, c *Controller, log Logger) *Playlist {
	if log == nil {
		log = noopLogger{}
	}
	return &Playlist{
		name:          name,
		c:             c,
		log:           log,
		entries:       make(map[int][]PlaylistEntry),
		settings:      make(map[int]StepSettings),
		stepInstances: make(map[int][]*Instance),
	}
}

// Name returns the playlist's name.
func (p *Playlist) Name() string { return p.name }

// Running reports whether the playlist is active.
func (p *Playlist) Running() bool { return p.running }

// CurrentStep returns the step number at the current position, or 0
// when the playlist is empty.
func (p *Playlist) CurrentStep() int {
	if len(p.stepNums) == 0 {
		return 0
	}
	return p.stepNums[p.currentStepPosition%len(p.stepNums)]
}

// AddShow adds a show to a step. Steps play in ascending step-number
// order regardless of insertion order.
func (p *Playlist) AddShow(stepNum int, entry PlaylistEntry) {
	if _, known := p.entries[stepNum]; !known {
		p.stepNums = append(p.stepNums, stepNum)
		sort.Ints(p.stepNums)
	}
	p.entries[stepNum] = append(p.entries[stepNum], entry)
}

// StepSettings configures a step's advance behavior.
func (p *Playlist) StepSettings(stepNum int, s StepSettings) {
	if _, known := p.entries[stepNum]; !known {
		p.stepNums = append(p.stepNums, stepNum)
		sort.Ints(p.stepNums)
	}
	p.settings[stepNum] = s
}

// Start begins playback from the first step.
//
// Parameters:
//   - priority: Arbitration priority for every show the playlist starts
//   - repeat: Whether the sequence wraps around at the end
//   - repeatCount: With repeat, the total number of passes (0 = infinite)
//   - reset: If already running, stop and restart from the top;
//     without reset a running playlist is left alone
func (p *Playlist) Start(priority int, repeat bool, repeatCount int, reset bool) {
	if len(p.stepNums) == 0 {
		p.log.Warn("starting empty playlist", "playlist", p.name)
		return
	}
	if p.running {
		if !reset {
			return
		}
		p.Stop(true, false)
	}

	p.priority = priority
	p.repeat = repeat
	p.repeatCount = repeatCount
	p.currentStepPosition = 0
	p.currentRepeatLoop = 0
	p.running = true
	p.starting = true
	p.stopping = false

	p.log.Info("playlist started", "playlist", p.name, "priority", priority)
	p.advance()
}

// Stop halts the playlist and the shows of its active step.
//
// Parameters:
//   - reset: Rewind position and repeat counters to the beginning
//   - hold: Leave the active step's device values applied
func (p *Playlist) Stop(reset, hold bool) {
	if !p.running {
		return
	}
	p.running = false
	p.stopping = false

	// currentStepPosition already points at the NEXT step; the active
	// shows belong to the position before it.
	active := p.previousPosition()
	p.stopStepShows(active, hold)

	if p.hasPending {
		p.c.sched.Cancel(p.pendingAdvance)
		p.hasPending = false
	}

	if reset {
		p.currentStepPosition = 0
		p.currentRepeatLoop = 0
	}
	p.log.Info("playlist stopped", "playlist", p.name)
}

// advance stops the previous step's shows and starts the current
// step's, then moves the position forward. Trigger-show completion
// callbacks and deferred timers both land here.
func (p *Playlist) advance() {
	if !p.running {
		return
	}

	if !p.starting {
		prev := p.previousPosition()
		prevNum := p.stepNums[prev]
		hold := p.settings[prevNum].Hold
		p.stopStepShows(prev, hold)
	}
	p.starting = false

	if p.stopping {
		p.running = false
		p.stopping = false
		p.log.Info("playlist finished", "playlist", p.name)
		return
	}

	pos := p.currentStepPosition
	stepNum := p.stepNums[pos]
	settings := p.settings[stepNum]

	p.startStepShows(pos, stepNum, settings)

	if settings.TriggerShow == "" && settings.Time > 0 {
		p.pendingAdvance = p.c.sched.ScheduleAt(p.c.now.Add(settings.Time), func(now time.Time) {
			p.hasPending = false
			p.advance()
		})
		p.hasPending = true
	}

	p.currentStepPosition++
	if p.currentStepPosition >= len(p.stepNums) {
		p.currentStepPosition = 0
		p.applyRepeatPolicy()
	}
}

// startStepShows plays every entry of a step at the playlist priority.
func (p *Playlist) startStepShows(pos, stepNum int, settings StepSettings) {
	var started []*Instance
	for _, entry := range p.entries[stepNum] {
		loops := entry.Loops
		if entry.Repeat {
			loops = -1
		}

		opts := PlayOptions{
			Priority: p.priority,
			Speed:    entry.Speed,
			Loops:    loops,
			Blend:    entry.Blend,
			Key:      p.name,
		}

		if entry.Show.Name() == settings.TriggerShow {
			// An infinitely looping trigger show would never complete
			// and the playlist could never advance.
			if opts.Loops < 0 {
				p.log.Warn("trigger show cannot loop forever, forcing a single pass",
					"playlist", p.name, "show", entry.Show.Name())
				opts.Loops = 0
			}
			opts.Callback = p.advance
		}

		in, err := p.c.PlayShow(entry.Show, opts)
		if err != nil {
			p.log.Error("playlist show failed to start",
				"playlist", p.name, "show", entry.Show.Name(), "error", err.Error())
			continue
		}
		started = append(started, in)
	}
	p.stepInstances[pos] = started
	p.log.Debug("playlist step started",
		"playlist", p.name, "step", stepNum, "shows", len(started))
}

// stopStepShows stops the instances started for a step position,
// skipping ones that already stopped on their own.
func (p *Playlist) stopStepShows(pos int, hold bool) {
	for _, in := range p.stepInstances[pos] {
		if in.Stopped() {
			continue
		}
		in.hold = hold
		in.stop("playlist_advance")
	}
	delete(p.stepInstances, pos)
}

// applyRepeatPolicy runs at wraparound: infinite repeat continues,
// counted repeat decrements, and no-repeat marks the playlist stopping
// so the next advance tears it down.
func (p *Playlist) applyRepeatPolicy() {
	if !p.repeat {
		p.stopping = true
		return
	}
	if p.repeatCount > 0 {
		p.currentRepeatLoop++
		if p.currentRepeatLoop >= p.repeatCount {
			p.stopping = true
		}
	}
}

// previousPosition returns the position before the current one,
// wrapping at the start.
func (p *Playlist) previousPosition() int {
	n := len(p.stepNums)
	return ((p.currentStepPosition-1)%n + n) % n
}
