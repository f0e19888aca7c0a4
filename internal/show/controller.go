package show

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tiltlogic/tiltlogic-core/internal/device"
)

// applyOrder is the fixed order queues are applied in each tick.
var applyOrder = []string{"lights", "leds", "coils", "events", "gi", "flashers", "triggers"}

// sectionClass maps device-backed queue names to their device class.
var sectionClass = map[string]device.Class{
	"lights":   device.ClassLight,
	"leds":     device.ClassLED,
	"coils":    device.ClassCoil,
	"gi":       device.ClassGI,
	"flashers": device.ClassFlasher,
}

// classSection is the inverse of sectionClass.
var classSection = map[device.Class]string{
	device.ClassLight:   "lights",
	device.ClassLED:     "leds",
	device.ClassCoil:    "coils",
	device.ClassGI:      "gi",
	device.ClassFlasher: "flashers",
}

// Output applies arbitrated device values to hardware (or, in
// production, publishes them to the hardware bridge).
type Output interface {
	Set(class device.Class, name, value string, fadeMS int)
}

// EventSink receives machine events and remote triggers posted by
// shows. Backed by MQTT in production and by fakes in tests.
type EventSink interface {
	Event(name string, args map[string]any)
	Trigger(name string, args map[string]any)
}

// ExecutionRecorder persists the show execution audit trail.
type ExecutionRecorder interface {
	RecordStart(e ExecutionStart) (id string, err error)
	RecordStop(id string, stoppedAt time.Time, loopsPlayed int, reason string) error
}

// ExecutionStart describes a playback beginning, for the audit log.
type ExecutionStart struct {
	ShowName  string
	Key       string
	Priority  int
	Speed     float64
	Loops     int
	StartedAt time.Time
}

// Metrics receives playback counters. Backed by Prometheus in the API
// layer; all methods must be cheap.
type Metrics interface {
	ShowPlayed()
	ShowStopped()
	UpdatesApplied(n int)
	UpdatesDropped(n int)
	ActiveInstances(n int)
}

// TickStats summarizes one controller tick for telemetry.
type TickStats struct {
	At        time.Time
	Instances int
	Applied   int
	Dropped   int
}

// TickRecorder receives per-tick telemetry points.
type TickRecorder interface {
	RecordTick(stats TickStats)
}

type noopOutput struct{}

func (noopOutput) Set(class device.Class, name, value string, fadeMS int) {}

type noopEvents struct{}

func (noopEvents) Event(name string, args map[string]any)   {}
func (noopEvents) Trigger(name string, args map[string]any) {}

// updateRequest is one pending device write for the current tick.
type updateRequest struct {
	class      device.Class
	name       string
	value      string
	fadeMS     int
	priority   int
	blend      bool
	instanceID int64
}

type namedRequest struct {
	name       string
	args       map[string]any
	priority   int
	instanceID int64
}

type deviceKey struct {
	class device.Class
	name  string
}

// appliedState is the ownership cache entry for one device: the last
// value actually written and who wrote it.
type appliedState struct {
	value      string
	fadeMS     int
	priority   int
	instanceID int64
}

// heldValue is one instance's standing claim on a device. Claims are
// recorded even when the write loses arbitration, so a losing instance
// gets its value back if the winner stops first.
type heldValue struct {
	value      string
	fadeMS     int
	priority   int
	blend      bool
	instanceID int64
}

// ControllerOptions configures a Controller. Registry is required;
// everything else has a working default (noop sinks, standard players).
type ControllerOptions struct {
	Logger        Logger
	Registry      *device.Registry
	Players       map[string]DevicePlayer
	Output        Output
	Events        EventSink
	Recorder      ExecutionRecorder
	Metrics       Metrics
	Telemetry     TickRecorder
	DefaultSyncMS int
}

// Controller owns every running instance and arbitrates their device
// writes once per tick. It is the single writer for all playback
// state: instances, queues, the ownership cache, playlists, and
// external shows all mutate on the control-loop goroutine only. Do and
// the external-show command queue are the sole cross-thread entries.
type Controller struct {
	log       Logger
	registry  *device.Registry
	players   map[string]DevicePlayer
	output    Output
	events    EventSink
	recorder  ExecutionRecorder
	metrics   Metrics
	telemetry TickRecorder

	sched *Scheduler
	now   time.Time

	defaultSyncMS int

	nextID    int64
	instances map[int64]*Instance

	deviceQueues map[string][]updateRequest
	eventQueue   []namedRequest
	triggerQueue []namedRequest

	ownership map[deviceKey]appliedState
	holders   map[deviceKey]map[int64]heldValue

	external map[string]*ExternalShow

	cmdMu    sync.Mutex
	commands []func()

	extMu       sync.Mutex
	extCommands []externalCommand

	applied int
	dropped int
}

// NewController creates a controller ready to tick.
func NewController(opts ControllerOptions) *Controller {
	log := opts.Logger
	if log == nil {
		log = noopLogger{}
	}
	players := opts.Players
	if players == nil {
		players = NewPlayers(opts.Registry, log)
	}
	output := opts.Output
	if output == nil {
		output = noopOutput{}
	}
	events := opts.Events
	if events == nil {
		events = noopEvents{}
	}

	c := &Controller{
		log:           log,
		registry:      opts.Registry,
		players:       players,
		output:        output,
		events:        events,
		recorder:      opts.Recorder,
		metrics:       opts.Metrics,
		telemetry:     opts.Telemetry,
		sched:         NewScheduler(),
		defaultSyncMS: opts.DefaultSyncMS,
		nextID:        1,
		instances:     make(map[int64]*Instance),
		deviceQueues:  make(map[string][]updateRequest),
		ownership:     make(map[deviceKey]appliedState),
		holders:       make(map[deviceKey]map[int64]heldValue),
		external:      make(map[string]*ExternalShow),
	}
	return c
}

// Do queues fn to run on the control-loop goroutine at the start of
// the next tick. It is the only safe way to drive the controller from
// another goroutine (HTTP handlers, MQTT callbacks).
func (c *Controller) Do(fn func()) {
	c.cmdMu.Lock()
	c.commands = append(c.commands, fn)
	c.cmdMu.Unlock()
}

// Tick runs one control-loop frame at the given time: drain queued
// commands, drain external show commands, fire due scheduler entries
// (which enqueue device updates), then apply and clear the queues.
func (c *Controller) Tick(now time.Time) {
	c.now = now

	c.drainCommands()
	c.drainExternal()
	c.sched.RunDue(now)
	c.applyQueues()

	if c.metrics != nil {
		c.metrics.ActiveInstances(len(c.instances))
	}
	if c.telemetry != nil {
		c.telemetry.RecordTick(TickStats{
			At:        now,
			Instances: len(c.instances),
			Applied:   c.applied,
			Dropped:   c.dropped,
		})
	}
	c.applied = 0
	c.dropped = 0
}

// Run drives the control loop at the given frame interval until the
// context is cancelled.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.log.Info("control loop started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			c.log.Info("control loop stopped")
			return
		case t := <-ticker.C:
			c.Tick(t)
		}
	}
}

func (c *Controller) drainCommands() {
	c.cmdMu.Lock()
	cmds := c.commands
	c.commands = nil
	c.cmdMu.Unlock()

	for _, fn := range cmds {
		fn()
	}
}

// ─────────────────────────────────────────────
// Playback operations (control-loop goroutine only)
// ─────────────────────────────────────────────

// PlayShow starts a new instance of a show. Must run on the
// control-loop goroutine; cross-thread callers wrap it in Do.
//
// Returns:
//   - *Instance: The running instance
//   - error: *TokenMismatchError or *InvalidStepError on bad options
func (c *Controller) PlayShow(s *Show, opts PlayOptions) (*Instance, error) {
	if opts.Speed == 0 {
		opts.Speed = 1
	}

	steps := s.Steps()
	if err := substituteTokens(s.Name(), steps, s.tokens, opts.Tokens); err != nil {
		return nil, err
	}

	startIndex := 0
	total := len(steps)
	switch {
	case opts.StartStep > 0:
		if opts.StartStep > total {
			return nil, &InvalidStepError{Show: s.Name(), Step: opts.StartStep}
		}
		startIndex = opts.StartStep - 1
	case opts.StartStep < 0:
		startIndex = total + opts.StartStep
		if startIndex < 0 {
			return nil, &InvalidStepError{Show: s.Name(), Step: opts.StartStep}
		}
	case opts.Resume:
		startIndex = s.lastStepIndex % total
	}

	id := c.nextID
	c.nextID++

	in := &Instance{
		c:             c,
		id:            id,
		show:          s,
		key:           opts.Key,
		steps:         steps,
		nextStepIndex: startIndex,
		priority:      opts.Priority,
		speed:         opts.Speed,
		loops:         opts.Loops,
		manualAdvance: opts.ManualAdvance,
		blend:         opts.Blend,
		hold:          opts.Hold,
		tokens:        opts.Tokens,
		callback:      opts.Callback,
	}

	c.instances[id] = in
	s.registerInstance(id)

	if c.recorder != nil {
		execID, err := c.recorder.RecordStart(ExecutionStart{
			ShowName:  s.Name(),
			Key:       opts.Key,
			Priority:  opts.Priority,
			Speed:     opts.Speed,
			Loops:     opts.Loops,
			StartedAt: c.now,
		})
		if err != nil {
			c.log.Warn("recording show start failed", "show", s.Name(), "error", err.Error())
		} else {
			in.executionID = execID
		}
	}
	if c.metrics != nil {
		c.metrics.ShowPlayed()
	}
	c.events.Event("show_played", map[string]any{
		"show": s.Name(), "key": opts.Key, "priority": opts.Priority,
	})
	c.log.Debug("show playing",
		"show", s.Name(), "instance", id, "priority", opts.Priority, "loops", opts.Loops)

	syncMS := opts.SyncMS
	if syncMS == 0 {
		syncMS = c.defaultSyncMS
	}
	if syncMS > 0 {
		in.nextStepTime = nextSyncPoint(c.now, syncMS)
		in.pending = c.sched.ScheduleAt(in.nextStepTime, in.runNextStep)
		in.hasPending = true
	} else {
		in.nextStepTime = c.now
		in.runNextStep(c.now)
	}

	return in, nil
}

// StopShow stops an instance. Idempotent: stopping a stopped instance
// is a no-op.
func (c *Controller) StopShow(in *Instance) {
	if in == nil {
		return
	}
	in.stop("stopped")
}

// StopShowsByKey stops every running instance that was played with the
// given key. Returns how many were stopped.
func (c *Controller) StopShowsByKey(key string) int {
	var matched []*Instance
	for _, in := range c.instances {
		if in.key == key {
			matched = append(matched, in)
		}
	}
	for _, in := range matched {
		in.stop("stopped")
	}
	return len(matched)
}

// StopShowsByName stops every running instance of the named show.
func (c *Controller) StopShowsByName(name string) int {
	var matched []*Instance
	for _, in := range c.instances {
		if in.show.Name() == name {
			matched = append(matched, in)
		}
	}
	for _, in := range matched {
		in.stop("stopped")
	}
	return len(matched)
}

// Pause suspends an instance's playback without losing its position.
func (c *Controller) Pause(in *Instance) { in.pause() }

// Resume continues a paused instance.
func (c *Controller) Resume(in *Instance) { in.resume() }

// Advance moves an instance forward: showStep jumps to an explicit
// 1-based step, otherwise steps are skipped relative to the current
// position.
func (c *Controller) Advance(in *Instance, steps, showStep int) error {
	return in.advance(steps, showStep)
}

// StepBack moves an instance n steps backwards, wrapping at the start.
func (c *Controller) StepBack(in *Instance, n int) error {
	return in.stepBack(n)
}

// Instance looks up a running instance by id.
func (c *Controller) Instance(id int64) (*Instance, bool) {
	in, ok := c.instances[id]
	return in, ok
}

// RunningCount returns the number of running instances.
func (c *Controller) RunningCount() int { return len(c.instances) }

// Instances returns all running instances ordered by id. Valid on the
// control-loop goroutine only.
func (c *Controller) Instances() []*Instance {
	out := make([]*Instance, 0, len(c.instances))
	for _, in := range c.instances {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Now returns the current tick time. Valid on the control-loop
// goroutine only.
func (c *Controller) Now() time.Time { return c.now }

// instanceLooped emits the loop lifecycle event.
func (c *Controller) instanceLooped(in *Instance) {
	c.events.Event("show_looped", map[string]any{
		"show": in.show.Name(), "key": in.key, "loops_played": in.loopsPlayed,
	})
}

// finishInstance removes a stopping instance from the table, restores
// the devices it held, and emits the stop lifecycle event. Called
// exactly once per instance, from Instance.stop.
func (c *Controller) finishInstance(in *Instance, reason string) {
	delete(c.instances, in.id)

	if !in.hold {
		c.restoreLowerDevices(in.id)
	} else {
		c.releaseClaims(in.id)
	}

	if c.recorder != nil && in.executionID != "" {
		if err := c.recorder.RecordStop(in.executionID, c.now, in.loopsPlayed, reason); err != nil {
			c.log.Warn("recording show stop failed", "show", in.show.Name(), "error", err.Error())
		}
	}
	if c.metrics != nil {
		c.metrics.ShowStopped()
	}
	c.events.Event("show_stopped", map[string]any{
		"show": in.show.Name(), "key": in.key, "reason": reason,
	})
	c.log.Debug("show stopped",
		"show", in.show.Name(), "instance", in.id, "reason", reason)
}

// ─────────────────────────────────────────────
// Enqueue / arbitration
// ─────────────────────────────────────────────

// EnqueueDevice adds a pending device write for this tick and records
// the writer's standing claim on the device. Collapse keeps at most
// one pending request per device: a pending request at the same or
// lower priority is superseded, and the new request is itself dropped
// when a higher-priority one is already pending. On equal priority the
// later request wins.
//
// A blending writer's off value is not a command: it releases the
// writer's claim instead of recording one, so the next-highest holder
// shows through when the request applies.
func (c *Controller) EnqueueDevice(class device.Class, name, value string, fadeMS int, ctx PlayContext) {
	section, ok := classSection[class]
	if !ok {
		return
	}

	key := deviceKey{class: class, name: name}
	if ctx.Blend && blendableClass(class) && value == device.IdleValue(class) {
		if claims, ok := c.holders[key]; ok {
			delete(claims, ctx.InstanceID)
			if len(claims) == 0 {
				delete(c.holders, key)
			}
		}
	} else {
		// Claims are recorded even for requests that will lose
		// arbitration, so a losing writer gets its value back if the
		// winner stops first.
		claims, ok := c.holders[key]
		if !ok {
			claims = make(map[int64]heldValue)
			c.holders[key] = claims
		}
		claims[ctx.InstanceID] = heldValue{
			value:      value,
			fadeMS:     fadeMS,
			priority:   ctx.Priority,
			blend:      ctx.Blend,
			instanceID: ctx.InstanceID,
		}
	}

	// Collapse guarantees at most one pending request per device, so a
	// single scan finds any competitor.
	q := c.deviceQueues[section]
	for i, req := range q {
		if req.class != class || req.name != name {
			continue
		}
		if req.priority > ctx.Priority {
			// A higher-priority request is already pending; the new one
			// is superseded before it ever queues.
			c.dropped++
			return
		}
		q = append(q[:i], q[i+1:]...)
		break
	}
	c.deviceQueues[section] = append(q, updateRequest{
		class:      class,
		name:       name,
		value:      value,
		fadeMS:     fadeMS,
		priority:   ctx.Priority,
		blend:      ctx.Blend,
		instanceID: ctx.InstanceID,
	})
}

// EnqueueEvent adds a pending machine event for this tick.
func (c *Controller) EnqueueEvent(name string, args map[string]any, ctx PlayContext) {
	c.eventQueue = append(c.eventQueue, namedRequest{
		name: name, args: args, priority: ctx.Priority, instanceID: ctx.InstanceID,
	})
}

// EnqueueTrigger adds a pending remote trigger for this tick.
func (c *Controller) EnqueueTrigger(name string, args map[string]any, ctx PlayContext) {
	c.triggerQueue = append(c.triggerQueue, namedRequest{
		name: name, args: args, priority: ctx.Priority, instanceID: ctx.InstanceID,
	})
}

// applyQueues applies all pending requests in the fixed class order
// and clears the queues. Every device request records a standing claim
// for its instance; the write itself is gated against the ownership
// cache, and a request that lost to a higher-priority owner is dropped
// silently. That drop is steady-state arbitration, not an error.
func (c *Controller) applyQueues() {
	for _, section := range applyOrder {
		switch section {
		case "events":
			for _, req := range c.eventQueue {
				c.events.Event(req.name, req.args)
			}
			c.eventQueue = nil
		case "triggers":
			for _, req := range c.triggerQueue {
				c.events.Trigger(req.name, req.args)
			}
			c.triggerQueue = nil
		default:
			for _, req := range c.deviceQueues[section] {
				c.applyDevice(req)
			}
			c.deviceQueues[section] = nil
		}
	}

	if c.metrics != nil {
		if c.applied > 0 {
			c.metrics.UpdatesApplied(c.applied)
		}
		if c.dropped > 0 {
			c.metrics.UpdatesDropped(c.dropped)
		}
	}
}

func (c *Controller) applyDevice(req updateRequest) {
	key := deviceKey{class: req.class, name: req.name}

	if cur, owned := c.ownership[key]; owned && cur.priority > req.priority && cur.instanceID != req.instanceID {
		c.dropped++
		return
	}

	value, priority, instanceID := req.value, req.priority, req.instanceID
	if req.blend && blendableClass(req.class) && req.value == device.IdleValue(req.class) {
		// The writer's claim was released at enqueue; the device shows
		// the best remaining holder, or goes idle uncommanded.
		best, ok := bestClaim(c.holders[key])
		if !ok {
			c.output.Set(req.class, req.name, req.value, req.fadeMS)
			delete(c.ownership, key)
			c.applied++
			return
		}
		value, priority, instanceID = best.value, best.priority, best.instanceID
	}

	c.output.Set(req.class, req.name, value, req.fadeMS)
	c.ownership[key] = appliedState{
		value:      value,
		fadeMS:     req.fadeMS,
		priority:   priority,
		instanceID: instanceID,
	}
	c.applied++
}

// blendableClass reports whether a class supports blend fall-through.
// Fire-flag classes never blend: a pulse either fires or it does not.
func blendableClass(class device.Class) bool {
	switch class {
	case device.ClassLED, device.ClassLight, device.ClassGI:
		return true
	}
	return false
}

// ─────────────────────────────────────────────
// Ownership restore
// ─────────────────────────────────────────────

// restoreLowerDevices releases every device the instance held. Devices
// the instance currently owns are restored to the highest remaining
// claim, or to the class idle value when none remains. Cost is
// proportional to the devices the instance touched.
func (c *Controller) restoreLowerDevices(id int64) {
	for key, claims := range c.holders {
		if _, held := claims[id]; !held {
			continue
		}
		delete(claims, id)

		cur, owned := c.ownership[key]
		if !owned || cur.instanceID != id {
			// A higher-priority writer owns the device; nothing to do.
			if len(claims) == 0 {
				delete(c.holders, key)
			}
			continue
		}

		if best, ok := bestClaim(claims); ok {
			c.output.Set(key.class, key.name, best.value, 0)
			c.ownership[key] = appliedState{
				value:      best.value,
				priority:   best.priority,
				instanceID: best.instanceID,
			}
		} else {
			c.output.Set(key.class, key.name, device.IdleValue(key.class), 0)
			delete(c.ownership, key)
			delete(c.holders, key)
		}
	}
}

// releaseClaims drops an instance's claims without touching device
// values (hold semantics).
func (c *Controller) releaseClaims(id int64) {
	for key, claims := range c.holders {
		if _, held := claims[id]; !held {
			continue
		}
		delete(claims, id)
		if len(claims) == 0 {
			delete(c.holders, key)
		}
	}
}

// bestClaim picks the claim with the highest priority; ties go to the
// most recently created instance.
func bestClaim(claims map[int64]heldValue) (heldValue, bool) {
	var best heldValue
	found := false
	for _, h := range claims {
		if !found || h.priority > best.priority ||
			(h.priority == best.priority && h.instanceID > best.instanceID) {
			best = h
			found = true
		}
	}
	return best, found
}

// nextSyncPoint returns the first time at or after now that falls on a
// multiple of syncMS milliseconds, phase-locking independently started
// instances.
func nextSyncPoint(now time.Time, syncMS int) time.Time {
	cycle := time.Duration(syncMS) * time.Millisecond
	rem := time.Duration(now.UnixNano()) % cycle
	if rem == 0 {
		return now
	}
	return now.Add(cycle - rem)
}
