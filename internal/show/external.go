package show

import (
	"github.com/tiltlogic/tiltlogic-core/internal/device"
)

// frameChunkWidth is the fixed width, in characters, of one device's
// value within an encoded frame string.
var frameChunkWidth = map[device.Class]int{
	device.ClassLED:     6, // RRGGBB hex
	device.ClassLight:   2, // brightness hex
	device.ClassGI:      2, // brightness hex
	device.ClassFlasher: 1, // fire flag
	device.ClassCoil:    1, // fire flag
}

// ExternalShow is output state driven by remotely streamed frames
// (from the media controller) rather than a compiled timeline. Frames
// route through the controller's queues at the proxy's priority, so
// external and local shows arbitrate identically.
type ExternalShow struct {
	name     string
	id       int64
	priority int
	blend    bool

	// devices are the resolved per-class device name lists, in the
	// order the remote side encodes them.
	devices map[device.Class][]string
}

// Name returns the external show's name.
func (es *ExternalShow) Name() string { return es.name }

// Priority returns the proxy's arbitration priority.
func (es *ExternalShow) Priority() int { return es.priority }

type externalCommandKind int

const (
	externalStart externalCommandKind = iota
	externalStop
	externalFrame
)

// externalCommand is one queued start/stop/frame command. The queue is
// fed by the transport goroutine and drained once per tick on the
// control loop; it is the only cross-thread boundary in the playback
// subsystem.
type externalCommand struct {
	kind     externalCommandKind
	name     string
	priority int
	blend    bool
	devices  map[device.Class][]string
	frames   map[device.Class]string
	events   []string
}

// ExternalStart queues creation of an external show. Safe to call from
// any goroutine. An existing show with the same name is stopped first.
func (c *Controller) ExternalStart(name string, priority int, blend bool, devices map[device.Class][]string) {
	c.extMu.Lock()
	c.extCommands = append(c.extCommands, externalCommand{
		kind: externalStart, name: name, priority: priority, blend: blend, devices: devices,
	})
	c.extMu.Unlock()
}

// ExternalStop queues teardown of an external show. Safe to call from
// any goroutine. Touched devices restore per the normal ownership
// rules.
func (c *Controller) ExternalStop(name string) {
	c.extMu.Lock()
	c.extCommands = append(c.extCommands, externalCommand{kind: externalStop, name: name})
	c.extMu.Unlock()
}

// ExternalFrame queues one frame of encoded per-class device data plus
// optional events. Safe to call from any goroutine.
func (c *Controller) ExternalFrame(name string, frames map[device.Class]string, events []string) {
	c.extMu.Lock()
	c.extCommands = append(c.extCommands, externalCommand{
		kind: externalFrame, name: name, frames: frames, events: events,
	})
	c.extMu.Unlock()
}

// ExternalShowCount returns the number of active external shows.
func (c *Controller) ExternalShowCount() int { return len(c.external) }

// drainExternal applies all queued external-show commands in arrival
// order on the control-loop goroutine.
func (c *Controller) drainExternal() {
	c.extMu.Lock()
	cmds := c.extCommands
	c.extCommands = nil
	c.extMu.Unlock()

	for _, cmd := range cmds {
		switch cmd.kind {
		case externalStart:
			c.startExternal(cmd)
		case externalStop:
			c.stopExternal(cmd.name)
		case externalFrame:
			c.applyExternalFrame(cmd)
		}
	}
}

func (c *Controller) startExternal(cmd externalCommand) {
	if _, exists := c.external[cmd.name]; exists {
		c.stopExternal(cmd.name)
	}

	// Device names resolve once at start. An unknown name keeps its
	// slot as an empty placeholder: the remote side encodes frames
	// against the list it sent, so dropping an entry would shift every
	// chunk after it. The placeholder's chunk is skipped at decode.
	resolved := make(map[device.Class][]string, len(cmd.devices))
	for class, names := range cmd.devices {
		kept := make([]string, len(names))
		for i, name := range names {
			if !c.registry.Exists(class, name) {
				c.log.Error("external show references unknown device",
					"show", cmd.name, "class", string(class), "device", name)
				continue
			}
			kept[i] = name
		}
		resolved[class] = kept
	}

	es := &ExternalShow{
		name:     cmd.name,
		id:       c.nextID,
		priority: cmd.priority,
		blend:    cmd.blend,
		devices:  resolved,
	}
	c.nextID++
	c.external[cmd.name] = es
	c.log.Info("external show started", "show", cmd.name, "priority", cmd.priority)
}

func (c *Controller) stopExternal(name string) {
	es, ok := c.external[name]
	if !ok {
		return
	}
	delete(c.external, name)
	c.restoreLowerDevices(es.id)
	c.log.Info("external show stopped", "show", name)
}

// applyExternalFrame decodes one frame into queued device updates. The
// encoded string per class is a concatenation of fixed-width chunks,
// one per resolved device, in resolution order.
func (c *Controller) applyExternalFrame(cmd externalCommand) {
	es, ok := c.external[cmd.name]
	if !ok {
		c.log.Warn("frame for unknown external show", "show", cmd.name)
		return
	}

	ctx := PlayContext{
		InstanceID: es.id,
		Priority:   es.priority,
		Speed:      1,
		Blend:      es.blend,
	}

	for _, class := range device.AllClasses() {
		data, ok := cmd.frames[class]
		if !ok || data == "" {
			continue
		}
		names := es.devices[class]
		width := frameChunkWidth[class]
		if len(data) != width*len(names) {
			c.log.Warn("external frame length mismatch",
				"show", cmd.name, "class", string(class),
				"expected", width*len(names), "got", len(data))
			continue
		}
		for i, name := range names {
			if name == "" {
				// Placeholder for an unresolved device; its chunk is
				// dead space in the frame.
				continue
			}
			chunk := data[i*width : (i+1)*width]
			if (class == device.ClassCoil || class == device.ClassFlasher) && chunk == "0" {
				// Fire flags only enqueue on fire; "0" is no-op, not "off".
				continue
			}
			c.EnqueueDevice(class, name, chunk, 0, ctx)
		}
	}

	for _, name := range cmd.events {
		c.EnqueueEvent(name, nil, ctx)
	}
}
