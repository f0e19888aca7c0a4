package show

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tiltlogic/tiltlogic-core/internal/device"
)

// PlayContext identifies the playback driving an Apply call. Players
// stamp it onto every request they enqueue so the controller can
// arbitrate and restore by instance.
type PlayContext struct {
	InstanceID int64
	Key        string
	Priority   int
	Speed      float64
	Blend      bool
}

// DevicePlayer validates one section of a show step at compile time
// and translates it into queued update requests at play time. One
// player is registered per section name ("lights", "leds", "events",
// ...) at startup.
type DevicePlayer interface {
	// ValidateConfig checks a raw section payload and returns the
	// normalized form stored in the compiled step. The returned value
	// must remain a plain map/slice/scalar tree so token substitution
	// can walk it.
	ValidateConfig(showName string, step int, raw any) (any, error)

	// Apply enqueues update requests for a validated payload.
	Apply(q Enqueuer, ctx PlayContext, payload any)
}

// Enqueuer is the controller-side sink players write into. Requests
// land in per-class queues and are arbitrated once per tick; players
// never touch outputs directly.
type Enqueuer interface {
	EnqueueDevice(class device.Class, name, value string, fadeMS int, ctx PlayContext)
	EnqueueEvent(name string, args map[string]any, ctx PlayContext)
	EnqueueTrigger(name string, args map[string]any, ctx PlayContext)
}

// NewPlayers builds the standard player set for a machine: one device
// player per output class plus the events and triggers players.
func NewPlayers(registry *device.Registry, log Logger) map[string]DevicePlayer {
	if log == nil {
		log = noopLogger{}
	}
	return map[string]DevicePlayer{
		"lights":   &devicePlayer{section: "lights", class: device.ClassLight, registry: registry, log: log},
		"leds":     &devicePlayer{section: "leds", class: device.ClassLED, registry: registry, log: log},
		"coils":    &devicePlayer{section: "coils", class: device.ClassCoil, registry: registry, log: log},
		"gi":       &devicePlayer{section: "gi", class: device.ClassGI, registry: registry, log: log},
		"flashers": &devicePlayer{section: "flashers", class: device.ClassFlasher, registry: registry, log: log},
		"events":   &eventPlayer{log: log},
		"triggers": &triggerPlayer{log: log},
	}
}

// ─────────────────────────────────────────────
// Device players
// ─────────────────────────────────────────────

// devicePlayer handles one physical output class. Payloads map a
// device name (or "(token)", or "tag|name") to a value, optionally
// carrying a fade as a "-f<ms>" suffix: "ff0000-f500".
type devicePlayer struct {
	section  string
	class    device.Class
	registry *device.Registry
	log      Logger
}

func (p *devicePlayer) ValidateConfig(showName string, step int, raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &ValidationError{
			Show: showName, Step: step, Key: p.section,
			Reason: fmt.Sprintf("section must be a mapping of device to value, got %T", raw),
		}
	}

	for name, v := range m {
		switch v.(type) {
		case string, int, float64, bool:
		default:
			return nil, &ValidationError{
				Show: showName, Step: step, Key: p.section,
				Reason: fmt.Sprintf("value for %q must be a scalar, got %T", name, v),
			}
		}

		// Tokens resolve at play time and tags expand at apply time;
		// only literal names can be checked now.
		if _, isToken := tokenName(name); isToken || strings.HasPrefix(name, "tag|") {
			continue
		}
		if !p.registry.Exists(p.class, name) {
			return nil, &ValidationError{
				Show: showName, Step: step, Key: name,
				Reason: fmt.Sprintf("unknown %s device", p.class),
				Hint:   didYouMean(name, p.registry.Names(p.class)),
			}
		}
	}

	return m, nil
}

func (p *devicePlayer) Apply(q Enqueuer, ctx PlayContext, payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}

	keys := make([]string, 0, len(m))
	for name := range m {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	for _, name := range keys {
		value, fadeMS := splitFade(valueString(m[name]))
		if ctx.Speed > 0 && ctx.Speed != 1 {
			fadeMS = int(float64(fadeMS) / ctx.Speed)
		}

		switch {
		case strings.HasPrefix(name, "tag|"):
			tag := strings.TrimPrefix(name, "tag|")
			for _, devName := range p.registry.NamesTagged(p.class, tag) {
				q.EnqueueDevice(p.class, devName, value, fadeMS, ctx)
			}
		default:
			if _, isToken := tokenName(name); isToken {
				// An unresolved token means the play call did not supply
				// it; the entry is inert rather than an error.
				p.log.Warn("unresolved token in step, skipping",
					"section", p.section, "key", name, "instance", ctx.InstanceID)
				continue
			}
			if !p.registry.Exists(p.class, name) {
				p.log.Warn("unknown device after token substitution, skipping",
					"class", string(p.class), "device", name, "instance", ctx.InstanceID)
				continue
			}
			q.EnqueueDevice(p.class, name, value, fadeMS, ctx)
		}
	}
}

// splitFade separates a trailing "-f<ms>" fade suffix from a value.
func splitFade(v string) (value string, fadeMS int) {
	i := strings.LastIndex(v, "-f")
	if i < 0 {
		return v, 0
	}
	ms, err := strconv.Atoi(v[i+2:])
	if err != nil || ms < 0 {
		return v, 0
	}
	return v[:i], ms
}

// ─────────────────────────────────────────────
// Events player
// ─────────────────────────────────────────────

// eventPlayer posts machine events. Payload forms: a single event
// name, a list of names, or a mapping of name to argument map.
type eventPlayer struct {
	log Logger
}

func (p *eventPlayer) ValidateConfig(showName string, step int, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		for _, e := range v {
			if _, ok := e.(string); !ok {
				return nil, &ValidationError{
					Show: showName, Step: step, Key: "events",
					Reason: fmt.Sprintf("event list entries must be strings, got %T", e),
				}
			}
		}
		return v, nil
	case map[string]any:
		for name, args := range v {
			if args == nil {
				continue
			}
			if _, ok := args.(map[string]any); !ok {
				return nil, &ValidationError{
					Show: showName, Step: step, Key: name,
					Reason: fmt.Sprintf("event arguments must be a mapping, got %T", args),
				}
			}
		}
		return v, nil
	default:
		return nil, &ValidationError{
			Show: showName, Step: step, Key: "events",
			Reason: fmt.Sprintf("events must be a name, list, or mapping, got %T", raw),
		}
	}
}

func (p *eventPlayer) Apply(q Enqueuer, ctx PlayContext, payload any) {
	forEachNamed(payload, func(name string, args map[string]any) {
		q.EnqueueEvent(name, args, ctx)
	})
}

// ─────────────────────────────────────────────
// Triggers player
// ─────────────────────────────────────────────

// triggerPlayer sends named triggers to the remote media controller.
// Same payload forms as the events player.
type triggerPlayer struct {
	log Logger
}

func (p *triggerPlayer) ValidateConfig(showName string, step int, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		for _, e := range v {
			if _, ok := e.(string); !ok {
				return nil, &ValidationError{
					Show: showName, Step: step, Key: "triggers",
					Reason: fmt.Sprintf("trigger list entries must be strings, got %T", e),
				}
			}
		}
		return v, nil
	case map[string]any:
		for name, args := range v {
			if args == nil {
				continue
			}
			if _, ok := args.(map[string]any); !ok {
				return nil, &ValidationError{
					Show: showName, Step: step, Key: name,
					Reason: fmt.Sprintf("trigger arguments must be a mapping, got %T", args),
				}
			}
		}
		return v, nil
	default:
		return nil, &ValidationError{
			Show: showName, Step: step, Key: "triggers",
			Reason: fmt.Sprintf("triggers must be a name, list, or mapping, got %T", raw),
		}
	}
}

func (p *triggerPlayer) Apply(q Enqueuer, ctx PlayContext, payload any) {
	forEachNamed(payload, func(name string, args map[string]any) {
		q.EnqueueTrigger(name, args, ctx)
	})
}

// forEachNamed iterates a name / list / mapping payload in
// deterministic order.
func forEachNamed(payload any, fn func(name string, args map[string]any)) {
	switch v := payload.(type) {
	case string:
		fn(v, nil)
	case []any:
		for _, e := range v {
			if name, ok := e.(string); ok {
				fn(name, nil)
			}
		}
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			args, _ := v[name].(map[string]any)
			fn(name, args)
		}
	}
}
