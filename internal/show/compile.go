package show

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Compile turns an ordered list of raw step records into a Show.
//
// Each record is a map with an optional "time" (absolute seconds, or
// "+N" relative), an optional "duration" (seconds), and any number of
// named action sections dispatched to the registered players for
// validation.
//
// Duration resolution:
//   - A nonzero absolute time on the first record synthesizes a leading
//     empty step of that duration.
//   - A final record that carries only a "time" key (and is not the
//     first) is a trailing no-op and is dropped.
//   - A record without an explicit duration takes it from the next
//     record's time: "+N" is a relative duration of N; an unprefixed
//     value is absolute and yields N minus the accumulated time so far.
//   - With no next-record time, the duration defaults to one second.
//   - A resolved duration of exactly zero is a validation error; a
//     negative explicit duration marks an open-ended step.
//
// Parameters:
//   - name: Show identifier used in error messages (file or logical name)
//   - raw: Ordered step records as decoded from YAML
//   - players: Registered players keyed by section name
//
// Returns:
//   - *Show: Compiled show with durations resolved and tokens indexed
//   - error: *ValidationError naming the show and offending step/key
func Compile(name string, raw []any, players map[string]DevicePlayer) (*Show, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Show: name, Step: -1, Reason: "show has no steps"}
	}

	records := make([]map[string]any, len(raw))
	for i, r := range raw {
		rec, ok := r.(map[string]any)
		if !ok {
			return nil, &ValidationError{
				Show: name, Step: i,
				Reason: fmt.Sprintf("step record must be a mapping, got %T", r),
			}
		}
		records[i] = rec
	}

	var steps []Step
	var accumulated float64
	open := false

	// A nonzero absolute time on the first record means the show is
	// dark until then: synthesize a leading empty step to cover it.
	if t, ok := records[0]["time"]; ok {
		secs, relative, err := parseTimeValue(t)
		if err != nil {
			return nil, &ValidationError{Show: name, Step: 0, Key: "time", Reason: err.Error()}
		}
		if !relative && secs > 0 {
			steps = append(steps, Step{
				Duration: secondsToDuration(secs),
				Actions:  map[string]any{},
			})
			accumulated = secs
		}
	}

	for i, rec := range records {
		dur, drop, err := resolveDuration(name, records, i, accumulated, open)
		if err != nil {
			return nil, err
		}
		if drop {
			continue
		}
		if dur == 0 {
			return nil, &ValidationError{Show: name, Step: i, Reason: "step resolves to zero duration"}
		}
		if dur < 0 {
			open = true
		} else {
			accumulated += dur
		}

		actions, err := validateActions(name, i, rec, players)
		if err != nil {
			return nil, err
		}

		steps = append(steps, Step{Duration: secondsToDuration(dur), Actions: actions})
	}

	if len(steps) == 0 {
		return nil, &ValidationError{Show: name, Step: -1, Reason: "show compiles to an empty timeline"}
	}

	return &Show{
		name:        name,
		steps:       steps,
		tokens:      scanTokens(steps),
		instanceIDs: make(map[int64]struct{}),
	}, nil
}

// resolveDuration works out record i's duration in seconds. drop is
// true for a trailing time-only no-op record.
func resolveDuration(name string, records []map[string]any, i int, accumulated float64, open bool) (dur float64, drop bool, err error) {
	rec := records[i]

	if d, ok := rec["duration"]; ok {
		secs, err := parseDurationValue(d)
		if err != nil {
			return 0, false, &ValidationError{Show: name, Step: i, Key: "duration", Reason: err.Error()}
		}
		return secs, false, nil
	}

	if i == len(records)-1 && i != 0 && isTimeOnly(rec) {
		return 0, true, nil
	}

	if i+1 < len(records) {
		if t, ok := records[i+1]["time"]; ok {
			secs, relative, err := parseTimeValue(t)
			if err != nil {
				return 0, false, &ValidationError{Show: name, Step: i + 1, Key: "time", Reason: err.Error()}
			}
			if relative {
				return secs, false, nil
			}
			if open {
				return 0, false, &ValidationError{
					Show: name, Step: i + 1, Key: "time",
					Reason: "absolute time cannot follow an open-ended step",
				}
			}
			d := secs - accumulated
			if d < 0 {
				return 0, false, &ValidationError{
					Show: name, Step: i + 1, Key: "time",
					Reason: fmt.Sprintf("absolute time %g is before accumulated time %g", secs, accumulated),
				}
			}
			return d, false, nil
		}
	}

	return 1, false, nil
}

// validateActions dispatches every non-timing key to its player.
func validateActions(name string, step int, rec map[string]any, players map[string]DevicePlayer) (map[string]any, error) {
	actions := make(map[string]any)

	keys := make([]string, 0, len(rec))
	for key := range rec {
		if key == "time" || key == "duration" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		player, ok := players[key]
		if !ok {
			return nil, &ValidationError{
				Show: name, Step: step, Key: key,
				Reason: "unknown section",
				Hint:   didYouMean(key, playerNames(players)),
			}
		}
		validated, err := player.ValidateConfig(name, step, rec[key])
		if err != nil {
			return nil, err
		}
		actions[key] = validated
	}

	return actions, nil
}

// isTimeOnly reports whether a record carries nothing but a "time" key.
func isTimeOnly(rec map[string]any) bool {
	if len(rec) != 1 {
		return false
	}
	_, ok := rec["time"]
	return ok
}

func playerNames(players map[string]DevicePlayer) []string {
	names := make([]string, 0, len(players))
	for name := range players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// didYouMean finds a near-miss candidate for an unknown key: the
// singular/plural variant, or any name within edit distance two.
func didYouMean(key string, candidates []string) string {
	for _, c := range candidates {
		if c == key+"s" || key == c+"s" {
			return c
		}
	}
	best := ""
	bestDist := 3
	for _, c := range candidates {
		if d := editDistance(key, c); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// editDistance is the Levenshtein distance between two short keys.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// parseTimeValue parses a step "time" value. Numbers are absolute
// seconds; strings may carry a "+" prefix (relative) and an optional
// "s" or "ms" suffix.
func parseTimeValue(v any) (secs float64, relative bool, err error) {
	switch t := v.(type) {
	case int:
		return float64(t), false, nil
	case float64:
		return t, false, nil
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "+") {
			relative = true
			s = s[1:]
		}
		secs, err = parseSeconds(s)
		if err != nil {
			return 0, false, err
		}
		return secs, relative, nil
	default:
		return 0, false, fmt.Errorf("time value must be a number or string, got %T", v)
	}
}

// parseDurationValue parses an explicit "duration" value in seconds.
// Relative "+" notation is only valid for times.
func parseDurationValue(v any) (float64, error) {
	switch d := v.(type) {
	case int:
		return float64(d), nil
	case float64:
		return d, nil
	case string:
		s := strings.TrimSpace(d)
		if strings.HasPrefix(s, "+") {
			return 0, fmt.Errorf("duration cannot be relative: %q", d)
		}
		return parseSeconds(s)
	default:
		return 0, fmt.Errorf("duration must be a number or string, got %T", v)
	}
}

// parseSeconds parses "2", "1.5", "1.5s" or "250ms" into seconds.
func parseSeconds(s string) (float64, error) {
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "ms"):
		mult = 0.001
		s = strings.TrimSuffix(s, "ms")
	case strings.HasSuffix(s, "s"):
		s = strings.TrimSuffix(s, "s")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable time value %q", s)
	}
	return f * mult, nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
