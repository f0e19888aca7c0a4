package show

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// versionMarker matches the required "#show_version=N" comment line.
var versionMarker = regexp.MustCompile(`#\s*show_version\s*=\s*(\d+)`)

// Library loads and holds the machine's compiled shows, keyed by file
// base name. It also carries deferred autoplay: a Play call for a show
// that is not loaded yet is captured and fired when loading completes.
// If the show never loads, the queued play silently never fires.
type Library struct {
	log     Logger
	c       *Controller
	dir     string
	version int
	players map[string]DevicePlayer

	mu      sync.RWMutex
	shows   map[string]*Show
	pending map[string][]PlayOptions
}

// NewLibrary creates a library for a shows directory.
//
// Parameters:
//   - c: Controller that deferred autoplays are sent to
//   - dir: Directory containing one YAML file per show
//   - version: Required show schema version
//   - players: Registered players, used for compile-time validation
//   - log: Logger; nil discards output
func NewLibrary(c *Controller, dir string, version int, players map[string]DevicePlayer, log Logger) *Library {
	if log == nil {
		log = noopLogger{}
	}
	return &Library{
		log:     log,
		c:       c,
		dir:     dir,
		version: version,
		players: players,
		shows:   make(map[string]*Show),
		pending: make(map[string][]PlayOptions),
	}
}

// LoadAll loads every .yaml/.yml file in the shows directory. A show
// that fails to load is logged and skipped; it is never marked loaded,
// so deferred plays queued for it will not fire. Returns an error only
// if the directory itself cannot be read.
func (l *Library) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("reading shows directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)
		if err := l.loadFile(name, filepath.Join(l.dir, entry.Name())); err != nil {
			l.log.Error("show failed to load",
				"show", name, "error", err.Error())
			continue
		}
		loaded++
	}

	l.log.Info("show library loaded", "dir", l.dir, "shows", loaded)
	return nil
}

// Reload drops all compiled shows and loads the directory again.
// Deferred plays survive a reload; they fire if their show comes back.
// Must run on the control-loop goroutine since a successful load can
// trigger autoplay.
func (l *Library) Reload() error {
	l.mu.Lock()
	l.shows = make(map[string]*Show)
	l.mu.Unlock()
	return l.LoadAll()
}

// loadFile parses, version-checks, and compiles one show file, then
// fires any deferred plays queued for it.
func (l *Library) loadFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading show file: %w", err)
	}

	found := 0
	if m := versionMarker.FindSubmatch(data); m != nil {
		found, _ = strconv.Atoi(string(m[1]))
	}
	if found != l.version {
		return &VersionError{Show: name, Required: l.version, Found: found}
	}

	var raw []any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &ValidationError{
			Show: name, Step: -1,
			Reason: fmt.Sprintf("show file must be a list of step records: %v", err),
		}
	}

	s, err := Compile(name, raw, l.players)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.shows[name] = s
	queued := l.pending[name]
	delete(l.pending, name)
	l.mu.Unlock()

	for _, opts := range queued {
		if _, err := l.c.PlayShow(s, opts); err != nil {
			l.log.Warn("deferred play failed",
				"show", name, "error", err.Error())
		}
	}

	return nil
}

// Get returns a compiled show by name.
func (l *Library) Get(name string) (*Show, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.shows[name]
	return s, ok
}

// Names returns the sorted names of all loaded shows.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.shows))
	for name := range l.shows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of loaded shows.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.shows)
}

// Play starts the named show if it is loaded. If not, the options are
// captured and the play fires automatically when the show loads.
// Must run on the control-loop goroutine.
//
// Returns:
//   - *Instance: The running instance, or nil if the play was deferred
//   - error: Play-time failure (token mismatch, bad start step)
func (l *Library) Play(name string, opts PlayOptions) (*Instance, error) {
	l.mu.RLock()
	s, ok := l.shows[name]
	l.mu.RUnlock()

	if !ok {
		l.mu.Lock()
		l.pending[name] = append(l.pending[name], opts)
		l.mu.Unlock()
		l.log.Debug("show not loaded yet, play deferred", "show", name)
		return nil, nil
	}

	return l.c.PlayShow(s, opts)
}
