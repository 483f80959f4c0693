package globe

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Command kinds.
const (
	KindFlyTo          = "fly_to"
	KindStyleBuildings = "style_buildings"
	KindFloodPlane     = "flood_plane"
	KindWeather        = "weather"
)

// DefaultCommandLogCapacity bounds the retained command history.
const DefaultCommandLogCapacity = 256

// Command is one renderer call, versioned for replay by the browser.
type Command struct {
	Version    uint64         `json:"version"`
	Kind       string         `json:"kind"`
	At         time.Time      `json:"at"`
	Camera     *Camera        `json:"camera,omitempty"`
	Buildings  *BuildingStyle `json:"buildings,omitempty"`
	Condition  string         `json:"condition,omitempty"`
	FloodPlane *FloodPlane    `json:"flood_plane,omitempty"`
	Weather    *Weather       `json:"weather,omitempty"`
}

// CommandLog is a Renderer that records commands in a bounded ring for
// clients to poll. Clients that fall behind the retained window receive the
// latest command of each kind instead.
type CommandLog struct {
	clock    clockwork.Clock
	capacity int

	mu       sync.Mutex
	commands []Command
	latest   map[string]Command
	version  uint64
}

// NewCommandLog creates a CommandLog holding up to capacity commands.
func NewCommandLog(capacity int, clock clockwork.Clock) *CommandLog {
	if capacity <= 0 {
		capacity = DefaultCommandLogCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CommandLog{
		clock:    clock,
		capacity: capacity,
		latest:   make(map[string]Command),
	}
}

func (l *CommandLog) FlyTo(cam Camera) {
	l.record(Command{Kind: KindFlyTo, Camera: &cam})
}

func (l *CommandLog) StyleBuildings(style BuildingStyle) {
	l.record(Command{Kind: KindStyleBuildings, Buildings: &style, Condition: style.Condition()})
}

func (l *CommandLog) SetFloodPlane(plane FloodPlane) {
	l.record(Command{Kind: KindFloodPlane, FloodPlane: &plane})
}

func (l *CommandLog) SetWeather(w Weather) {
	l.record(Command{Kind: KindWeather, Weather: &w})
}

func (l *CommandLog) record(cmd Command) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.version++
	cmd.Version = l.version
	cmd.At = l.clock.Now()

	l.commands = append(l.commands, cmd)
	if over := len(l.commands) - l.capacity; over > 0 {
		l.commands = append(l.commands[:0:0], l.commands[over:]...)
	}
	l.latest[cmd.Kind] = cmd
}

// Since returns the commands newer than version and the current version.
// When version predates the retained window, resync is true and the result
// holds the latest command per kind, in version order.
func (l *CommandLog) Since(version uint64) (cmds []Command, current uint64, resync bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if version >= l.version {
		return nil, l.version, false
	}

	if len(l.commands) > 0 && version+1 < l.commands[0].Version {
		out := make([]Command, 0, len(l.latest))
		for _, c := range l.latest {
			out = append(out, c)
		}
		slices.SortFunc(out, func(a, b Command) int { return cmp.Compare(a.Version, b.Version) })
		return out, l.version, true
	}

	out := make([]Command, 0, len(l.commands))
	for _, c := range l.commands {
		if c.Version > version {
			out = append(out, c)
		}
	}
	return out, l.version, false
}

// Version returns the newest command version.
func (l *CommandLog) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// ErrNoIonToken is returned by IonTilesetLoader without a token.
var ErrNoIonToken = errors.New("CESIUM_ION_TOKEN not set")

// IonTilesetLoader checks that the browser can load the building tileset.
// The tiles themselves are fetched client-side with the token.
type IonTilesetLoader struct {
	Token string
}

func (l IonTilesetLoader) LoadTileset(_ context.Context) error {
	if l.Token == "" {
		return ErrNoIonToken
	}
	return nil
}
