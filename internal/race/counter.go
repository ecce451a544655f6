package race

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lapline/lapline/pkg/core"
)

// Mode selects whose total a completed lap credits.
type Mode string

const (
	// ModeEntity counts laps per entity.
	ModeEntity Mode = "entity"
	// ModeTeam counts laps per team, shared by all entities on it.
	ModeTeam Mode = "team"
)

// ParseMode decodes a count mode from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeEntity:
		return ModeEntity, nil
	case ModeTeam:
		return ModeTeam, nil
	default:
		return "", fmt.Errorf("unknown count mode %q", s)
	}
}

// Counter accumulates lap totals per entity or per team, depending on the
// configured mode. The same Counter type serves both modes; the mode only
// changes which key a lap credits.
//
// Totals are atomics so entities on the same team completing laps in
// parallel increment one shared total without racing. A key that reaches the
// lap cap is deactivated permanently for the session: its total never moves
// again and it drops out of the active leaderboard.
type Counter struct {
	mode   Mode
	lapCap int64

	mu   sync.Mutex // guards the rows map, not the totals
	rows map[string]*counterRow
}

type counterRow struct {
	label    string
	laps     atomic.Int64
	inactive atomic.Bool
}

// NewCounter creates a Counter. A lapCap of zero means no cap.
func NewCounter(mode Mode, lapCap int) *Counter {
	return &Counter{
		mode:   mode,
		lapCap: int64(lapCap),
		rows:   make(map[string]*counterRow),
	}
}

// Mode returns the configured count mode.
func (c *Counter) Mode() Mode {
	return c.mode
}

// LapCap returns the configured lap cap, zero when uncapped.
func (c *Counter) LapCap() int64 {
	return c.lapCap
}

// Apply credits a completed lap to the entity's counter key. It returns the
// key's new total and whether the lap was credited. Credit is refused when
// the key is deactivated, when crediting would exceed the lap cap, or in
// team mode when the entity has no team.
func (c *Counter) Apply(entity core.Entity) (int64, bool) {
	key, label, ok := c.keyFor(entity)
	if !ok {
		return 0, false
	}
	r := c.row(key, label)

	for {
		n := r.laps.Load()
		if r.inactive.Load() {
			return n, false
		}
		if c.lapCap > 0 && n >= c.lapCap {
			r.inactive.Store(true)
			return n, false
		}
		if r.laps.CompareAndSwap(n, n+1) {
			n++
			if c.lapCap > 0 && n >= c.lapCap {
				r.inactive.Store(true)
			}
			return n, true
		}
	}
}

// Total returns the current lap total for the entity's counter key.
func (c *Counter) Total(entity core.Entity) int64 {
	key, label, ok := c.keyFor(entity)
	if !ok {
		return 0
	}
	return c.row(key, label).laps.Load()
}

// Standings returns one row per counter key, most laps first, ties broken by
// label. Deactivated keys are included with Active false so leaderboard
// consumers can filter or gray them out.
func (c *Counter) Standings() []core.Standing {
	c.mu.Lock()
	rows := make([]*counterRow, 0, len(c.rows))
	for _, r := range c.rows {
		rows = append(rows, r)
	}
	c.mu.Unlock()

	standings := make([]core.Standing, 0, len(rows))
	for _, r := range rows {
		standings = append(standings, core.Standing{
			Key:    r.label,
			Laps:   r.laps.Load(),
			Active: !r.inactive.Load(),
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].Laps != standings[j].Laps {
			return standings[i].Laps > standings[j].Laps
		}
		return standings[i].Key < standings[j].Key
	})
	return standings
}

// Reset drops all totals and deactivations.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = make(map[string]*counterRow)
}

func (c *Counter) keyFor(entity core.Entity) (key, label string, ok bool) {
	switch c.mode {
	case ModeTeam:
		if entity.Team == "" {
			return "", "", false
		}
		return "team/" + entity.Team, entity.Team, true
	default:
		label = entity.Name
		if label == "" {
			label = "#" + strconv.Itoa(int(entity.ID))
		}
		return "entity/" + strconv.Itoa(int(entity.ID)), label, true
	}
}

func (c *Counter) row(key, label string) *counterRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rows[key]
	if !ok {
		r = &counterRow{label: label}
		c.rows[key] = r
	}
	return r
}
