package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/robfig/cron/v3"
)

// Cycle produces activation timestamps.
type Cycle interface {
	// Next returns the first activation at or after from, or false when the
	// cycle is exhausted.
	Next(from int64) (int64, bool)
}

// PeriodicCycle activates at Start, Start+Period, ... for Iterations
// activations (0 means unbounded).
type PeriodicCycle struct {
	Start      int64
	Period     int64
	Iterations int
}

func (c PeriodicCycle) Next(from int64) (int64, bool) {
	if c.Period <= 0 {
		if from <= c.Start {
			return c.Start, true
		}
		return 0, false
	}
	k := int64(0)
	if from > c.Start {
		k = (from - c.Start + c.Period - 1) / c.Period
	}
	if c.Iterations > 0 && k >= int64(c.Iterations) {
		return 0, false
	}
	return c.Start + k*c.Period, true
}

// CronCycle activates on a standard five-field cron schedule. Ticks map to
// wall-clock time as Origin + tick*Unit.
type CronCycle struct {
	Expr     string
	Origin   time.Time
	Unit     time.Duration
	schedule cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NewCronCycle parses expr and anchors it at origin with the given tick unit.
func NewCronCycle(expr string, origin time.Time, unit time.Duration) (*CronCycle, error) {
	if unit <= 0 {
		return nil, fmt.Errorf("cron cycle %q: tick unit must be positive, got %v", expr, unit)
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron cycle %q: %w", expr, err)
	}
	return &CronCycle{Expr: expr, Origin: origin, Unit: unit, schedule: schedule}, nil
}

func (c *CronCycle) Next(from int64) (int64, bool) {
	t := c.Origin.Add(time.Duration(from) * c.Unit)
	n := c.schedule.Next(t.Add(-time.Nanosecond))
	if n.IsZero() {
		return 0, false
	}
	d := n.Sub(c.Origin)
	ticks := int64(d / c.Unit)
	if d%c.Unit != 0 {
		ticks++
	}
	if ticks < from {
		ticks = from
	}
	return ticks, true
}

// Forever is the window length of a permanent availability entry.
const Forever = int64(math.MaxInt64 / 4)

// NewPermanentEntry returns an entry that makes types available from start
// on for the rest of the run.
func NewPermanentEntry(start int64, types ...*ResourceType) *TimetableEntry {
	return &TimetableEntry{Types: types, Cycle: PeriodicCycle{Start: start, Iterations: 1}, Duration: Forever}
}

// TimetableEntry opens an availability window of Duration ticks for Types
// at every activation of Cycle.
type TimetableEntry struct {
	Types    []*ResourceType
	Cycle    Cycle
	Duration int64
}

func (e *TimetableEntry) covers(t *ResourceType) bool {
	for _, et := range e.Types {
		if et == t {
			return true
		}
	}
	return false
}

// NewTimetableEntry validates a timetable entry. Windows must have positive
// length and must not overlap the next activation of the same entry.
func NewTimetableEntry(cycle Cycle, duration int64, types ...*ResourceType) (*TimetableEntry, error) {
	if cycle == nil {
		return nil, fmt.Errorf("timetable entry: nil cycle")
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("timetable entry: no resource types")
	}
	if duration <= 0 {
		return nil, fmt.Errorf("timetable entry: duration must be positive, got %d", duration)
	}
	switch c := cycle.(type) {
	case PeriodicCycle:
		if c.Period < 0 || (c.Period == 0 && c.Iterations != 1) {
			return nil, fmt.Errorf("timetable entry: period must be positive, got %d", c.Period)
		}
		if c.Period > 0 && duration > c.Period {
			return nil, fmt.Errorf("timetable entry: duration %d exceeds period %d", duration, c.Period)
		}
	default:
		if err := checkGaps(cycle, duration); err != nil {
			return nil, err
		}
	}
	return &TimetableEntry{Types: types, Cycle: cycle, Duration: duration}, nil
}

// gapScanLimit bounds how many consecutive activations of a non-periodic
// cycle are compared. It covers more than a year of daily schedules.
const gapScanLimit = 1024

// checkGaps rejects a duration longer than any gap between consecutive
// activations among the first gapScanLimit ones.
func checkGaps(cycle Cycle, duration int64) error {
	prev, ok := cycle.Next(0)
	if !ok {
		return nil
	}
	for i := 0; i < gapScanLimit; i++ {
		next, ok := cycle.Next(prev + 1)
		if !ok {
			return nil
		}
		if gap := next - prev; gap < duration {
			return fmt.Errorf("timetable entry: duration %d exceeds gap %d between activations at %d and %d", duration, gap, prev, next)
		}
		prev = next
	}
	return nil
}
