// Package engine runs telemetry samples through crossing detection and the
// lap state machine. One Engine serves one session. Samples for one entity
// are serialized internally, so it is safe to call ProcessSample from
// multiple goroutines; ordering within an entity is still the caller's job.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lapline/lapline/internal/cache"
	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/race"
	"github.com/lapline/lapline/internal/storage"
	"github.com/lapline/lapline/internal/track"
	"github.com/lapline/lapline/internal/trajectory"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/geometry"
)

// Dependencies holds the engine's collaborators. All fields except the
// callbacks are required.
type Dependencies struct {
	Tracker    *trajectory.Tracker
	Catalog    *track.Catalog
	Progress   *race.Progress
	Counter    *race.Counter
	Registry   *cache.Registry
	Store      storage.Backend
	LogManager *logging.SlogManager

	// OnCrossing, if set, is called after a crossing has been recorded.
	OnCrossing func(core.Crossing)
	// OnLap, if set, is called after a completed lap has been recorded.
	OnLap func(core.Lap)
}

// Engine wires trajectory tracking, crossing detection, lap progress and
// the aggregate counter together.
type Engine struct {
	deps Dependencies

	// entityMu serializes sample processing per entity id, created lazily.
	mu       sync.Mutex
	entityMu map[uint16]*sync.Mutex

	samples   metric.Int64Counter
	crossings metric.Int64Counter
	laps      metric.Int64Counter
}

// New creates an Engine. Uses the global OTel meter for metrics (no-op if
// not configured).
func New(deps Dependencies) (*Engine, error) {
	e := &Engine{
		deps:     deps,
		entityMu: make(map[uint16]*sync.Mutex),
	}

	m := meter()

	var err error

	e.samples, err = m.Int64Counter(
		"engine.samples.processed",
		metric.WithDescription("Total telemetry samples processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating samples counter: %w", err)
	}

	e.crossings, err = m.Int64Counter(
		"engine.crossings.detected",
		metric.WithDescription("Total checkpoint crossings detected"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating crossings counter: %w", err)
	}

	e.laps, err = m.Int64Counter(
		"engine.laps.completed",
		metric.WithDescription("Total laps completed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating laps counter: %w", err)
	}

	return e, nil
}

// ProcessSample runs one telemetry sample through detection and returns the
// acknowledgment for the feed. It never fails outright; every outcome,
// including storage trouble, is reported through the ack.
func (e *Engine) ProcessSample(s *core.Sample) core.SampleAck {
	lock := e.lockFor(s.EntityID)
	lock.Lock()
	defer lock.Unlock()

	ack := core.SampleAck{EntityID: s.EntityID, CaptureFrame: s.CaptureFrame, OK: true}

	segment, haveSegment := e.deps.Tracker.Observe(s.EntityID, s.Position)

	err := e.deps.Store.RecordSample(s)
	if err != nil {
		err = &storeError{op: "record sample", err: err}
	} else if haveSegment {
		// The first observation for an entity has no prior position, so
		// there is no segment to test yet.
		err = e.detect(s, segment, &ack)
	}

	if err != nil {
		e.deps.LogManager.Logger().Error("Sample processing aborted",
			"entityID", s.EntityID, "captureFrame", s.CaptureFrame, "error", err)
		ack.OK = false
		ack.Note = err.Error()
	}

	e.samples.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("ok", ack.OK)))

	return ack
}

func (e *Engine) lockFor(entityID uint16) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.entityMu[entityID]
	if !ok {
		lock = &sync.Mutex{}
		e.entityMu[entityID] = lock
	}
	return lock
}

// detect tests the sample's segment against every checkpoint of one catalog
// snapshot, in catalog order. A storage failure aborts the scan.
func (e *Engine) detect(s *core.Sample, seg trajectory.Segment, ack *core.SampleAck) error {
	list := e.deps.Catalog.Ordered()

	// The lap requirement is derived from the same snapshot the scan uses,
	// so an admin edit landing mid-sample cannot split the two views.
	activeRegular := make([]uint16, 0, len(list))
	for _, cp := range list {
		if cp.Active && !cp.IsStartFinish {
			activeRegular = append(activeRegular, cp.ID)
		}
	}

	for _, cp := range list {
		if !cp.Active {
			continue
		}
		if !cp.IsStartFinish && e.deps.Progress.Has(s.EntityID, cp.ID) {
			continue
		}
		if !geometry.SegmentIntersectsBox(seg.From, seg.To, cp.Bounds) {
			continue
		}

		var err error
		if cp.IsStartFinish {
			err = e.crossStartFinish(s, seg, cp, activeRegular, ack)
		} else {
			err = e.crossRegular(s, seg, cp)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// crossRegular collects a regular checkpoint and records the crossing.
func (e *Engine) crossRegular(s *core.Sample, seg trajectory.Segment, cp core.Checkpoint) error {
	if !e.deps.Progress.Collect(s.EntityID, cp.ID, s.Time) {
		// Collected on an earlier sample; nothing new to record.
		return nil
	}

	e.crossings.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("start_finish", false)))

	crossing := core.Crossing{
		EntityID:     s.EntityID,
		CheckpointID: cp.ID,
		Time:         s.Time,
		CaptureFrame: s.CaptureFrame,
		SegmentFrom:  seg.From,
		SegmentTo:    seg.To,
	}
	if err := e.deps.Store.RecordCrossing(&crossing); err != nil {
		return &storeError{op: "record crossing", err: err}
	}
	if err := e.deps.Store.RecordCollected(s.EntityID, cp.ID); err != nil {
		return &storeError{op: "record collected checkpoint", err: err}
	}
	if e.deps.OnCrossing != nil {
		e.deps.OnCrossing(crossing)
	}
	return nil
}

// crossStartFinish records a start/finish crossing and, when the entity
// holds every active regular checkpoint, completes the lap.
func (e *Engine) crossStartFinish(s *core.Sample, seg trajectory.Segment, cp core.Checkpoint, activeRegular []uint16, ack *core.SampleAck) error {
	duration, completed := e.deps.Progress.TryCompleteLap(s.EntityID, activeRegular, s.Time)

	e.crossings.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("start_finish", true)))

	crossing := core.Crossing{
		EntityID:     s.EntityID,
		CheckpointID: cp.ID,
		Time:         s.Time,
		CaptureFrame: s.CaptureFrame,
		SegmentFrom:  seg.From,
		SegmentTo:    seg.To,
		LapCompleted: completed,
	}
	if err := e.deps.Store.RecordCrossing(&crossing); err != nil {
		return &storeError{op: "record crossing", err: err}
	}
	if e.deps.OnCrossing != nil {
		e.deps.OnCrossing(crossing)
	}

	if !completed {
		return nil
	}
	return e.completeLap(s, duration, ack)
}

// completeLap applies the counter and persists the lap. An uncredited lap
// is still recorded so the session log shows the circuit was closed.
func (e *Engine) completeLap(s *core.Sample, duration time.Duration, ack *core.SampleAck) error {
	ack.LapCompleted = true

	lap := core.Lap{
		EntityID:     s.EntityID,
		Time:         s.Time,
		CaptureFrame: s.CaptureFrame,
		Duration:     duration,
	}

	entity, known := e.deps.Registry.GetEntity(s.EntityID)
	if known {
		lap.Team = entity.Team
		total, credited := e.deps.Counter.Apply(entity)
		lap.LapNumber = total
		lap.Credited = credited
		if !credited && e.deps.Counter.Mode() == race.ModeTeam && entity.Team == "" {
			ack.Note = "no team assignment; lap not credited"
		}
	} else {
		ack.Note = "entity not registered; lap not credited"
	}

	e.laps.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Bool("credited", lap.Credited)))

	if err := e.deps.Store.ClearCollected(s.EntityID); err != nil {
		return &storeError{op: "clear collected checkpoints", err: err}
	}
	if err := e.deps.Store.RecordLap(&lap); err != nil {
		return &storeError{op: "record lap", err: err}
	}
	if lap.Credited {
		if err := e.deps.Store.IncrementEntityLaps(s.EntityID); err != nil {
			return &storeError{op: "increment entity laps", err: err}
		}
		if e.deps.Counter.Mode() == race.ModeTeam && lap.Team != "" {
			if err := e.deps.Store.IncrementTeamLaps(lap.Team); err != nil {
				return &storeError{op: "increment team laps", err: err}
			}
		}
	}

	if e.deps.OnLap != nil {
		e.deps.OnLap(lap)
	}
	return nil
}

// Standings returns the current leaderboard from the aggregate counter.
func (e *Engine) Standings() []core.Standing {
	return e.deps.Counter.Standings()
}
