package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lapline/lapline/internal/dispatcher"
	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/internal/session"
	"github.com/lapline/lapline/internal/storage"
	"github.com/lapline/lapline/pkg/core"
)

// monitoredBackend fakes a backend with write queues. The embedded interface
// stays nil; the monitor only ever touches the monitoring methods.
type monitoredBackend struct {
	storage.Backend

	queues    model.WriteQueueLengths
	lastWrite time.Duration

	mu       sync.Mutex
	recorded []model.SessionPerformance
}

func (b *monitoredBackend) QueueLengths() model.WriteQueueLengths {
	return b.queues
}

func (b *monitoredBackend) GetLastDBWriteDuration() time.Duration {
	return b.lastWrite
}

func (b *monitoredBackend) RecordPerformance(perf *model.SessionPerformance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorded = append(b.recorded, *perf)
	return nil
}

func (b *monitoredBackend) recordedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.recorded)
}

// plainBackend has no monitoring support at all.
type plainBackend struct {
	storage.Backend
}

func newTestService(t *testing.T, backend storage.Backend) (*Service, *session.Context) {
	t.Helper()

	logManager := logging.NewSlogManager()
	d, err := dispatcher.New(logging.NewDispatcherLogger(logManager.Logger()))
	if err != nil {
		t.Fatalf("dispatcher.New: %v", err)
	}

	sessionCtx := session.NewContext()
	svc := NewService(Dependencies{
		LogManager: logManager,
		SessionCtx: sessionCtx,
		Dispatcher: d,
		Backend:    backend,
		StatusDir:  t.TempDir(),
	})
	return svc, sessionCtx
}

func TestBufferLengthsMapping(t *testing.T) {
	got := bufferLengths(map[string]int{
		":ENTITY:POS:":  7,
		":EVENT:":       3,
		":FEED:STATUS:": 2,
		":TIME:":        1,
		":NEW:SESSION:": 9,
	})

	want := model.BufferLengths{
		Positions:     7,
		GeneralEvents: 3,
		FeedStatuses:  2,
		TimeStates:    1,
	}
	if got != want {
		t.Fatalf("bufferLengths = %+v, want %+v", got, want)
	}
}

func TestSnapshotReadsMonitorableBackend(t *testing.T) {
	backend := &monitoredBackend{
		queues:    model.WriteQueueLengths{Positions: 12, Laps: 4},
		lastWrite: 250 * time.Millisecond,
	}
	svc, _ := newTestService(t, backend)

	perf := svc.Snapshot()

	if perf.WriteQueueLengths != backend.queues {
		t.Fatalf("WriteQueueLengths = %+v, want %+v", perf.WriteQueueLengths, backend.queues)
	}
	if perf.LastWriteDurationMs != 250 {
		t.Fatalf("LastWriteDurationMs = %v, want 250", perf.LastWriteDurationMs)
	}
	if perf.Time.IsZero() {
		t.Fatal("snapshot carries no timestamp")
	}
}

func TestSnapshotWithPlainBackend(t *testing.T) {
	svc, _ := newTestService(t, &plainBackend{})

	perf := svc.Snapshot()

	if perf.WriteQueueLengths != (model.WriteQueueLengths{}) {
		t.Fatalf("WriteQueueLengths = %+v, want zero", perf.WriteQueueLengths)
	}
	if perf.LastWriteDurationMs != 0 {
		t.Fatalf("LastWriteDurationMs = %v, want 0", perf.LastWriteDurationMs)
	}
}

func TestGetProgramStatusSelectsBlocks(t *testing.T) {
	svc, _ := newTestService(t, &monitoredBackend{})

	output, _ := svc.GetProgramStatus(true, true, true)
	if len(output) != 3 {
		t.Fatalf("got %d status blocks, want 3", len(output))
	}
	if !strings.Contains(output[0], `"positions"`) {
		t.Fatalf("buffer block missing positions field: %s", output[0])
	}
	if !strings.Contains(output[1], `"crossings"`) {
		t.Fatalf("write queue block missing crossings field: %s", output[1])
	}

	output, _ = svc.GetProgramStatus(false, true, false)
	if len(output) != 1 {
		t.Fatalf("got %d status blocks, want 1", len(output))
	}
}

func TestStartStopLifecycle(t *testing.T) {
	backend := &monitoredBackend{
		queues: model.WriteQueueLengths{Crossings: 2},
	}
	svc, sessionCtx := newTestService(t, backend)
	var snapshotCount int
	var snapshotMu sync.Mutex
	svc.deps.OnSnapshot = func(model.SessionPerformance) {
		snapshotMu.Lock()
		snapshotCount++
		snapshotMu.Unlock()
	}
	sessionCtx.SetSession(&core.Session{Name: "Night Stint"}, &core.Venue{Name: "Eifel Ring"})

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.IsRunning() {
		t.Fatal("service not running after Start")
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	waitFor(t, "a recorded snapshot", func() bool {
		return backend.recordedCount() > 0
	})
	waitFor(t, "an OnSnapshot call", func() bool {
		snapshotMu.Lock()
		defer snapshotMu.Unlock()
		return snapshotCount > 0
	})

	statusPath := filepath.Join(svc.deps.StatusDir, "status.txt")
	waitFor(t, "the status file", func() bool {
		data, err := os.ReadFile(statusPath)
		return err == nil && strings.Contains(string(data), `"crossings"`)
	})

	svc.Stop()
	waitFor(t, "the monitor to stop", func() bool {
		return !svc.IsRunning()
	})

	// Stop on a stopped service is a no-op.
	svc.Stop()
}

func TestLoopIdlesWithoutSession(t *testing.T) {
	backend := &monitoredBackend{}
	svc, _ := newTestService(t, backend)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer svc.Stop()

	time.Sleep(1200 * time.Millisecond)
	if n := backend.recordedCount(); n != 0 {
		t.Fatalf("recorded %d snapshots with no session loaded, want 0", n)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
