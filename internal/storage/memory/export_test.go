// internal/storage/memory/export_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lapline/lapline/internal/config"
	v1 "github.com/lapline/lapline/internal/storage/memory/export/v1"
	"github.com/lapline/lapline/pkg/core"
	"github.com/lapline/lapline/pkg/geometry"
)

// populateBackend loads a small but complete session into a backend
func populateBackend(b *Backend) {
	session := &core.Session{
		Name:      "Test Session",
		Organizer: "SimLeague",
		Tag:       "sprint",
		StartTime: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Rules:     core.RuleSet{CountMode: "entity"},
	}
	venue := &core.Venue{
		Name:        "monza_gp",
		DisplayName: "Autodromo Nazionale Monza",
	}
	_ = b.StartSession(session, venue)

	_ = b.PutCheckpoint(&core.Checkpoint{
		ID:     3,
		Name:   "Start/Finish",
		Order:  0,
		Bounds: geometry.NewBox3(geometry.Position3D{X: 0, Y: 0}, geometry.Position3D{X: 20, Y: 5, Z: 10}),
		Active: true, IsStartFinish: true,
	})

	_ = b.AddEntity(&core.Entity{ID: 1, Name: "Car One", Team: "Red Racing", CarNumber: 44, JoinFrame: 10})
	_ = b.RecordSample(&core.Sample{EntityID: 1, CaptureFrame: 10, Position: core.Position3D{X: 100, Y: 200}, Bearing: 90, Speed: 40, Velocity: "[39.5,2.0,0.0]"})
	_ = b.RecordSample(&core.Sample{EntityID: 1, CaptureFrame: 20, Position: core.Position3D{X: 150, Y: 200}, Bearing: 91, Speed: 42, Velocity: "[41.8,1.2,0.0]"})
	_ = b.RecordCrossing(&core.Crossing{EntityID: 1, CheckpointID: 3, CaptureFrame: 20, LapCompleted: true})
	_ = b.RecordLap(&core.Lap{EntityID: 1, LapNumber: 1, CaptureFrame: 20, Duration: 92 * time.Second, Credited: true})
	_ = b.IncrementEntityLaps(1)

	_ = b.RecordGeneralEvent(&core.GeneralEvent{CaptureFrame: 5, Name: "connected", Message: "feed connected"})
	_ = b.RecordTimeState(&core.TimeState{CaptureFrame: 0, Time: session.StartTime, SessionClock: 0})
	_ = b.RecordTrackOutline(&core.TrackOutline{Name: "circuit", Points: core.Polyline{{X: 0, Y: 0}, {X: 100, Y: 0}}})
}

func decodeExportFile(t *testing.T, path string, compressed bool) v1.Export {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()

	var export v1.Export
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("failed to open gzip reader: %v", err)
		}
		defer gz.Close()
		if err := json.NewDecoder(gz).Decode(&export); err != nil {
			t.Fatalf("failed to decode export: %v", err)
		}
	} else {
		if err := json.NewDecoder(f).Decode(&export); err != nil {
			t.Fatalf("failed to decode export: %v", err)
		}
	}
	return export
}

func TestExportJSON(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(config.MemoryConfig{
		OutputDir:      tmpDir,
		CompressOutput: false,
	})
	populateBackend(b)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(tmpDir, "*.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected 1 exported file, got %v (err=%v)", files, err)
	}

	export := decodeExportFile(t, files[0], false)

	if export.SessionName != "Test Session" {
		t.Errorf("expected SessionName=Test Session, got %s", export.SessionName)
	}
	if export.VenueName != "monza_gp" {
		t.Errorf("expected VenueName=monza_gp, got %s", export.VenueName)
	}
	if export.EndFrame != 20 {
		t.Errorf("expected EndFrame=20, got %d", export.EndFrame)
	}
	if len(export.Checkpoints) != 1 {
		t.Fatalf("expected 1 checkpoint, got %d", len(export.Checkpoints))
	}
	if export.Checkpoints[0].IsStartFinish != 1 {
		t.Error("expected start/finish flag on checkpoint")
	}

	// Sparse entity array: index 0 is a placeholder, index 1 is Car One
	if len(export.Entities) != 2 {
		t.Fatalf("expected entities array of length 2, got %d", len(export.Entities))
	}
	entity := export.Entities[1]
	if entity.Name != "Car One" {
		t.Errorf("expected entity name Car One, got %s", entity.Name)
	}
	if len(entity.Positions) != 2 {
		t.Errorf("expected 2 positions, got %d", len(entity.Positions))
	}
	if len(entity.Crossings) != 1 {
		t.Errorf("expected 1 crossing, got %d", len(entity.Crossings))
	}
	if len(entity.Laps) != 1 {
		t.Errorf("expected 1 lap, got %d", len(entity.Laps))
	}
	if entity.LapTotal != 1 {
		t.Errorf("expected LapTotal=1, got %d", entity.LapTotal)
	}

	if len(export.Events) != 1 {
		t.Errorf("expected 1 event, got %d", len(export.Events))
	}
	if len(export.Times) != 1 {
		t.Errorf("expected 1 time state, got %d", len(export.Times))
	}
	if len(export.Outlines) != 1 {
		t.Errorf("expected 1 outline, got %d", len(export.Outlines))
	}
	if len(export.Standings) != 1 {
		t.Fatalf("expected 1 standing, got %d", len(export.Standings))
	}
	if export.Standings[0].Key != "Car One" || export.Standings[0].Laps != 1 {
		t.Errorf("unexpected standing: %+v", export.Standings[0])
	}
}

func TestExportGzipJSON(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(config.MemoryConfig{
		OutputDir:      tmpDir,
		CompressOutput: true,
	})
	populateBackend(b)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(tmpDir, "*.json.gz"))
	if err != nil || len(files) != 1 {
		t.Fatalf("expected 1 exported file, got %v (err=%v)", files, err)
	}

	export := decodeExportFile(t, files[0], true)

	if export.SessionName != "Test Session" {
		t.Errorf("expected SessionName=Test Session, got %s", export.SessionName)
	}
	if export.EndFrame != 20 {
		t.Errorf("expected EndFrame=20, got %d", export.EndFrame)
	}
	if len(export.Entities) != 2 {
		t.Errorf("expected entities array of length 2, got %d", len(export.Entities))
	}
}

func TestFilenameGeneration(t *testing.T) {
	startTime := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		sessionName string
		expected    string
	}{
		{"plain name", "Sprint", "Sprint_20260314_100000.json"},
		{"spaces replaced", "6h of Monza", "6h_of_Monza_20260314_100000.json"},
		{"colons replaced", "Race: Finale", "Race__Finale_20260314_100000.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			b := New(config.MemoryConfig{
				OutputDir:      tmpDir,
				CompressOutput: false,
			})

			_ = b.StartSession(
				&core.Session{Name: tt.sessionName, StartTime: startTime},
				&core.Venue{Name: "monza_gp"},
			)
			if err := b.EndSession(); err != nil {
				t.Fatalf("EndSession failed: %v", err)
			}

			expectedPath := filepath.Join(tmpDir, tt.expected)
			if _, err := os.Stat(expectedPath); err != nil {
				t.Errorf("expected export at %s: %v", expectedPath, err)
			}
		})
	}
}

func TestExportCreatesOutputDir(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "recordings", "2026")
	b := New(config.MemoryConfig{
		OutputDir:      nested,
		CompressOutput: false,
	})

	_ = b.StartSession(
		&core.Session{Name: "Test", StartTime: time.Now()},
		&core.Venue{Name: "monza_gp"},
	)
	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	if _, err := os.Stat(nested); err != nil {
		t.Errorf("expected output directory to be created: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(nested, "*.json"))
	if len(files) != 1 {
		t.Errorf("expected 1 exported file in nested dir, got %d", len(files))
	}
}

func TestExportEmptySession(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(config.MemoryConfig{
		OutputDir:      tmpDir,
		CompressOutput: false,
	})

	_ = b.StartSession(
		&core.Session{Name: "Empty", StartTime: time.Now()},
		&core.Venue{Name: "vr_loop"},
	)
	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(tmpDir, "*.json"))
	if len(files) != 1 {
		t.Fatalf("expected 1 exported file, got %d", len(files))
	}

	export := decodeExportFile(t, files[0], false)
	if len(export.Entities) != 0 {
		t.Errorf("expected no entities, got %d", len(export.Entities))
	}
	if export.EndFrame != 0 {
		t.Errorf("expected EndFrame=0, got %d", export.EndFrame)
	}
}

func TestExportDeletedCheckpointIncluded(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(config.MemoryConfig{
		OutputDir:      tmpDir,
		CompressOutput: false,
	})

	_ = b.StartSession(
		&core.Session{Name: "Test", StartTime: time.Now()},
		&core.Venue{Name: "monza_gp"},
	)
	_ = b.PutCheckpoint(&core.Checkpoint{ID: 3, Name: "Turn 1", Active: true})
	_ = b.DeleteCheckpoint(3)

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(tmpDir, "*.json"))
	export := decodeExportFile(t, files[0], false)

	if len(export.Checkpoints) != 1 {
		t.Fatalf("expected deleted checkpoint in export, got %d checkpoints", len(export.Checkpoints))
	}
	if export.Checkpoints[0].Deleted != 1 {
		t.Error("expected checkpoint flagged deleted")
	}
}
