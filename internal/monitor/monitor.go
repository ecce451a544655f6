// Package monitor publishes a once-a-second snapshot of pipeline health:
// dispatcher buffer depths, backend write-queue depths and the duration of
// the backend's last write batch.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/lapline/lapline/internal/dispatcher"
	"github.com/lapline/lapline/internal/logging"
	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/internal/session"
	"github.com/lapline/lapline/internal/storage"
)

// Dependencies holds all dependencies for the monitor service.
// DB is only needed for TimescaleDB hypertable administration and stays nil
// on non-Postgres deployments. OnSnapshot, when set, receives every
// snapshot taken by the background loop.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager
	SessionCtx *session.Context
	Dispatcher *dispatcher.Dispatcher
	Backend    storage.Backend
	StatusDir  string
	OnSnapshot func(model.SessionPerformance)
}

// Service manages status monitoring.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot assembles the current pipeline health picture.
func (s *Service) Snapshot() model.SessionPerformance {
	perf := model.SessionPerformance{
		Time:          time.Now(),
		BufferLengths: bufferLengths(s.deps.Dispatcher.QueueLengths()),
	}

	if mon, ok := s.deps.Backend.(storage.Monitorable); ok {
		perf.WriteQueueLengths = mon.QueueLengths()
		perf.LastWriteDurationMs = float32(mon.GetLastDBWriteDuration().Milliseconds())
	}

	return perf
}

// bufferLengths maps the buffered dispatcher commands onto the persisted
// buffer model. Sync commands have no queue and stay zero.
func bufferLengths(queues map[string]int) model.BufferLengths {
	return model.BufferLengths{
		Positions:     uint16(queues[":ENTITY:POS:"]),
		GeneralEvents: uint16(queues[":EVENT:"]),
		FeedStatuses:  uint16(queues[":FEED:STATUS:"]),
		TimeStates:    uint16(queues[":TIME:"]),
	}
}

// GetProgramStatus returns printable status blocks and the snapshot they
// were built from.
func (s *Service) GetProgramStatus(
	rawBuffers bool,
	writeQueues bool,
	lastWrite bool,
) (output []string, perf model.SessionPerformance) {
	perf = s.Snapshot()

	if rawBuffers {
		output = append(output, marshalBlock(perf.BufferLengths))
	}
	if writeQueues {
		output = append(output, marshalBlock(perf.WriteQueueLengths))
	}
	if lastWrite {
		output = append(output, marshalBlock(perf.LastWriteDurationMs))
	}

	return output, perf
}

func marshalBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "%s"}`, err)
	}
	return string(data)
}

// ValidateHypertables validates and creates TimescaleDB hypertables for the
// given tables, keyed by table name with the compression segmentby columns
// as values.
func (s *Service) ValidateHypertables(tables map[string][]string) error {
	functionName := "validateHypertables"

	all := []any{}
	s.deps.DB.Exec(`SELECT x.* FROM timescaledb_information.hypertables`).Scan(&all)
	for _, row := range all {
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`hypertable row: %v`, row), "DEBUG")
	}

	for table := range tables {
		hypertable := any(nil)
		s.deps.DB.Exec(`SELECT x.* FROM timescaledb_information.hypertables WHERE hypertable_name = ?`, table).Scan(&hypertable)
		if hypertable != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Table %s is already configured`, table), "INFO")
			continue
		}

		queryCreateHypertable := fmt.Sprintf(`
				SELECT create_hypertable('%s', 'time', chunk_time_interval => interval '1 day', if_not_exists => true);
			`, table)
		err := s.deps.DB.Exec(queryCreateHypertable).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to create hypertable for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Created hypertable for %s`, table), "INFO")

		queryCompressHypertable := fmt.Sprintf(`
				ALTER TABLE %s SET (
					timescaledb.compress,
					timescaledb.compress_segmentby = ?);
			`, table)
		err = s.deps.DB.Exec(
			queryCompressHypertable,
			strings.Join(tables[table], ","),
		).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to enable compression for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Enabled hypertable compression for %s`, table), "INFO")

		queryCompressAfterHypertable := fmt.Sprintf(`
				SELECT add_compression_policy(
					'%s',
					compress_after => interval '14 day');
			`, table)
		err = s.deps.DB.Exec(queryCompressAfterHypertable).Error
		if err != nil {
			s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Failed to set compress_after for %s. Err: %s`, table, err), "ERROR")
			return err
		}
		s.deps.LogManager.WriteLog(functionName, fmt.Sprintf(`Set compress_after for %s`, table), "INFO")
	}
	return nil
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "function", "startStatusMonitor")

		statusFile, err := os.Create(s.deps.StatusDir + "/status.txt")
		if err != nil {
			logger.Error("Error creating status file", "error", err)
		}
		defer statusFile.Close()

		for {
			select {
			case <-s.stopChan:
				return
			default:
				time.Sleep(1000 * time.Millisecond)

				// Nothing to report until the first session loads.
				if s.deps.SessionCtx.StartedAt().IsZero() {
					continue
				}

				statusStr, perf := s.GetProgramStatus(true, true, true)

				if statusFile != nil {
					statusFile.Truncate(0)
					statusFile.Seek(0, 0)
					for _, line := range statusStr {
						statusFile.WriteString(line + "\n")
					}
				}

				if mon, ok := s.deps.Backend.(storage.Monitorable); ok {
					if err := mon.RecordPerformance(&perf); err != nil {
						logger.Error("Error recording performance snapshot", "error", err)
					}
				}

				if s.deps.OnSnapshot != nil {
					s.deps.OnSnapshot(perf)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		close(s.stopChan)
	}
}
