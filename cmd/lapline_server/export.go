package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lapline/lapline/internal/database"
	"github.com/lapline/lapline/internal/model"
	"github.com/lapline/lapline/internal/model/convert"
	v1 "github.com/lapline/lapline/internal/storage/memory/export/v1"
)

// exportRecordings rebuilds recording files from database rows for the given
// session IDs, producing the same gzipped JSON the memory backend writes at
// session end.
func exportRecordings(sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		fmt.Println("No session IDs provided.")
		return nil
	}

	db, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("error getting postgres database: %w", err)
	}

	for _, raw := range sessionIDs {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", raw, err)
		}
		if err := exportSession(db, uint(id)); err != nil {
			return fmt.Errorf("exporting session %d: %w", id, err)
		}
	}
	return nil
}

func exportSession(db *gorm.DB, sessionID uint) error {
	txStart := time.Now()

	var sess model.Session
	if err := db.First(&sess, sessionID).Error; err != nil {
		return fmt.Errorf("error getting session: %w", err)
	}
	var venue model.Venue
	if err := db.First(&venue, sess.VenueID).Error; err != nil {
		return fmt.Errorf("error getting venue: %w", err)
	}

	coreSession := convert.SessionToCore(&sess)
	coreVenue := convert.VenueToCore(&venue)

	data := &v1.SessionData{
		Session:     &coreSession,
		Venue:       &coreVenue,
		Entities:    make(map[uint16]*v1.EntityRecord),
		Teams:       make(map[string]*v1.TeamRecord),
		Checkpoints: make(map[uint16]*v1.CheckpointRecord),
	}

	var entities []model.Entity
	if err := db.Where("session_id = ?", sessionID).Find(&entities).Error; err != nil {
		return fmt.Errorf("error getting entities: %w", err)
	}
	for _, e := range entities {
		data.Entities[e.ObjectID] = &v1.EntityRecord{
			Entity:   convert.EntityToCore(e),
			LapTotal: e.Laps,
		}
	}

	var teams []model.TeamRecord
	if err := db.Where("session_id = ?", sessionID).Find(&teams).Error; err != nil {
		return fmt.Errorf("error getting teams: %w", err)
	}
	for _, t := range teams {
		data.Teams[t.Name] = &v1.TeamRecord{
			Team:     convert.TeamToCore(t),
			LapTotal: t.Laps,
		}
	}

	// soft-deleted checkpoints are included so crossings keep their reference
	var checkpoints []model.CheckpointRecord
	if err := db.Unscoped().Where("session_id = ?", sessionID).Find(&checkpoints).Error; err != nil {
		return fmt.Errorf("error getting checkpoints: %w", err)
	}
	for _, cp := range checkpoints {
		data.Checkpoints[cp.ObjectID] = &v1.CheckpointRecord{
			Checkpoint: convert.CheckpointToCore(cp),
			Deleted:    cp.DeletedAt.Valid,
		}
	}

	var positions []model.PositionRecord
	if err := db.Where("session_id = ?", sessionID).
		Order("capture_frame ASC").
		Find(&positions).Error; err != nil {
		return fmt.Errorf("error getting position records: %w", err)
	}
	for _, r := range positions {
		record, ok := data.Entities[r.EntityObjectID]
		if !ok {
			continue
		}
		record.Samples = append(record.Samples, convert.PositionRecordToCore(r))
	}

	var crossings []model.CrossingRecord
	if err := db.Where("session_id = ?", sessionID).
		Order("capture_frame ASC").
		Find(&crossings).Error; err != nil {
		return fmt.Errorf("error getting crossings: %w", err)
	}
	for _, c := range crossings {
		record, ok := data.Entities[c.EntityObjectID]
		if !ok {
			continue
		}
		record.Crossings = append(record.Crossings, convert.CrossingToCore(c))
	}

	var laps []model.LapRecord
	if err := db.Where("session_id = ?", sessionID).
		Order("capture_frame ASC").
		Find(&laps).Error; err != nil {
		return fmt.Errorf("error getting laps: %w", err)
	}
	for _, l := range laps {
		record, ok := data.Entities[l.EntityObjectID]
		if !ok {
			continue
		}
		record.Laps = append(record.Laps, convert.LapToCore(l))
	}

	var events []model.GeneralEventRecord
	if err := db.Where("session_id = ?", sessionID).
		Order("capture_frame ASC").
		Find(&events).Error; err != nil {
		return fmt.Errorf("error getting general events: %w", err)
	}
	for _, e := range events {
		data.GeneralEvents = append(data.GeneralEvents, convert.GeneralEventToCore(e))
	}

	var timeStates []model.TimeStateRecord
	if err := db.Where("session_id = ?", sessionID).
		Order("capture_frame ASC").
		Find(&timeStates).Error; err != nil {
		return fmt.Errorf("error getting time states: %w", err)
	}
	for _, ts := range timeStates {
		data.TimeStates = append(data.TimeStates, convert.TimeStateToCore(ts))
	}

	var outlines []model.TrackOutlineRecord
	if err := db.Where("session_id = ?", sessionID).Find(&outlines).Error; err != nil {
		return fmt.Errorf("error getting track outlines: %w", err)
	}
	for _, o := range outlines {
		data.TrackOutlines = append(data.TrackOutlines, convert.TrackOutlineToCore(o))
	}

	Logger.Info("Got session data", "sessionID", sessionID, "duration", time.Since(txStart))

	export := v1.Build(data)
	exportJSON, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("error marshalling session data: %w", err)
	}

	fileName := fmt.Sprintf("%s_%s.json.gz", sess.SessionName, sess.StartTime.Format("20060102_150405"))
	fileName = strings.ReplaceAll(fileName, " ", "_")
	fileName = strings.ReplaceAll(fileName, ":", "_")
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("error creating file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()
	if _, err = gzWriter.Write(exportJSON); err != nil {
		return fmt.Errorf("error writing to gzip: %w", err)
	}

	Logger.Info("Wrote recording", "file", fileName, "sessionID", sessionID)
	return nil
}
