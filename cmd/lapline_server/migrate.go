package main

import (
	"fmt"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lapline/lapline/internal/database"
	"github.com/lapline/lapline/internal/model"
)

// migrateBackupsSqlite loads every SQLite dump in the base directory into
// Postgres, renaming each file once its rows are over.
func migrateBackupsSqlite() error {
	sqlitePaths, err := database.GetBackupDBPaths(ConfigDir)
	if err != nil {
		return fmt.Errorf("error getting backup database paths: %w", err)
	}
	if len(sqlitePaths) == 0 {
		Logger.Info("No SQLite backups to migrate", "dir", ConfigDir)
		return nil
	}

	postgresDB, err := database.GetPostgresDBStandalone()
	if err != nil {
		return fmt.Errorf("error getting postgres database: %w", err)
	}

	successfulMigrations := make([]string, 0)

	for _, sqlitePath := range sqlitePaths {
		sqliteDB, err := database.GetSqliteDBStandalone(sqlitePath)
		if err != nil {
			return fmt.Errorf("error getting sqlite database: %w", err)
		}

		// transaction for Postgres so we can rollback if errors
		tx := postgresDB.Begin()

		err = migrateTable(sqliteDB, tx, model.InstanceInfo{}, "instance_infos")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating instance_infos: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.Venue{}, "venues")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating venues: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.Session{}, "sessions")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating sessions: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.Entity{}, "entities")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating entities: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.TeamRecord{}, "teams")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating teams: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.CheckpointRecord{}, "checkpoints")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating checkpoints: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.PositionRecord{}, "position_records")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating position_records: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.CrossingRecord{}, "crossings")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating crossings: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.LapRecord{}, "laps")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating laps: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.GeneralEventRecord{}, "general_events")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating general_events: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.FeedStatusRecord{}, "feed_statuses")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating feed_statuses: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.TimeStateRecord{}, "time_states")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating time_states: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.TrackOutlineRecord{}, "track_outlines")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating track_outlines: %w", err)
		}
		err = migrateTable(sqliteDB, tx, model.SessionPerformance{}, "session_performances")
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error migrating session_performances: %w", err)
		}

		// With no issues, we commit the transaction
		tx.Commit()

		// remove connections to this backup before renaming it
		sqlConnection, err := sqliteDB.DB()
		if err != nil {
			Logger.Error("Error getting sqlite connection", "error", err)
			continue
		}
		if err := sqlConnection.Close(); err != nil {
			Logger.Error("Error closing sqlite connection", "error", err)
		}
		if err := os.Rename(sqlitePath, sqlitePath+".migrated"); err != nil {
			Logger.Error("Error renaming sqlite file", "error", err)
		}
		successfulMigrations = append(successfulMigrations, sqlitePath)
	}

	Logger.Info("Successfully migrated backups, it's recommended to delete these to avoid future data duplication",
		"count", len(successfulMigrations),
		"paths", successfulMigrations)

	return nil
}

// migrateTable copies all rows of one table from a SQLite dump into Postgres.
// Primary keys are preserved so foreign key chains survive the move; rows
// already present are skipped, which makes reruns after a partial failure
// idempotent.
func migrateTable[M any](
	sqliteDB *gorm.DB,
	postgresDB *gorm.DB,
	mdl M,
	tableName string,
) error {
	rows := []map[string]any{}
	if err := sqliteDB.Model(&mdl).Find(&rows).Error; err != nil {
		return fmt.Errorf("error reading %s: %w", tableName, err)
	}
	Logger.Info("Found records", "count", len(rows), "table", tableName)

	if len(rows) == 0 {
		return nil
	}

	err := postgresDB.Table(tableName).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 1000).Error
	if err != nil {
		return fmt.Errorf("error inserting into %s: %w", tableName, err)
	}

	Logger.Info("Inserted records", "count", len(rows), "table", tableName)
	return nil
}
