package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

// LogFile reads a flight log decoded into a Sqlite file. It implements pipeline.LogSource.
type LogFile struct {
	path string
}

// NewLogFile returns a reader for the decoded log at path. The file is opened on Decode.
func NewLogFile(path string) *LogFile {
	return &LogFile{path: path}
}

// Name returns the file name without extension
func (f *LogFile) Name() string {
	return strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
}

func (f *LogFile) Decode(ctx context.Context) (l *telemetry.Log, err error) {
	if _, err = os.Stat(f.path); err != nil {
		err = fmt.Errorf("opening log file: %w", err)
		return
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", f.path, "mode=ro"))
	if err != nil {
		err = fmt.Errorf("opening log file: %w", err)
		return
	}
	defer closeWithError(db, &err)

	var name, unitName string
	if err = db.QueryRowContext(ctx, selectLogInfoSQL).Scan(&name, &unitName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNoData
		}
		err = fmt.Errorf("reading log info: %w", err)
		return
	}

	unit, err := telemetry.ParseUnit(unitName)
	if err != nil {
		err = fmt.Errorf("log %s: %w", name, err)
		return
	}

	rows, err := db.QueryContext(ctx, selectLogSamplesSQL)
	if err != nil {
		err = fmt.Errorf("querying samples: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	l = &telemetry.Log{
		Name:     name,
		Unit:     unit,
		Channels: make(map[telemetry.ChannelKind][]telemetry.Sample),
	}

	var (
		lastID  int64 = -1
		current *telemetry.Sample
		kind    telemetry.ChannelKind
	)
	flush := func() {
		if current != nil {
			l.Channels[kind] = append(l.Channels[kind], *current)
		}
	}

	for rows.Next() {
		var (
			id        int64
			channel   string
			timestamp int64
			field     sql.NullString
			value     sql.NullFloat64
		)
		if err = rows.Scan(&id, &channel, &timestamp, &field, &value); err != nil {
			err = fmt.Errorf("scanning sample: %w", err)
			return
		}

		if id != lastID {
			flush()
			lastID = id
			kind = telemetry.ChannelKind(channel)
			current = &telemetry.Sample{Timestamp: timestamp, Fields: make(map[string]float64)}
		}
		if field.Valid && value.Valid {
			current.Fields[field.String] = value.Float64
		}
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating samples: %w", err)
		return
	}
	flush()

	return
}

// WriteLog stores a decoded log into a new Sqlite file at path. It fails when the file exists.
func WriteLog(ctx context.Context, path string, l *telemetry.Log) (err error) {
	if _, err = os.Stat(path); err == nil {
		return fmt.Errorf("log file %s: %w", path, os.ErrExist)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, "_synchronous=NORMAL"))
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closeWithError(db, &err)

	if err = runSQLCommand(db, initLogSchemaSQL); err != nil {
		return fmt.Errorf("initializing log schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, insertLogInfoSQL, l.Name, l.Unit.String()); err != nil {
		return fmt.Errorf("inserting log info: %w", err)
	}

	sampleStmt, err := tx.PrepareContext(ctx, insertLogSampleSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(sampleStmt, &err)

	fieldStmt, err := tx.PrepareContext(ctx, insertLogFieldSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(fieldStmt, &err)

	for kind, samples := range l.Channels {
		for _, s := range samples {
			result, err := sampleStmt.ExecContext(ctx, string(kind), s.Timestamp)
			if err != nil {
				return fmt.Errorf("inserting %s sample: %w", kind, err)
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting sample ID: %w", err)
			}
			for name, value := range s.Fields {
				if _, err = fieldStmt.ExecContext(ctx, id, name, value); err != nil {
					return fmt.Errorf("inserting %s field %s: %w", kind, name, err)
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
