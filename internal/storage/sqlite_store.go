package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/flight-geotag/internal/align"
	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/fusion"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

var _ Store = (*SqliteStore)(nil)

var directions = map[string]align.Direction{
	align.ShiftImages.String(): align.ShiftImages,
	align.ShiftLogs.String():   align.ShiftLogs,
	align.Failed.String():      align.Failed,
}

var classes = map[string]align.MagnitudeClass{
	align.Negligible.String():  align.Negligible,
	align.Implausible.String(): align.Implausible,
	align.Invalid.String():     align.Invalid,
}

// SqliteStore handles session database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a new session store backed by the Sqlite database at dbPath.
// Connections are opened lazily.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) StoreImages(ctx context.Context, images *capture.Timeline) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	if _, err = tx.ExecContext(ctx, deleteImagesSQL); err != nil {
		return fmt.Errorf("deleting images: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertImageSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for _, img := range images.Records {
		metadata, err := toMetadata(img.Metadata)
		if err != nil {
			return fmt.Errorf("image %s: %w", img.Name, err)
		}
		if _, err = stmt.ExecContext(ctx, img.Name, img.Timestamp, images.Unit.String(), metadata); err != nil {
			return fmt.Errorf("inserting image %s: %w", img.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SqliteStore) Images(ctx context.Context) (images *capture.Timeline, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectImagesSQL)
	if err != nil {
		err = fmt.Errorf("querying images: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	images = capture.NewTimeline(0, nil)
	for rows.Next() {
		var img imageData
		if err = rows.Scan(&img.Name, &img.Timestamp, &img.TimeUnit, &img.Metadata); err != nil {
			err = fmt.Errorf("scanning image: %w", err)
			return
		}

		var unit telemetry.Unit
		if unit, err = telemetry.ParseUnit(img.TimeUnit); err != nil {
			err = fmt.Errorf("image %s: %w", img.Name, err)
			return
		}
		if images.Unit == 0 {
			images.Unit = unit
		}
		if err = telemetry.CheckUnits(images.Unit, unit, fmt.Sprintf("image %s", img.Name)); err != nil {
			return
		}

		var metadata map[string]string
		if metadata, err = fromMetadata(img.Metadata); err != nil {
			err = fmt.Errorf("image %s: %w", img.Name, err)
			return
		}

		images.Records = append(images.Records, capture.ImageRecord{
			Name:      img.Name,
			Timestamp: img.Timestamp,
			Metadata:  metadata,
		})
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating images: %w", err)
	}
	return
}

func (s *SqliteStore) StoreRun(ctx context.Context, config any, alignment align.Result, records []fusion.Record) (runID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertRunSQL,
		configData,
		alignment.Direction.String(),
		alignment.Class.String(),
		alignment.Offset,
		alignment.RawOffset,
		alignment.LogBias,
		alignment.Trigger,
		alignment.ImageStart,
		alignment.Unit.String(),
		alignment.Manual,
		alignment.Delta(),
	)
	if err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	if runID, err = result.LastInsertId(); err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
		return
	}

	stmt, err := tx.PrepareContext(ctx, insertFusedRecordSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	for i, r := range records {
		var data *fusedRecordData
		if data, err = toFusedRecordData(runID, i, r); err != nil {
			err = fmt.Errorf("record %s: %w", r.Name, err)
			return
		}

		_, err = stmt.ExecContext(ctx,
			data.RunID,
			data.Seq,
			data.ImageName,
			data.Timestamp,
			data.Metadata,
			data.GroundAltitude,
			data.Roll,
			data.Lat,
			data.Lon,
		)
		if err != nil {
			err = fmt.Errorf("inserting fused record %s: %w", r.Name, err)
			return
		}
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

func scanRun(scan func(...any) error) (*RunInfo, error) {
	var data runData
	err := scan(
		&data.ID,
		&data.StartTime,
		&data.Config,
		&data.Direction,
		&data.Class,
		&data.Offset,
		&data.RawOffset,
		&data.LogBias,
		&data.Trigger,
		&data.ImageStart,
		&data.TimeUnit,
		&data.Manual,
		&data.Delta,
		&data.NumRecords,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	unit, err := telemetry.ParseUnit(data.TimeUnit)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", data.ID, err)
	}

	run := RunInfo{
		ID:        data.ID,
		StartTime: data.StartTime,
		Alignment: align.Result{
			Offset:     data.Offset,
			Direction:  directions[data.Direction],
			Class:      classes[data.Class],
			RawOffset:  data.RawOffset,
			LogBias:    data.LogBias,
			Trigger:    data.Trigger,
			ImageStart: data.ImageStart,
			Unit:       unit,
			Manual:     data.Manual,
		},
		Delta:      data.Delta,
		NumRecords: data.NumRecords,
	}
	if data.Config.Valid {
		run.Config = &data.Config.String
	}
	return &run, nil
}

func (s *SqliteStore) Run(ctx context.Context, id int64) (run *RunInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	return scanRun(stmt.QueryRowContext(ctx, id).Scan)
}

func (s *SqliteStore) Runs(ctx context.Context) (runs []*RunInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRunsSQL)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var run *RunInfo
		if run, err = scanRun(rows.Scan); err != nil {
			return
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating runs: %w", err)
	}
	return
}

// ReaderOption configures which fused records are read
type ReaderOption func(*recordFilter)

type recordFilter struct {
	startTime *int64
	endTime   *int64
}

// WithStartTime excludes records captured before ts
func WithStartTime(ts int64) ReaderOption {
	return func(f *recordFilter) {
		f.startTime = &ts
	}
}

// WithEndTime excludes records captured after ts
func WithEndTime(ts int64) ReaderOption {
	return func(f *recordFilter) {
		f.endTime = &ts
	}
}

// WithTimeRange sets both start and end time filters
func WithTimeRange(startTime, endTime int64) ReaderOption {
	return func(f *recordFilter) {
		f.startTime = &startTime
		f.endTime = &endTime
	}
}

func (s *SqliteStore) FusedRecords(ctx context.Context, runID int64, opts ...ReaderOption) (records []fusion.Record, err error) {
	var filter recordFilter
	for _, opt := range opts {
		opt(&filter)
	}

	startTime, endTime := int64(math.MinInt64), int64(math.MaxInt64)
	if filter.startTime != nil {
		startTime = *filter.startTime
	}
	if filter.endTime != nil {
		endTime = *filter.endTime
	}
	if startTime > endTime {
		err = fmt.Errorf("start time %d is after end time %d", startTime, endTime)
		return
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectFusedRecordsSQL, runID, startTime, endTime)
	if err != nil {
		err = fmt.Errorf("querying fused records: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data fusedRecordData
		err = rows.Scan(
			&data.ImageName,
			&data.Timestamp,
			&data.Metadata,
			&data.GroundAltitude,
			&data.Roll,
			&data.Lat,
			&data.Lon,
		)
		if err != nil {
			err = fmt.Errorf("scanning fused record: %w", err)
			return
		}

		r := fusion.Record{
			ImageRecord: capture.ImageRecord{Name: data.ImageName, Timestamp: data.Timestamp},
			Fields:      make(map[string]float64),
		}
		if r.Metadata, err = fromMetadata(data.Metadata); err != nil {
			err = fmt.Errorf("record %s: %w", data.ImageName, err)
			return
		}
		setField(r.Fields, fusion.FieldGroundAltitude, data.GroundAltitude)
		setField(r.Fields, fusion.FieldRoll, data.Roll)
		setField(r.Fields, fusion.FieldLat, data.Lat)
		setField(r.Fields, fusion.FieldLon, data.Lon)

		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating fused records: %w", err)
	}
	return
}

// FusedRange returns the first and last capture time of the records of a run
func (s *SqliteStore) FusedRange(ctx context.Context, runID int64) (first, last int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var lo, hi sql.NullInt64
	if err = db.QueryRowContext(ctx, selectFusedRangeSQL, runID).Scan(&lo, &hi); err != nil {
		err = fmt.Errorf("querying fused range: %w", err)
		return
	}
	if !lo.Valid || !hi.Valid {
		err = fmt.Errorf("run %d: %w", runID, ErrNoData)
		return
	}
	return lo.Int64, hi.Int64, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
