package storage

import (
	"database/sql"
	"time"
)

type imageData struct {
	Name      string
	Timestamp int64
	TimeUnit  string
	Metadata  sql.NullString
}

type runData struct {
	ID         int64
	StartTime  time.Time
	Config     sql.NullString
	Direction  string
	Class      string
	Offset     int64
	RawOffset  int64
	LogBias    int64
	Trigger    int64
	ImageStart int64
	TimeUnit   string
	Manual     bool
	Delta      int64
	NumRecords int
}

type fusedRecordData struct {
	RunID          int64
	Seq            int
	ImageName      string
	Timestamp      int64
	Metadata       sql.NullString
	GroundAltitude sql.NullFloat64
	Roll           sql.NullFloat64
	Lat            sql.NullFloat64
	Lon            sql.NullFloat64
}
