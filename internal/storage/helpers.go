package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roman-kulish/flight-geotag/internal/fusion"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back a transaction that was not committed
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toConfigData(config any) (configData sql.NullString, err error) {
	if config == nil {
		return
	}

	switch c := config.(type) {
	case string:
		configData.Valid = true
		configData.String = c

	case []byte:
		configData.Valid = true
		configData.String = string(c)

	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}

		configData.Valid = true
		configData.String = string(p)
	}
	return
}

func toMetadata(m map[string]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	p, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling metadata: %w", err)
	}
	return sql.NullString{String: string(p), Valid: true}, nil
}

func fromMetadata(s sql.NullString) (map[string]string, error) {
	if !s.Valid {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return m, nil
}

func toFusedRecordData(runID int64, seq int, r fusion.Record) (*fusedRecordData, error) {
	metadata, err := toMetadata(r.Metadata)
	if err != nil {
		return nil, err
	}

	return &fusedRecordData{
		RunID:          runID,
		Seq:            seq,
		ImageName:      r.Name,
		Timestamp:      r.Timestamp,
		Metadata:       metadata,
		GroundAltitude: toSQLNullFloat(r.Value(fusion.FieldGroundAltitude)),
		Roll:           toSQLNullFloat(r.Value(fusion.FieldRoll)),
		Lat:            toSQLNullFloat(r.Value(fusion.FieldLat)),
		Lon:            toSQLNullFloat(r.Value(fusion.FieldLon)),
	}, nil
}

func toSQLNullFloat(v float64, ok bool) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: ok}
}

func setField(fields map[string]float64, name string, v sql.NullFloat64) {
	if v.Valid {
		fields[name] = v.Float64
	}
}
