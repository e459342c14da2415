package storage

import (
	_ "embed"
)

const (
	insertImageSQL = `
INSERT INTO images (name,
                    timestamp,
                    time_unit,
                    metadata)
VALUES (?, ?, ?, ?)`

	selectImagesSQL = `
SELECT 
    name, 
    timestamp, 
    time_unit, 
    metadata 
FROM images 
ORDER BY id`

	deleteImagesSQL = `DELETE FROM images`

	insertRunSQL = `
INSERT INTO runs (start_time,
                  config,
                  direction,
                  class,
                  time_offset,
                  raw_offset,
                  log_bias,
                  trigger_ts,
                  image_start,
                  time_unit,
                  manual,
                  delta)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunColumns = `
SELECT 
    id, 
    start_time, 
    config, 
    direction, 
    class, 
    time_offset, 
    raw_offset, 
    log_bias, 
    trigger_ts, 
    image_start, 
    time_unit, 
    manual, 
    delta,
    (SELECT COUNT(*) FROM fused_records f WHERE f.run_id = runs.id)
FROM runs`

	selectRunSQL = selectRunColumns + `
WHERE 
    id = ?`

	selectRunsSQL = selectRunColumns + `
ORDER BY id`

	insertFusedRecordSQL = `
INSERT INTO fused_records (run_id,
                           seq,
                           image_name,
                           timestamp,
                           metadata,
                           ground_altitude,
                           roll,
                           lat,
                           lon)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectFusedRecordsSQL = `
SELECT 
    image_name, 
    timestamp, 
    metadata, 
    ground_altitude, 
    roll, 
    lat, 
    lon
FROM fused_records
WHERE 
    run_id = ?
    AND timestamp BETWEEN ? AND ?
ORDER BY seq`

	selectFusedRangeSQL = `
SELECT 
    MIN(timestamp), 
    MAX(timestamp) 
FROM fused_records 
WHERE 
    run_id = ?`

	insertLogInfoSQL = `
INSERT INTO log_info (name, 
                      time_unit) 
VALUES (?, ?)`

	selectLogInfoSQL = `
SELECT 
    name, 
    time_unit 
FROM log_info 
LIMIT 1`

	insertLogSampleSQL = `
INSERT INTO samples (channel, 
                     timestamp) 
VALUES (?, ?)`

	insertLogFieldSQL = `
INSERT INTO sample_fields (sample_id, 
                           name, 
                           value) 
VALUES (?, ?, ?)`

	selectLogSamplesSQL = `
SELECT 
    s.id, 
    s.channel, 
    s.timestamp, 
    f.name, 
    f.value
FROM samples s
         LEFT JOIN sample_fields f ON f.sample_id = s.id
ORDER BY s.id`
)

//go:embed schema.sql
var initSchemaSQL string

//go:embed indexes.sql
var initIndexesSQL string

//go:embed log_schema.sql
var initLogSchemaSQL string
