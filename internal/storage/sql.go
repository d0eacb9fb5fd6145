package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      id,
                      start_time,
                      device_type,
                      device_id,
                      config)
VALUES (?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    device_type,
    device_id,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    device_type,
    device_id,
    config
FROM sessions
ORDER BY start_time`

	insertDetectionSQL = `
INSERT INTO detections (session_id,
                        timestamp,
                        frequency,
                        power,
                        power_dbfs,
                        estimated_power_dbm,
                        strength)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectDetectionsSQL = `
SELECT
    id,
    session_id,
    timestamp,
    frequency,
    power,
    power_dbfs,
    estimated_power_dbm,
    strength
FROM detections
WHERE
    session_id = ?
    AND timestamp BETWEEN ? AND ?
    AND frequency BETWEEN ? AND ?
ORDER BY timestamp, id
LIMIT ?`

	insertCaptureSQL = `
INSERT INTO captures (session_id,
                      path,
                      frequency,
                      sample_rate,
                      started,
                      finished,
                      target,
                      written,
                      error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectCapturesSQL = `
SELECT
    id,
    session_id,
    path,
    frequency,
    sample_rate,
    started,
    finished,
    target,
    written,
    error
FROM captures
WHERE
    session_id = ?
ORDER BY started, id`
)

var (
	//go:embed schema.sql
	initSchemaSQL string

	//go:embed indexes.sql
	initIndexesSQL string
)
