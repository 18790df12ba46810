package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      uuid,
                      start_time,
                      transport,
                      config)
VALUES (?, CURRENT_TIMESTAMP, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    uuid,
    start_time,
    transport,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    uuid,
    start_time,
    transport,
    config
FROM sessions
ORDER BY id`

	insertSampleSQL = `
INSERT INTO samples (session_id,
                     received_at,
                     roll,
                     pitch,
                     yaw,
                     latitude,
                     longitude,
                     altitude,
                     velocity,
                     temperature,
                     pressure)
VALUES `

	insertDeviationSQL = `
INSERT INTO deviations (session_id,
                        sample_id,
                        sample_time,
                        horizontal_m,
                        altitude_delta_m,
                        waypoint_index)
VALUES `

	selectDeviationsSQL = `
SELECT
    sample_time,
    horizontal_m,
    altitude_delta_m,
    waypoint_index
FROM deviations
WHERE
    session_id = ?
    AND sample_time >= ?
    AND sample_time <= ?
ORDER BY sample_time, id`

	selectDeviationBoundsSQL = `
SELECT
    MIN(sample_time),
    MAX(sample_time)
FROM deviations
WHERE
    session_id = ?`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_samples_session_time ON samples (session_id, received_at);
CREATE INDEX IF NOT EXISTS idx_deviations_session_time ON deviations (session_id, sample_time);`
)

//go:embed schema.sql
var initSchemaSQL string
