package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ErrNoData indicates that no deviation data exists for the given
// session and filters.
var ErrNoData = fmt.Errorf("no data available")

// ReaderOption configures a deviation query with filtering criteria.
type ReaderOption func(*deviationQuery)

// WithStartTime excludes deviations recorded before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(q *deviationQuery) {
		q.startTime = &t
	}
}

// WithEndTime excludes deviations recorded after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(q *deviationQuery) {
		q.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(q *deviationQuery) {
		q.startTime = &startTime
		q.endTime = &endTime
	}
}

type deviationQuery struct {
	startTime *time.Time
	endTime   *time.Time
}

// storedTimeLayouts are the timestamp forms go-sqlite3 writes for
// time.Time parameters.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ReadDeviations returns the deviation series recorded for a session,
// ordered by sample time. Filters default to the full recorded range.
func (a *Archive) ReadDeviations(ctx context.Context, sessionID int64, opts ...ReaderOption) (points []DeviationPoint, err error) {
	db, err := a.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	var q deviationQuery
	for _, opt := range opts {
		opt(&q)
	}

	if q.startTime != nil && q.endTime != nil && q.startTime.After(*q.endTime) {
		return nil, fmt.Errorf("start time %s is after end time %s", q.startTime, q.endTime)
	}

	if q.startTime == nil || q.endTime == nil {
		// MIN/MAX strip the column's declared type, so the driver hands the
		// bounds back as strings.
		var minRaw, maxRaw sql.NullString
		if err = db.QueryRowContext(ctx, selectDeviationBoundsSQL, sessionID).Scan(&minRaw, &maxRaw); err != nil {
			return nil, fmt.Errorf("scanning time bounds: %w", err)
		}
		if !minRaw.Valid || !maxRaw.Valid {
			return nil, ErrNoData
		}
		if q.startTime == nil {
			minTime, err := parseStoredTime(minRaw.String)
			if err != nil {
				return nil, fmt.Errorf("parsing min sample time: %w", err)
			}
			q.startTime = &minTime
		}
		if q.endTime == nil {
			maxTime, err := parseStoredTime(maxRaw.String)
			if err != nil {
				return nil, fmt.Errorf("parsing max sample time: %w", err)
			}
			q.endTime = &maxTime
		}
	}

	stmt, err := db.PrepareContext(ctx, selectDeviationsSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	rows, err := stmt.QueryContext(ctx, sessionID, q.startTime, q.endTime)
	if err != nil {
		return nil, fmt.Errorf("querying deviations: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var p DeviationPoint
		if err = rows.Scan(&p.SampleTime, &p.HorizontalMeters, &p.AltitudeDelta, &p.WaypointIndex); err != nil {
			return nil, fmt.Errorf("scanning deviation: %w", err)
		}
		points = append(points, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deviations: %w", err)
	}
	if len(points) == 0 {
		return nil, ErrNoData
	}
	return points, nil
}
