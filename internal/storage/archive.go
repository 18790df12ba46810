package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Archive persists recording sessions, validated samples and trajectory
// deviations in a Sqlite database. Write and read connections are opened
// lazily on first use, so creating an Archive never touches the disk.
type Archive struct {
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

// NewArchive creates an Archive backed by the Sqlite database at dbPath.
// The schema is initialized on the first write.
func NewArchive(dbPath string) *Archive {
	return &Archive{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (a *Archive) getWriteDB() (*sql.DB, error) {
	a.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", a.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			a.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			a.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		a.writeDB = db
	})

	return a.writeDB, a.writeDBErr
}

func (a *Archive) getReadDB() (*sql.DB, error) {
	a.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", a.dbPath, "mode=ro"))
		if err != nil {
			a.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		a.readDB = db
	})

	return a.readDB, a.readDBErr
}

// CreateSession registers a new recording session and returns its ID.
// transport identifies the frame source, config is stored alongside for
// later inspection and may be a string, raw bytes or any JSON-marshalable
// value.
func (a *Archive) CreateSession(ctx context.Context, transport string, config any) (sessionID int64, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := a.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, uuid.NewString(), transport, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

// Session returns metadata for a single recording session.
func (a *Archive) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := a.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.Transport, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

// Sessions lists all recording sessions in the archive.
func (a *Archive) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := a.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.Transport, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// StoreBatch writes a batch of entries for the given session in a single
// transaction. Samples are inserted first; entries carrying a deviation
// get a linked deviation row referencing the inserted sample.
func (a *Archive) StoreBatch(ctx context.Context, sessionID int64, entries []Entry) (err error) {
	if len(entries) == 0 {
		return
	}

	db, err := a.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]any, 0, len(entries)*11)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertSampleSQL)

	for i, e := range entries {
		s := e.Sample
		values = append(values,
			sessionID,
			s.ReceivedAt.UTC(),
			s.Roll,
			s.Pitch,
			s.Yaw,
			s.Latitude,
			s.Longitude,
			s.Altitude,
			s.Velocity,
			s.Temperature,
			s.Pressure,
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	result, err := tx.ExecContext(ctx, sb.String(), values...)
	if err != nil {
		return fmt.Errorf("batch inserting samples: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last sample ID: %w", err)
	}

	// Sqlite assigns contiguous rowids within a single multi-row insert,
	// so sample IDs can be recovered from the last one.
	firstID := lastID - int64(len(entries)) + 1

	devValues := make([]any, 0)
	var devSB strings.Builder

	for i, e := range entries {
		if e.Deviation == nil || e.Deviation.Unavailable {
			continue
		}

		d := e.Deviation
		devValues = append(devValues,
			sessionID,
			firstID+int64(i),
			d.SampleTime.UTC(),
			d.HorizontalMeters,
			d.AltitudeDeltaMeters,
			d.WaypointIndex,
		)

		if devSB.Len() > 0 {
			devSB.WriteString(", ")
		}
		devSB.WriteString("(?, ?, ?, ?, ?, ?)")
	}

	if len(devValues) > 0 {
		if _, err = tx.ExecContext(ctx, insertDeviationSQL+devSB.String(), devValues...); err != nil {
			return fmt.Errorf("batch inserting deviations: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Close flushes any pending work, applies indexes and closes both
// database connections. It is safe to call multiple times.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() {
		var writeErr, readErr error

		if a.writeDB != nil {
			_ = runSQLCommand(a.writeDB, initIndexesSQL)

			writeErr = a.writeDB.Close()
			a.writeDB = nil
		}

		if a.readDB != nil {
			readErr = a.readDB.Close()
			a.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			a.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			a.closeErr = writeErr
		case readErr != nil:
			a.closeErr = readErr
		}
	})

	return a.closeErr
}
