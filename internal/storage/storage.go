package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

// MemoryDatabase keeps the journal for the lifetime of the process only
const MemoryDatabase = ":memory:"

func WithStartTime(startTime time.Time) func(*query) {
	return func(q *query) {
		q.startTime = &startTime
	}
}

func WithEndTime(endTime time.Time) func(*query) {
	return func(q *query) {
		q.endTime = &endTime
	}
}

func WithTimeRange(startTime, endTime time.Time) func(*query) {
	return func(q *query) {
		q.startTime = &startTime
		q.endTime = &endTime
	}
}

func WithFrequencyRange(minFreq, maxFreq float64) func(*query) {
	return func(q *query) {
		q.minFreq = &minFreq
		q.maxFreq = &maxFreq
	}
}

func WithLimit(limit int) func(*query) {
	return func(q *query) {
		q.limit = limit
	}
}

// QueryOption narrows a detections query
type QueryOption = func(*query)

type query struct {
	startTime *time.Time
	endTime   *time.Time
	minFreq   *float64
	maxFreq   *float64
	limit     int
}

// Store journals the sessions, detections and captures of monitor runs in
// SQLite. Writes go through a single connection; reads of a file database use
// a separate read-only connection.
type Store struct {
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

// New creates a Store backed by the database at dbPath. The database is
// opened lazily; an empty path or MemoryDatabase keeps it in memory.
func New(dbPath string) *Store {
	if dbPath == "" {
		dbPath = MemoryDatabase
	}
	return &Store{dbPath: dbPath}
}

func (s *Store) inMemory() bool {
	return s.dbPath == MemoryDatabase || strings.Contains(s.dbPath, "mode=memory")
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *Store) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		dsn := fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL")
		if s.inMemory() {
			dsn = s.dbPath
		}

		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// Every connection to an in-memory database is a database of its own
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *Store) getReadDB() (*sql.DB, error) {
	if s.inMemory() {
		return s.getWriteDB()
	}

	s.readDBOnce.Do(func() {
		// The schema must exist before a read-only connection can see it
		if _, err := s.getWriteDB(); err != nil {
			s.readDBErr = err
			return
		}

		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// CreateSession starts a journal session and returns its run id. config is
// stored as JSON unless it is already a string or bytes.
func (s *Store) CreateSession(ctx context.Context, deviceType, deviceID string, config any) (sessionID string, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
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

	id := uuid.NewString()
	if _, err = stmt.ExecContext(ctx, id, time.Now().UTC(), deviceType, deviceID, configData); err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	return id, nil
}

func (s *Store) Session(ctx context.Context, id string) (session *RunSession, err error) {
	db, err := s.getReadDB()
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

	var sess RunSession
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.StartTime, &sess.DeviceType, &sess.DeviceID, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

func (s *Store) Sessions(ctx context.Context) (sessions []*RunSession, err error) {
	db, err := s.getReadDB()
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
		var sess RunSession
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.DeviceType, &sess.DeviceID, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	err = rows.Err()
	return
}

// StoreDetection journals a detection event and returns its row id
func (s *Store) StoreDetection(ctx context.Context, sessionID string, ev detect.Event) (detectionID int64, err error) {
	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertDetectionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	data := toDetectionData(sessionID, ev)

	result, err := stmt.ExecContext(
		ctx,
		data.SessionID,
		data.Timestamp,
		data.Frequency,
		data.Power,
		data.PowerDBFS,
		data.EstimatedPowerDBm,
		data.Strength,
	)
	if err != nil {
		err = fmt.Errorf("inserting detection: %w", err)
		return
	}

	detectionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting detection ID: %w", err)
	}
	return
}

// StoreCapture journals a finished capture session together with the error
// that ended it early, if any.
func (s *Store) StoreCapture(ctx context.Context, sessionID string, session *capture.Session, captureErr error) (captureID int64, err error) {
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

	data := toCaptureData(sessionID, session, captureErr)

	result, err := tx.ExecContext(
		ctx,
		insertCaptureSQL,
		data.SessionID,
		data.Path,
		data.Frequency,
		data.SampleRate,
		data.Started,
		data.Finished,
		data.Target,
		data.Written,
		data.Error,
	)
	if err != nil {
		err = fmt.Errorf("inserting capture: %w", err)
		return
	}

	if captureID, err = result.LastInsertId(); err != nil {
		err = fmt.Errorf("getting capture ID: %w", err)
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
	}
	return
}

// Detections returns the detections of a session in time order, narrowed by
// the time range, frequency range and limit options.
func (s *Store) Detections(ctx context.Context, sessionID string, opts ...func(*query)) (detections []Detection, err error) {
	var q query
	for _, opt := range opts {
		opt(&q)
	}
	startTime, endTime, minFreq, maxFreq, limit := queryBounds(&q)

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectDetectionsSQL, sessionID, startTime, endTime, minFreq, maxFreq, limit)
	if err != nil {
		err = fmt.Errorf("querying detections: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d detectionData
		if err = rows.Scan(&d.ID, &d.SessionID, &d.Timestamp, &d.Frequency, &d.Power, &d.PowerDBFS, &d.EstimatedPowerDBm, &d.Strength); err != nil {
			err = fmt.Errorf("scanning detection: %w", err)
			return
		}
		detections = append(detections, d.toDetection())
	}
	err = rows.Err()
	return
}

// Captures returns the captures of a session in start order
func (s *Store) Captures(ctx context.Context, sessionID string) (captures []Capture, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCapturesSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying captures: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d captureData
		if err = rows.Scan(&d.ID, &d.SessionID, &d.Path, &d.Frequency, &d.SampleRate, &d.Started, &d.Finished, &d.Target, &d.Written, &d.Error); err != nil {
			err = fmt.Errorf("scanning capture: %w", err)
			return
		}
		captures = append(captures, d.toCapture())
	}
	err = rows.Err()
	return
}

// Close builds the query indexes and closes the database connections
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
