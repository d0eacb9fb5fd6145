package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

// toConfigData converts the session config into a nullable JSON column
func toConfigData(config any) (sql.NullString, error) {
	var configData sql.NullString

	switch c := config.(type) {
	case nil:
	case string:
		configData.Valid = true
		configData.String = c

	case []byte:
		configData.Valid = true
		configData.String = string(c)

	default:
		p, err := json.Marshal(config)
		if err != nil {
			return configData, fmt.Errorf("marshaling config: %w", err)
		}

		configData.Valid = true
		configData.String = string(p)
	}

	return configData, nil
}

func toErrorData(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}

func toDetectionData(sessionID string, ev detect.Event) *detectionData {
	return &detectionData{
		SessionID:         sessionID,
		Timestamp:         ev.Timestamp.UTC(),
		Frequency:         ev.Frequency,
		Power:             ev.Power,
		PowerDBFS:         ev.PowerDBFS,
		EstimatedPowerDBm: ev.EstimatedPowerDBm,
		Strength:          string(ev.Strength),
	}
}

func toCaptureData(sessionID string, s *capture.Session, captureErr error) *captureData {
	return &captureData{
		SessionID:  sessionID,
		Path:       s.Path,
		Frequency:  s.Frequency,
		SampleRate: s.SampleRate,
		Started:    s.Started.UTC(),
		Finished:   s.Finished.UTC(),
		Target:     s.Target,
		Written:    s.Written,
		Error:      toErrorData(captureErr),
	}
}

func (d *detectionData) toDetection() Detection {
	return Detection{
		ID:        d.ID,
		SessionID: d.SessionID,
		Event: detect.Event{
			Frequency:         d.Frequency,
			Timestamp:         d.Timestamp,
			Power:             d.Power,
			PowerDBFS:         d.PowerDBFS,
			EstimatedPowerDBm: d.EstimatedPowerDBm,
			Strength:          detect.Strength(d.Strength),
		},
	}
}

func (d *captureData) toCapture() Capture {
	c := Capture{
		ID:        d.ID,
		SessionID: d.SessionID,
		Session: capture.Session{
			Path:       d.Path,
			Frequency:  d.Frequency,
			SampleRate: d.SampleRate,
			Started:    d.Started,
			Finished:   d.Finished,
			Target:     d.Target,
			Written:    d.Written,
		},
	}
	if d.Error.Valid {
		c.Error = &d.Error.String
	}
	return c
}

// queryBounds resolves the open ends of a detection query
func queryBounds(q *query) (startTime, endTime time.Time, minFreq, maxFreq float64, limit int64) {
	startTime, endTime = time.Unix(0, 0).UTC(), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	minFreq, maxFreq = 0, math.MaxFloat64
	limit = -1

	if q.startTime != nil {
		startTime = q.startTime.UTC()
	}
	if q.endTime != nil {
		endTime = q.endTime.UTC()
	}
	if q.minFreq != nil {
		minFreq = *q.minFreq
	}
	if q.maxFreq != nil {
		maxFreq = *q.maxFreq
	}
	if q.limit > 0 {
		limit = int64(q.limit)
	}
	return
}
