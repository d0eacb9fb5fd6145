package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
)

// RunSession is one monitor run
type RunSession struct {
	ID         string    `json:"id"`
	StartTime  time.Time `json:"startTime"`
	DeviceType string    `json:"deviceType"`
	DeviceID   string    `json:"deviceID"`
	Config     *string   `json:"config,omitempty"`
}

// Detection is a journaled detection event
type Detection struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionID"`
	detect.Event
}

// Capture is a journaled capture session, Error is set when it ended early
type Capture struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionID"`
	capture.Session
	Error *string `json:"error,omitempty"`
}

type detectionData struct {
	ID                int64
	SessionID         string
	Timestamp         time.Time
	Frequency         float64
	Power             float64
	PowerDBFS         float64
	EstimatedPowerDBm float64
	Strength          string
}

type captureData struct {
	ID         int64
	SessionID  string
	Path       string
	Frequency  float64
	SampleRate float64
	Started    time.Time
	Finished   time.Time
	Target     int64
	Written    int64
	Error      sql.NullString
}
