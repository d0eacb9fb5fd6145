package app

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roman-kulish/rf-sentinel/internal/capture"
	"github.com/roman-kulish/rf-sentinel/internal/detect"
	"github.com/roman-kulish/rf-sentinel/internal/storage"
)

const journalQueueSize = 256

type captureRecord struct {
	session *capture.Session
	err     error
}

// journal writes detections and captures to the store from its own
// goroutine, so that the acquisition loop does not wait on SQLite. Records
// arriving while the queue is full are dropped.
type journal struct {
	store     *storage.Store
	sessionID string
	records   chan any
	done      chan struct{}
	dropped   atomic.Int64
	logger    *slog.Logger
}

func newJournal(store *storage.Store, sessionID string, logger *slog.Logger) *journal {
	j := journal{
		store:     store,
		sessionID: sessionID,
		records:   make(chan any, journalQueueSize),
		done:      make(chan struct{}),
		logger:    logger,
	}

	go j.handleRecords()

	return &j
}

func (j *journal) Detection(ev detect.Event) {
	j.enqueue(ev, "detection")
}

func (j *journal) Capture(s *capture.Session, err error) {
	j.enqueue(captureRecord{session: s, err: err}, "capture")
}

func (j *journal) enqueue(r any, kind string) {
	select {
	case j.records <- r:
	default:
		j.dropped.Add(1)
		j.logger.Warn("journal queue full, record dropped", slog.String("kind", kind))
	}
}

// Close writes whatever is queued and stops the writer
func (j *journal) Close() {
	close(j.records)
	<-j.done
}

func (j *journal) handleRecords() {
	defer close(j.done)

	// Records queued at shutdown are still written
	ctx := context.Background()

	for r := range j.records {
		var err error
		switch r := r.(type) {
		case detect.Event:
			_, err = j.store.StoreDetection(ctx, j.sessionID, r)
		case captureRecord:
			_, err = j.store.StoreCapture(ctx, j.sessionID, r.session, r.err)
		}
		if err != nil {
			j.logger.Error(err.Error())
		}
	}
}
