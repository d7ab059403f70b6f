// Package audit writes one log entry per request attempt without ever
// touching the response path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/events"
	"vehicle-lookup-api/internal/metrics"
)

// Status tags written to the log
const (
	StatusOK           = "OK"
	StatusNOK          = "NOK"
	StatusUnauthorized = "UNAUTHORIZED"
	StatusError        = "ERROR"
	StatusNotFound     = "NOF"
	StatusStoreError   = "NOK (store)"
)

// Query type tags written to the log
const (
	QueryCombo       = "combo"
	QueryFindPayment = "findpayment"
)

const writeTimeout = 10 * time.Second

// Sink persists log entries
type Sink interface {
	InsertLog(ctx context.Context, entry *database.LogEntry) error
}

// Recorder writes audit entries asynchronously
type Recorder struct {
	sink    Sink
	bus     *events.EventBus
	route   string
	version string
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder stamping every entry with route and version.
// bus may be nil.
func NewRecorder(sink Sink, bus *events.EventBus, route, version string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		sink:    sink,
		bus:     bus,
		route:   route,
		version: version,
		logger:  logger.With().Str("component", "audit").Logger(),
	}
}

// Entry describes one request attempt
type Entry struct {
	Status     string
	Note       string
	QueryType  string
	RegType    string
	IP         string
	Started    time.Time
	PromoToken string
}

// Record queues the entry for writing and returns immediately. The duration
// is measured from Started to this call.
func (r *Recorder) Record(e Entry) {
	now := time.Now()
	entry := &database.LogEntry{
		Date:       now.UTC(),
		Status:     e.Status,
		Note:       e.Note,
		QueryType:  e.QueryType,
		RegType:    e.RegType,
		IP:         e.IP,
		Duration:   float64(now.Sub(e.Started)) / float64(time.Millisecond),
		Route:      r.route,
		Version:    r.version,
		PromoToken: e.PromoToken,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.write(entry)
	}()
}

func (r *Recorder) write(entry *database.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.sink.InsertLog(ctx, entry); err != nil {
		metrics.IncAuditFailure()
		r.logger.Error().
			Err(err).
			Str("status", entry.Status).
			Str("note", entry.Note).
			Str("query_type", entry.QueryType).
			Msg("Failed to write audit log entry")
		r.bus.PublishAuditWriteFailed(entry.Status, entry.Note, err)
		return
	}

	r.logger.Debug().
		Str("status", entry.Status).
		Str("note", entry.Note).
		Float64("duration_ms", entry.Duration).
		Msg("Audit log entry written")
}

// Close waits for queued writes, or until ctx is done
func (r *Recorder) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
