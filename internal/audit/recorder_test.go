package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/events"
)

type fakeSink struct {
	mu      sync.Mutex
	entries []database.LogEntry
	err     error
	block   chan struct{}
}

func (f *fakeSink) InsertLog(_ context.Context, entry *database.LogEntry) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeSink) snapshot() []database.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]database.LogEntry(nil), f.entries...)
}

func TestRecorder_WritesStampedEntry(t *testing.T) {
	sink := &fakeSink{}
	rec := NewRecorder(sink, nil, "prod", "1.2.3", zerolog.Nop())

	rec.Record(Entry{
		Status:     StatusOK,
		Note:       "ABC-123",
		QueryType:  QueryCombo,
		RegType:    "1",
		IP:         "10.0.0.1",
		Started:    time.Now().Add(-25 * time.Millisecond),
		PromoToken: "T1",
	})
	require.NoError(t, rec.Close(context.Background()))

	entries := sink.snapshot()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, StatusOK, e.Status)
	assert.Equal(t, "ABC-123", e.Note)
	assert.Equal(t, QueryCombo, e.QueryType)
	assert.Equal(t, "prod", e.Route)
	assert.Equal(t, "1.2.3", e.Version)
	assert.Equal(t, "T1", e.PromoToken)
	assert.GreaterOrEqual(t, e.Duration, 25.0)
	assert.WithinDuration(t, time.Now(), e.Date, time.Second)
}

func TestRecorder_RecordDoesNotBlock(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	rec := NewRecorder(sink, nil, "test", "v", zerolog.Nop())

	start := time.Now()
	rec.Record(Entry{Status: StatusNOK, Started: start})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rec.Close(ctx), context.DeadlineExceeded)

	close(sink.block)
	require.NoError(t, rec.Close(context.Background()))
	assert.Len(t, sink.snapshot(), 1)
}

func TestRecorder_FailurePublishedOnBus(t *testing.T) {
	bus := events.NewEventBus()
	failures := make(chan events.Event, 1)
	bus.Subscribe(events.EventAuditWriteFailed, func(e events.Event) { failures <- e })

	sink := &fakeSink{err: errors.New("disk full")}
	rec := NewRecorder(sink, bus, "test", "v", zerolog.Nop())

	rec.Record(Entry{Status: StatusUnauthorized, Note: "XYZ", Started: time.Now()})
	require.NoError(t, rec.Close(context.Background()))

	select {
	case e := <-failures:
		assert.Equal(t, StatusUnauthorized, e.Data["status"])
		assert.Equal(t, "disk full", e.Data["error"])
	case <-time.After(time.Second):
		t.Fatal("failure event not published")
	}
}
