package lookup

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-lookup-api/internal/access"
	"vehicle-lookup-api/internal/audit"
	"vehicle-lookup-api/internal/events"
	"vehicle-lookup-api/internal/registry"
)

type stubGate struct {
	grant *access.Grant
	err   error
}

func (s stubGate) Authorize(context.Context, access.Request) (*access.Grant, error) {
	return s.grant, s.err
}

type fakeRegistry struct {
	mu      sync.Mutex
	queries []registry.Query
	results map[registry.Variant]*registry.Result
	errs    map[registry.Variant]error
}

func (f *fakeRegistry) Query(ctx context.Context, q registry.Query) (*registry.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if err := f.errs[q.Variant]; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.results[q.Variant], nil
}

func (f *fakeRegistry) variants() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, q := range f.queries {
		out = append(out, string(q.Variant))
	}
	sort.Strings(out)
	return out
}

var promoGrant = &access.Grant{Path: access.PathPromo, RegNumber: "ABC-123", RegType: "1"}

func okResult(data map[string]any) *registry.Result {
	return &registry.Result{Status: registry.StatusOK, Data: data}
}

func TestLookup_MergesBothVariants(t *testing.T) {
	reg := &fakeRegistry{results: map[registry.Variant]*registry.Result{
		registry.VariantHistory:  okResult(map[string]any{"omistajaHaltija": "x", "rekisteritunnus": "hist"}),
		registry.VariantExtended: okResult(map[string]any{"moottori": "y", "rekisteritunnus": "ext"}),
	}}
	svc := NewService(stubGate{grant: promoGrant}, reg, nil, zerolog.Nop())

	resp, err := svc.Lookup(context.Background(), access.Request{})
	require.NoError(t, err)

	assert.Equal(t, []string{"840", "850"}, reg.variants())
	assert.Equal(t, audit.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{
		"omistajaHaltija": "x",
		"moottori":        "y",
		"rekisteritunnus": "ext",
	}, resp.Data)

	for _, q := range reg.queries {
		assert.Equal(t, "ABC-123", q.RegNumber)
		assert.Equal(t, "1", q.RegType)
	}
}

func TestLookup_NOKStatus(t *testing.T) {
	reg := &fakeRegistry{results: map[registry.Variant]*registry.Result{
		registry.VariantHistory:  okResult(map[string]any{"a": 1}),
		registry.VariantExtended: {Status: registry.StatusNOK, Data: map[string]any{"kehys": map[string]any{}}},
	}}
	svc := NewService(stubGate{grant: promoGrant}, reg, nil, zerolog.Nop())

	resp, err := svc.Lookup(context.Background(), access.Request{})
	require.NoError(t, err)
	assert.Equal(t, audit.StatusNOK, resp.Status)
	assert.Contains(t, resp.Data, "kehys")
}

func TestLookup_Unauthorized(t *testing.T) {
	reg := &fakeRegistry{}
	svc := NewService(stubGate{err: access.ErrUnauthorized}, reg, nil, zerolog.Nop())

	resp, err := svc.Lookup(context.Background(), access.Request{})
	assert.ErrorIs(t, err, access.ErrUnauthorized)
	assert.Nil(t, resp)
	assert.Empty(t, reg.variants())
}

func TestLookup_UpstreamFailureKeepsGrant(t *testing.T) {
	reg := &fakeRegistry{
		results: map[registry.Variant]*registry.Result{
			registry.VariantExtended: okResult(nil),
		},
		errs: map[registry.Variant]error{
			registry.VariantHistory: &registry.TimeoutError{},
		},
	}
	svc := NewService(stubGate{grant: promoGrant}, reg, nil, zerolog.Nop())

	resp, err := svc.Lookup(context.Background(), access.Request{})
	var te *registry.TimeoutError
	require.ErrorAs(t, err, &te)
	require.NotNil(t, resp)
	assert.Equal(t, promoGrant, resp.Grant)
	assert.Nil(t, resp.Data)
}

func TestLookup_StoreErrorFromGate(t *testing.T) {
	bus := events.NewEventBus()
	published := make(chan events.Event, 1)
	bus.Subscribe(events.EventError, func(e events.Event) { published <- e })

	cause := errors.New("store down")
	svc := NewService(stubGate{err: cause}, &fakeRegistry{}, bus, zerolog.Nop())

	_, err := svc.Lookup(context.Background(), access.Request{})
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, access.ErrUnauthorized)

	select {
	case e := <-published:
		assert.Equal(t, "access", e.Data["source"])
		assert.Equal(t, "store down", e.Data["error"])
	case <-time.After(time.Second):
		t.Fatal("error event not published")
	}
}

func TestLookup_UnauthorizedPublishesNoError(t *testing.T) {
	bus := events.NewEventBus()
	published := make(chan events.Event, 1)
	bus.Subscribe(events.EventError, func(e events.Event) { published <- e })

	svc := NewService(stubGate{err: access.ErrUnauthorized}, &fakeRegistry{}, bus, zerolog.Nop())
	_, err := svc.Lookup(context.Background(), access.Request{})
	require.ErrorIs(t, err, access.ErrUnauthorized)

	select {
	case e := <-published:
		t.Fatalf("unexpected %s event", e.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
