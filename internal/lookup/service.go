// Package lookup runs an authorized vehicle lookup: one history and one
// extended registry query, merged into a single result.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vehicle-lookup-api/internal/access"
	"vehicle-lookup-api/internal/audit"
	"vehicle-lookup-api/internal/events"
	"vehicle-lookup-api/internal/registry"
)

// Authorizer decides whether a request may proceed
type Authorizer interface {
	Authorize(ctx context.Context, req access.Request) (*access.Grant, error)
}

// Registry runs one registry query
type Registry interface {
	Query(ctx context.Context, q registry.Query) (*registry.Result, error)
}

// Response is a finished lookup. Status is audit.StatusOK when both
// registry answers were OK and audit.StatusNOK otherwise.
type Response struct {
	Grant  *access.Grant
	Status string
	Data   map[string]any
}

// Service orchestrates authorization and the registry calls
type Service struct {
	gate     Authorizer
	registry Registry
	bus      *events.EventBus
	logger   zerolog.Logger
}

// NewService creates a lookup service. bus may be nil.
func NewService(gate Authorizer, reg Registry, bus *events.EventBus, logger zerolog.Logger) *Service {
	return &Service{
		gate:     gate,
		registry: reg,
		bus:      bus,
		logger:   logger.With().Str("component", "lookup").Logger(),
	}
}

// Lookup authorizes req and queries the registry. Authorization failures are
// returned with a nil Response. When a registry call fails the Response still
// carries the Grant so the attempt can be attributed.
func (s *Service) Lookup(ctx context.Context, req access.Request) (*Response, error) {
	start := time.Now()

	grant, err := s.gate.Authorize(ctx, req)
	if err != nil {
		if !errors.Is(err, access.ErrUnauthorized) {
			s.logger.Error().Err(err).Msg("Authorization failed")
			s.bus.PublishError("access", "credential store unavailable", err)
		}
		return nil, err
	}

	base := registry.Query{
		RegNumber: grant.RegNumber,
		VIN:       grant.VIN,
		RegType:   grant.RegType,
	}

	variants := []registry.Variant{registry.VariantHistory, registry.VariantExtended}
	results := make([]*registry.Result, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		q := base
		q.Variant = v
		g.Go(func() error {
			res, err := s.registry.Query(gctx, q)
			if err != nil {
				s.bus.PublishUpstreamFailed(string(v), registry.Outcome(err), err)
				return fmt.Errorf("%s query: %w", v, err)
			}
			results[i] = res
			return nil
		})
	}

	resp := &Response{Grant: grant}
	if err := g.Wait(); err != nil {
		s.logger.Error().
			Err(err).
			Str("reg_number", grant.RegNumber).
			Str("vin", grant.VIN).
			Msg("Registry lookup failed")
		return resp, err
	}

	resp.Status = audit.StatusOK
	for _, r := range results {
		if r.Status != registry.StatusOK {
			resp.Status = audit.StatusNOK
		}
	}
	// history first so extended fields win on collision
	resp.Data = registry.Merge(results...)

	s.logger.Info().
		Str("path", string(grant.Path)).
		Str("reg_number", grant.RegNumber).
		Str("status", resp.Status).
		Dur("duration", time.Since(start)).
		Msg("Lookup completed")
	s.bus.PublishLookupCompleted(string(grant.Path), grant.RegNumber+grant.VIN, resp.Status, time.Since(start))

	return resp, nil
}
