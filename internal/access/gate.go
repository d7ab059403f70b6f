// Package access decides whether a lookup may proceed and which vehicle it
// targets, spending a pay token or one promo credit on success.
package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vehicle-lookup-api/internal/database"
	"vehicle-lookup-api/internal/metrics"
)

// ErrUnauthorized is returned when neither credential authorizes the request
var ErrUnauthorized = errors.New("access denied")

// Path names the credential that authorized a request
type Path string

const (
	PathPayment Path = "pay"
	PathPromo   Path = "promo"
)

// CredentialStore is the subset of the store the gate needs. Both methods
// must be atomic conditional updates returning database.ErrNotFound when the
// condition does not hold.
type CredentialStore interface {
	ConsumePayment(ctx context.Context, transactionID string, now time.Time) (*database.Payment, error)
	ConsumeToken(ctx context.Context, token string, now time.Time) (*database.Token, error)
}

// Request carries the caller-supplied credentials and target
type Request struct {
	PayToken   string
	PromoToken string
	RegNumber  string
	VIN        string
	RegType    string
}

// Grant is the authorized query target
type Grant struct {
	Path      Path
	RegNumber string
	VIN       string
	RegType   string
}

// Option configures a Gate
type Option func(*Gate)

// WithClock overrides the time source used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// Gate authorizes lookups against the credential store
type Gate struct {
	store  CredentialStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewGate creates a gate backed by store
func NewGate(store CredentialStore, logger zerolog.Logger, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "access").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize checks the pay token first; the promo token is only tried when
// the pay token did not authorize and the caller named a vehicle. Store
// failures are returned as-is and never mean a credential was spent.
func (g *Gate) Authorize(ctx context.Context, req Request) (*Grant, error) {
	now := g.now().UTC()

	if req.PayToken != "" {
		grant, err := g.authorizePayment(ctx, req.PayToken, now)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			metrics.IncAuthorization(string(PathPayment), true)
			return grant, nil
		}
	}

	if (req.RegNumber != "" || req.VIN != "") && req.PromoToken != "" {
		grant, err := g.authorizePromo(ctx, req, now)
		if err != nil {
			return nil, err
		}
		if grant != nil {
			metrics.IncAuthorization(string(PathPromo), true)
			return grant, nil
		}
	}

	metrics.IncAuthorization("none", false)
	return nil, ErrUnauthorized
}

func (g *Gate) authorizePayment(ctx context.Context, payToken string, now time.Time) (*Grant, error) {
	p, err := g.store.ConsumePayment(ctx, payToken, now)
	if errors.Is(err, database.ErrNotFound) {
		g.logger.Info().Str("pay_token_ref", TokenRef(payToken)).Msg("Pay token unknown or already used")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume pay token: %w", err)
	}

	g.logger.Info().
		Str("pay_token_ref", TokenRef(payToken)).
		Str("reg_number", p.RegNumber).
		Msg("Pay token accepted")

	return &Grant{
		Path:      PathPayment,
		RegNumber: p.RegNumber,
		VIN:       p.VIN,
		RegType:   p.RegType,
	}, nil
}

func (g *Gate) authorizePromo(ctx context.Context, req Request, now time.Time) (*Grant, error) {
	t, err := g.store.ConsumeToken(ctx, req.PromoToken, now)
	if errors.Is(err, database.ErrNotFound) {
		g.logger.Info().Str("promo_token_ref", TokenRef(req.PromoToken)).Msg("Promo token unknown, expired or exhausted")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume promo token: %w", err)
	}

	g.logger.Info().
		Str("promo_token_ref", TokenRef(req.PromoToken)).
		Int("credits_left", t.Credits).
		Msg("Promo token accepted")

	return &Grant{
		Path:      PathPromo,
		RegNumber: req.RegNumber,
		VIN:       req.VIN,
		RegType:   req.RegType,
	}, nil
}

// TokenRef identifies a credential in logs without revealing it: the first
// eight hex digits of its SHA-256.
func TokenRef(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}
