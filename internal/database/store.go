package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when no record matches (or no record matches the
// conditions of a conditional update).
var ErrNotFound = errors.New("record not found")

// StoreError wraps a failure of the underlying driver
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// Store is the persistent state behind the service: promo tokens, payments
// and the audit log. Consume* methods are atomic conditional updates.
type Store interface {
	// ConsumePayment sets used=now on the payment with the given transaction id
	// if it is still unused, and returns the updated record. ErrNotFound when
	// the payment is absent or already used.
	ConsumePayment(ctx context.Context, transactionID string, now time.Time) (*Payment, error)
	// ConsumeToken decrements credits and sets updated=now when the token
	// exists, has credits left and expires after now. ErrNotFound otherwise.
	ConsumeToken(ctx context.Context, token string, now time.Time) (*Token, error)

	FindPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	FindToken(ctx context.Context, token string) (*Token, error)
	CreatePayment(ctx context.Context, p *Payment) error
	CreateToken(ctx context.Context, t *Token) error
	InsertLog(ctx context.Context, entry *LogEntry) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects to the store selected by the URI scheme
func Open(ctx context.Context, uri, database string, logger zerolog.Logger) (Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to parse store uri: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		db, err := NewDB(ctx, uri, logger)
		if err != nil {
			return nil, err
		}
		return NewRepository(db), nil
	case "mongodb", "mongodb+srv":
		return NewMongoStore(ctx, uri, database, logger)
	case "memory":
		logger.Warn().Msg("Using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

// parseDatabaseName returns the database named in the URI path, if any
func parseDatabaseName(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(u.Path, "/"), nil
}
