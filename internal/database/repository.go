package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository is the PostgreSQL implementation of Store
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping performs a database health check
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.Pool.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Migrate creates the tables the service needs
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db.RunMigrations(ctx); err != nil {
		return storeErr("migrate", err)
	}
	return nil
}

// Close releases the pool
func (r *Repository) Close(_ context.Context) error {
	r.db.Close()
	return nil
}

// ============================================================================
// PAYMENTS
// ============================================================================

const paymentColumns = `id::text, date, transaction_id, reference, href, reg_number, vin, reg_type, used`

func scanPayment(row pgx.Row) (*Payment, error) {
	p := &Payment{}
	err := row.Scan(
		&p.ID, &p.Date, &p.TransactionID, &p.Reference, &p.Href,
		&p.RegNumber, &p.VIN, &p.RegType, &p.Used,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConsumePayment marks an unused payment as used in a single statement
func (r *Repository) ConsumePayment(ctx context.Context, transactionID string, now time.Time) (*Payment, error) {
	query := `
		UPDATE payments
		SET used = $2
		WHERE transaction_id = $1 AND used IS NULL
		RETURNING ` + paymentColumns

	p, err := scanPayment(r.db.Pool.QueryRow(ctx, query, transactionID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("consume payment", err)
	}
	return p, nil
}

// FindPaymentByTransactionID retrieves a payment regardless of its used state
func (r *Repository) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	p, err := scanPayment(r.db.Pool.QueryRow(ctx, query, transactionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find payment", err)
	}
	return p, nil
}

// CreatePayment inserts a new payment
func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.Date.IsZero() {
		p.Date = time.Now().UTC()
	}
	query := `
		INSERT INTO payments (date, transaction_id, reference, href, reg_number, vin, reg_type, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		p.Date, p.TransactionID, p.Reference, p.Href, p.RegNumber, p.VIN, p.RegType, p.Used,
	).Scan(&p.ID)
	if err != nil {
		return storeErr("create payment", err)
	}
	return nil
}

// ============================================================================
// TOKENS
// ============================================================================

const tokenColumns = `id::text, token, legend, credits, created, updated, expires`

func scanToken(row pgx.Row) (*Token, error) {
	t := &Token{}
	err := row.Scan(&t.ID, &t.Token, &t.Legend, &t.Credits, &t.Created, &t.Updated, &t.Expires)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ConsumeToken spends one credit of a live token in a single statement
func (r *Repository) ConsumeToken(ctx context.Context, token string, now time.Time) (*Token, error) {
	query := `
		UPDATE tokens
		SET credits = credits - 1, updated = $2
		WHERE token = $1 AND credits > 0 AND expires > $2
		RETURNING ` + tokenColumns

	t, err := scanToken(r.db.Pool.QueryRow(ctx, query, token, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("consume token", err)
	}
	return t, nil
}

// FindToken retrieves a token without spending it
func (r *Repository) FindToken(ctx context.Context, token string) (*Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE token = $1`

	t, err := scanToken(r.db.Pool.QueryRow(ctx, query, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("find token", err)
	}
	return t, nil
}

// CreateToken inserts a new token
func (r *Repository) CreateToken(ctx context.Context, t *Token) error {
	now := time.Now().UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Updated.IsZero() {
		t.Updated = now
	}
	query := `
		INSERT INTO tokens (token, legend, credits, created, updated, expires)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		t.Token, t.Legend, t.Credits, t.Created, t.Updated, t.Expires,
	).Scan(&t.ID)
	if err != nil {
		return storeErr("create token", err)
	}
	return nil
}

// ============================================================================
// LOGS
// ============================================================================

// InsertLog appends an audit record
func (r *Repository) InsertLog(ctx context.Context, entry *LogEntry) error {
	query := `
		INSERT INTO logs (date, status, note, query_type, reg_type, ip, duration, rte, version, promo_token)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''))
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		entry.Date, entry.Status, entry.Note, entry.QueryType, entry.RegType,
		entry.IP, entry.Duration, entry.Route, entry.Version, entry.PromoToken,
	)
	if err != nil {
		return storeErr("insert log", err)
	}
	return nil
}
