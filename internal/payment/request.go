// Package payment builds signed payment creation requests for the checkout
// provider.
package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"vehicle-lookup-api/config"
)

// Header names understood by the provider
const (
	HeaderAccount   = "checkout-account"
	HeaderAlgorithm = "checkout-algorithm"
	HeaderMethod    = "checkout-method"
	HeaderNonce     = "checkout-nonce"
	HeaderTimestamp = "checkout-timestamp"
	HeaderSignature = "signature"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Item is one order line. Prices are in cents.
type Item struct {
	UnitPrice     int    `json:"unitPrice"`
	Units         int    `json:"units"`
	VATPercentage int    `json:"vatPercentage"`
	ProductCode   string `json:"productCode"`
	DeliveryDate  string `json:"deliveryDate"`
}

type Customer struct {
	Email string `json:"email"`
}

type RedirectURLs struct {
	Success string `json:"success"`
	Cancel  string `json:"cancel"`
}

// Body is the payment creation payload. Field order is part of the signed
// bytes.
type Body struct {
	Stamp        string       `json:"stamp"`
	Reference    string       `json:"reference"`
	Amount       int          `json:"amount"`
	Currency     string       `json:"currency"`
	Language     string       `json:"language"`
	Items        []Item       `json:"items"`
	Customer     Customer     `json:"customer"`
	RedirectURLs RedirectURLs `json:"redirectUrls"`
}

// Order is what the caller decides about a payment. Stamp is generated.
type Order struct {
	Reference    string
	Currency     string
	Language     string
	Items        []Item
	Email        string
	RedirectURLs RedirectURLs
}

// DefaultOrder is the single vehicle report product
func DefaultOrder() Order {
	return Order{
		Reference: "3759170",
		Currency:  "EUR",
		Language:  "FI",
		Items: []Item{{
			UnitPrice:     395,
			Units:         1,
			VATPercentage: 24,
			ProductCode:   "#1234",
			DeliveryDate:  "2024-09-01",
		}},
		Email: "test.customer@example.com",
		RedirectURLs: RedirectURLs{
			Success: "https://zircon-41o.pages.dev/verifypayment",
			Cancel:  "https://zircon-41o.pages.dev/verifypayment",
		},
	}
}

// Request is a signed request ready to send
type Request struct {
	Headers map[string]string
	Body    Body
	// Payload is the exact JSON that was signed
	Payload []byte
}

// Option configures a Builder
type Option func(*Builder)

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithRandom overrides the nonce and stamp generator
func WithRandom(next func() int64) Option {
	return func(b *Builder) { b.random = next }
}

// Builder signs payment requests with the merchant secret
type Builder struct {
	account string
	secret  string
	now     func() time.Time
	random  func() int64
}

// NewBuilder creates a builder for the configured merchant account
func NewBuilder(cfg config.ProviderConfig, opts ...Option) (*Builder, error) {
	if cfg.Account == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("provider account and secret are required")
	}
	b := &Builder{
		account: cfg.Account,
		secret:  cfg.Secret,
		now:     time.Now,
		random:  fifteenDigits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build assembles and signs a payment request for order
func (b *Builder) Build(order Order) (*Request, error) {
	nonce := b.random()
	stamp := b.random()

	headers := map[string]string{
		HeaderAccount:   b.account,
		HeaderAlgorithm: "sha256",
		HeaderMethod:    "POST",
		HeaderNonce:     strconv.FormatInt(nonce, 10),
		HeaderTimestamp: b.now().UTC().Format(timestampLayout),
	}

	amount := 0
	for _, it := range order.Items {
		amount += it.UnitPrice * it.Units
	}

	body := Body{
		Stamp:        strconv.FormatInt(stamp, 10),
		Reference:    order.Reference,
		Amount:       amount,
		Currency:     order.Currency,
		Language:     order.Language,
		Items:        order.Items,
		Customer:     Customer{Email: order.Email},
		RedirectURLs: order.RedirectURLs,
	}

	payload, err := marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal payment body: %w", err)
	}

	headers[HeaderSignature] = Sign(b.secret, headers, payload)

	return &Request{Headers: headers, Body: body, Payload: payload}, nil
}

// Sign computes the provider signature: hex HMAC-SHA256 over the
// checkout-* params as sorted "key:value" lines followed by the body.
// Params without the checkout- prefix are ignored. body may be empty.
func Sign(secret string, params map[string]string, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "checkout-") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		lines = append(lines, k+":"+params[k])
	}
	lines = append(lines, string(body))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign, e.g. on redirect parameters
func Verify(secret string, params map[string]string, body []byte, signature string) bool {
	want := Sign(secret, params, body)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}

// marshal encodes without HTML escaping so "#", "&" and friends are signed as sent
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// fifteenDigits returns a random integer in [100000000000000, 999999999999999]
func fifteenDigits() int64 {
	return rand.Int64N(900_000_000_000_000) + 100_000_000_000_000
}
