package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"vehicle-lookup-api/config"
	"vehicle-lookup-api/internal/metrics"
)

const contentType = "text/xml; iso-8859-1"

// Client sends rendered queries to the registry through the forward proxy
type Client struct {
	endpoint   string
	timeout    time.Duration
	templates  *Templates
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a registry client. Proxy credentials are taken from the
// proxy URL's userinfo; an empty proxy URL means a direct connection.
func NewClient(cfg config.RegistryConfig, templates *Templates, logger zerolog.Logger) (*Client, error) {
	if _, err := url.Parse(cfg.HostURL); err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		endpoint:   cfg.HostURL,
		timeout:    timeout,
		templates:  templates,
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With().Str("component", "registry").Logger(),
	}, nil
}

// Query runs one registry request and translates the response. The request
// is cancelled when the timeout fires or ctx is done.
func (c *Client) Query(ctx context.Context, q Query) (*Result, error) {
	q = q.withDefaults()
	start := time.Now()

	res, err := c.do(ctx, q)

	outcome := Outcome(err)
	if err == nil {
		outcome = Outcome(res.Err())
	}
	metrics.ObserveUpstream(string(q.Variant), outcome, time.Since(start))

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("variant", string(q.Variant)).
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("Registry query finished")

	return res, err
}

func (c *Client) do(ctx context.Context, q Query) (*Result, error) {
	body, err := EncodeLatin1(c.templates.Render(q))
	if err != nil {
		return nil, &RequestSetupError{Err: fmt.Errorf("encode query: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestSetupError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamStatusError{StatusCode: resp.StatusCode, Body: raw}
	}

	return Translate(q.Variant, raw)
}

func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{After: c.timeout}
	}
	return &TransportError{Err: err}
}
