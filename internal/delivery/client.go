package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"signal-relay/internal/canonical"
	"signal-relay/internal/circuitbreaker"
	"signal-relay/internal/common/errors"
	commonhttp "signal-relay/internal/common/http"
	"signal-relay/internal/common/logging"
	"signal-relay/internal/retry"
	"signal-relay/internal/signing"
)

// Response is the parsed result of a successful delivery.
type Response struct {
	StatusCode int
	Body       []byte
}

// ClientConfig configures an outbound delivery client.
type ClientConfig struct {
	ProducerID string
	Secret     []byte
	Policy     retry.Policy
	Timeout    time.Duration

	// Breaker optionally guards attempts; nil disables the breaker.
	Breaker *circuitbreaker.GoBreakerAdapter

	// HTTPClient overrides the default client, used in tests.
	HTTPClient *http.Client

	Logger logging.Logger
}

// Client delivers signed payloads to a consumer endpoint.
type Client struct {
	httpClient *http.Client
	signer     *signing.Signer
	producerID string
	policy     retry.Policy
	breaker    *circuitbreaker.GoBreakerAdapter
	logger     logging.Logger
	now        func() time.Time
}

// NewClient creates a delivery client, validating secret and policy.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.ProducerID == "" {
		return nil, errors.ConfigError("producer id is required")
	}

	signer, err := signing.NewSigner(cfg.Secret)
	if err != nil {
		return nil, err
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("invalid retry policy: %v", err))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = commonhttp.NewHTTPClientWithTimeout(timeout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	policy := cfg.Policy
	policy.Retryable = func(err error) bool {
		return errors.IsType(err, errors.ErrTypeTransientDelivery)
	}

	return &Client{
		httpClient: httpClient,
		signer:     signer,
		producerID: cfg.ProducerID,
		policy:     policy,
		breaker:    cfg.Breaker,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Deliver sends body to the endpoint as one logical delivery: the
// idempotency key is fixed up front, while each attempt gets a fresh
// timestamp and signature. Transient failures are retried per the
// policy; on exhaustion the *retry.ExhaustedError propagates so the
// caller can alert with full context.
func (c *Client) Deliver(ctx context.Context, endpoint string, body []byte) (*Response, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid endpoint: %v", err))
	}

	idempotencyKey := uuid.NewString()

	attempt := 0
	op := func(ctx context.Context) (*Response, error) {
		attempt++
		return c.attempt(ctx, endpoint, target.Path, idempotencyKey, body, attempt)
	}

	result, err := retry.Do(ctx, c.policy, op)
	if err != nil {
		if exhausted, ok := err.(*retry.ExhaustedError); ok {
			c.logger.Error("Delivery exhausted", exhausted.Err,
				logging.Field{Key: "endpoint", Value: endpoint},
				logging.Field{Key: "idempotency_key", Value: idempotencyKey},
				logging.Field{Key: "attempts", Value: exhausted.Attempts},
				logging.Field{Key: "elapsed", Value: exhausted.Elapsed},
			)
		}
		return nil, err
	}

	return result, nil
}

// attempt performs one signed transmission. Called once per retry with
// a fresh timestamp so the consumer's freshness window never rejects a
// legitimately delayed retry.
func (c *Client) attempt(ctx context.Context, endpoint, path, idempotencyKey string, body []byte, attempt int) (*Response, error) {
	timestamp := canonical.FormatTimestamp(c.now())

	canonicalBytes, err := canonical.Encode(http.MethodPost, path, timestamp, c.producerID, body)
	if err != nil {
		return nil, err
	}

	envelope := &Envelope{
		ProducerID:     c.producerID,
		Timestamp:      timestamp,
		Signature:      c.signer.Sign(canonicalBytes),
		IdempotencyKey: idempotencyKey,
		Body:           body,
	}

	c.logger.Debug("Delivering signal",
		logging.Field{Key: "endpoint", Value: endpoint},
		logging.Field{Key: "idempotency_key", Value: idempotencyKey},
		logging.Field{Key: "attempt", Value: attempt},
	)

	var response *Response
	send := func() error {
		var sendErr error
		response, sendErr = c.send(ctx, endpoint, envelope)
		return sendErr
	}

	if c.breaker != nil {
		err = c.breaker.Execute(ctx, send)
	} else {
		err = send()
	}
	if err != nil {
		return nil, err
	}

	return response, nil
}

// send transmits the envelope and classifies the outcome.
func (c *Client) send(ctx context.Context, endpoint string, envelope *Envelope) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope.Body))
	if err != nil {
		return nil, errors.InternalError("failed to build request", err)
	}
	envelope.Apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation is the caller's decision, not a transient fault.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.TransientDeliveryError("request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.TransientDeliveryError("failed to read response body", err)
	}

	return classify(resp.StatusCode, respBody)
}

// classify maps a response status to the error taxonomy: 5xx, 429 and
// 409 are transient, all other non-2xx are fatal and never retried.
// 409 is what the consumer's gate returns while a duplicate is still
// in flight, so backing off and retrying yields the cached result.
func classify(status int, body []byte) (*Response, error) {
	switch {
	case status >= 200 && status < 300:
		return &Response{StatusCode: status, Body: body}, nil
	case status >= 500 || status == http.StatusTooManyRequests || status == http.StatusConflict:
		return nil, errors.TransientDeliveryError(
			fmt.Sprintf("server returned status %d", status), nil).
			WithContext("status", status)
	default:
		return nil, errors.FatalDeliveryError(
			fmt.Sprintf("server rejected request with status %d", status)).
			WithContext("status", status)
	}
}
