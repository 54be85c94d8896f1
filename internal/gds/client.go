package gds

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/skyfare/ticketing/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// TransportError is a classified failure of the HTTP exchange with a
// vendor. OutcomeUnknown is set when the request may have reached the
// vendor even though no response arrived (timeout, dropped connection):
// for mutating operations the caller must park the entity instead of
// assuming failure, because GDS vendors provide no call cancellation.
type TransportError struct {
	Kind           ErrorKind
	StatusCode     int
	Err            error
	OutcomeUnknown bool
	VendorMessage  string
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gds transport %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gds transport %s: status %d %s", e.Kind, e.StatusCode, e.VendorMessage)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the stateless per-vendor transport: authentication, wire
// marshalling, a fixed call timeout, a connection budget and outcome
// classification. Request and response bodies are logged at debug level;
// payment card data never enters these payloads.
type Client struct {
	vendor       string
	baseURL      string
	username     string
	password     string
	targetBranch string
	pointOfSale  string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	slots        chan struct{}
	log          *zap.Logger
}

func NewClient(vendor string, cfg config.VendorConfig, log *zap.Logger) *Client {
	budget := cfg.ConnectionBudget
	if budget <= 0 {
		budget = 8
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    vendor,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		vendor:       vendor,
		baseURL:      cfg.BaseURL,
		username:     cfg.Username,
		password:     cfg.Password,
		targetBranch: cfg.TargetBranch,
		pointOfSale:  cfg.PointOfSale,
		httpClient:   &http.Client{Timeout: cfg.Timeout()},
		breaker:      breaker,
		slots:        make(chan struct{}, budget),
		log:          log.With(zap.String("vendor", vendor)),
	}
}

func (c *Client) Vendor() string       { return c.vendor }
func (c *Client) TargetBranch() string { return c.targetBranch }
func (c *Client) PointOfSale() string  { return c.pointOfSale }

// Post marshals payload, performs the call under the vendor connection
// budget and returns the raw response body on 2xx. Any other outcome is a
// *TransportError.
func (c *Client) Post(ctx context.Context, path string, payload any) ([]byte, *TransportError) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &TransportError{Kind: ErrorKindTransient, Err: fmt.Errorf("marshal request: %w", err)}
	}

	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return nil, &TransportError{Kind: ErrorKindTransient, Err: ctx.Err()}
	}

	start := time.Now()
	c.log.Debug("gds request", zap.String("path", path), zap.ByteString("body", body))

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(c.username, c.password)

		rsp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer rsp.Body.Close()

		data, err := io.ReadAll(rsp.Body)
		if err != nil {
			return nil, err
		}
		return &httpResult{status: rsp.StatusCode, body: data}, nil
	})
	if err != nil {
		terr := c.classifyNetError(err)
		c.log.Debug("gds transport failure", zap.String("path", path), zap.Error(err), zap.Bool("outcome_unknown", terr.OutcomeUnknown))
		return nil, terr
	}

	rsp := result.(*httpResult)
	c.log.Debug("gds response",
		zap.String("path", path),
		zap.Int("status", rsp.status),
		zap.Duration("took", time.Since(start)),
		zap.ByteString("body", rsp.body))

	if rsp.status >= 200 && rsp.status < 300 {
		return rsp.body, nil
	}
	return nil, c.classifyStatus(rsp.status, rsp.body)
}

type httpResult struct {
	status int
	body   []byte
}

func (c *Client) classifyNetError(err error) *TransportError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Breaker rejected locally, nothing was sent.
		return &TransportError{Kind: ErrorKindTransient, Err: err}
	}
	// A timeout or dropped connection after the request went out: the vendor
	// may still have processed it.
	return &TransportError{Kind: ErrorKindTransient, Err: err, OutcomeUnknown: true}
}

func (c *Client) classifyStatus(status int, body []byte) *TransportError {
	msg := vendorMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &TransportError{Kind: ErrorKindAuth, StatusCode: status, VendorMessage: msg}
	case status == http.StatusTooManyRequests:
		return &TransportError{Kind: ErrorKindRateLimit, StatusCode: status, VendorMessage: msg}
	case status >= 500:
		return &TransportError{Kind: ErrorKindTransient, StatusCode: status, VendorMessage: msg}
	default:
		return &TransportError{Kind: ErrorKindBusiness, StatusCode: status, VendorMessage: msg}
	}
}

func vendorMessage(body []byte) string {
	var env galileoEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Fault != nil {
		return env.Fault.Message
	}
	return string(body)
}

// transportFailure converts a TransportError into the normalized result
// envelope adapters return.
func transportFailure(vendor string, terr *TransportError) *OperationResult {
	return &OperationResult{
		Vendor:         vendor,
		ErrorKind:      terr.Kind,
		Message:        terr.Error(),
		OutcomeUnknown: terr.OutcomeUnknown,
	}
}
