package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/docflow/internal/common"
)

const tracerName = "github.com/joseph-ayodele/docflow/internal/apiclient"

// Config configures the document service client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api.
	BaseURL string

	// Timeout bounds each request (default: 2m). Page steps run OCR server side.
	Timeout time.Duration

	// RateLimit requests per second (default: 10).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// UserAgent string (default: "docflow/1.0").
	UserAgent string

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// Client talks to the document service over HTTP/JSON.
type Client struct {
	cfg         Config
	baseURL     *url.URL
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	tracer      trace.Tracer
	log         *slog.Logger
}

// NewClient creates a client, filling unset config values with defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docflow/1.0"
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("invalid api base url %q", cfg.BaseURL), common.ErrInvalidInput)
	}
	return &Client{
		cfg:     cfg,
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		tracer:      otel.Tracer(tracerName),
		log:         logger,
	}, nil
}

// request describes one call to the service.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

// response wraps a successful HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) endpoint(path string, query url.Values) string {
	full := strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return full
}

// do executes one rate-limited request. Non-2xx responses become *common.APIError.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	ctx, span := c.tracer.Start(ctx, "apiclient."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("docflow.request_id", reqID),
		))
	defer span.End()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	fullURL := c.endpoint(r.path, r.query)

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, fullURL, body)
	if err != nil {
		c.log.Error("api.http.build_request_error", "req_id", reqID, "op", r.op, "error", err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("X-Request-ID", reqID)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if sid := common.SessionIDFromContext(ctx); sid != "" {
		req.Header.Set("X-Session-ID", sid)
	}

	c.log.Debug("api.http.request",
		"req_id", reqID,
		"op", r.op,
		"url", fullURL,
		"content_length", len(r.body),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Error("api.http.send_error", "req_id", reqID, "op", r.op, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("%s: %w", r.op, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("api.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: read body: %w", r.op, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.log.Debug("api.http.response",
		"req_id", reqID,
		"op", r.op,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		apiErr := &common.APIError{Op: r.op, StatusCode: resp.StatusCode, Detail: decodeDetail(raw)}
		span.SetStatus(otelcodes.Error, apiErr.Message())
		c.log.Warn("api.http.failed", "req_id", reqID, "op", r.op, "status", resp.StatusCode, "detail", apiErr.Message())
		return nil, apiErr
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: raw}, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the reply into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	r := request{op: op, method: method, path: path, query: query}
	if in != nil {
		bs, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode json: %w", op, err)
		}
		r.body = bs
		r.contentType = "application/json"
	}
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: decode json: %w", op, err)
	}
	return nil
}

// decodeDetail pulls the human readable detail out of an error payload.
// The detail is either a string or a list of {msg: ...} objects.
func decodeDetail(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
