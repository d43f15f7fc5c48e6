// Package notify calls the hosted email edge function and records outbound
// communications.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-telco/internal/common"
	"github.com/noah-isme/backend-telco/internal/obs"
	"github.com/noah-isme/backend-telco/internal/resilience"
)

// SendEmailFunction is the edge function that renders and delivers email.
const SendEmailFunction = "send-email"

// ErrNotConfigured is returned when the functions base URL is missing.
var ErrNotConfigured = errors.New("notify: functions endpoint not configured")

// FunctionError reports a non-2xx response from an edge function.
type FunctionError struct {
	Function   string
	StatusCode int
	Body       string
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("notify: function %s responded %d: %s", e.Function, e.StatusCode, e.Body)
}

// FunctionClient invokes edge functions at {BaseURL}/{name} with the service
// key as bearer token.
type FunctionClient struct {
	BaseURL string
	Key     string
	HTTP    resilience.HTTPClient
}

// NewFunctionClient builds a client whose transport is traced and wrapped with
// retries and a circuit breaker.
func NewFunctionClient(baseURL, key string, opts resilience.Options) *FunctionClient {
	if opts.Target == "" {
		opts.Target = "email_function"
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	opts.Transport = otelhttp.NewTransport(base)
	return &FunctionClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Key:     key,
		HTTP:    resilience.NewHTTPClient(opts),
	}
}

// Invoke posts payload as JSON to the named function and returns the response
// body. Only success or failure is meaningful to callers.
func (c *FunctionClient) Invoke(ctx context.Context, name string, payload any) ([]byte, error) {
	if c == nil || c.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	ctx, span := otel.Tracer("telco.notify").Start(ctx, "FunctionClient.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("function.name", name))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notify: encode %s payload: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("notify: build %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.Key)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invoke failed")
		return nil, fmt.Errorf("notify: invoke %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("notify: read %s response: %w", name, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ferr := &FunctionError{Function: name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		span.RecordError(ferr)
		span.SetStatus(codes.Error, "function error")
		return nil, ferr
	}
	return data, nil
}

// Send implements common.EmailSender by invoking send-email with
// {"type": kind, "data": data}.
func (c *FunctionClient) Send(ctx context.Context, kind common.EmailType, data map[string]any) error {
	_, err := c.Invoke(ctx, SendEmailFunction, map[string]any{"type": kind, "data": data})
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.ObserveEmail(string(kind), result)
	return err
}
