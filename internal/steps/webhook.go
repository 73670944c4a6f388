package steps

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ElementsAI-Dev/cognia-workflow/internal/expressions"
	"github.com/ElementsAI-Dev/cognia-workflow/pkg/schema"
)

const (
	maxWebhookRetries = 8
	webhookBackoffMs  = 200
	maxBackoffMs      = 2000
	defaultWebhookMs  = 30_000
)

// executeWebhook renders the URL, headers and body against the step input
// and performs the HTTP call with bounded retries and exponential backoff.
func (e *Executor) executeWebhook(ctx context.Context, step *schema.WorkflowStepDefinition, input map[string]any) (map[string]any, error) {
	if step.WebhookURL == nil {
		return nil, schema.NewError(schema.ErrCodeStepFailed, "webhook step requires webhookUrl")
	}

	renderedURL := expressions.RenderTemplate(*step.WebhookURL, input)
	allowInternal := boolOr(step.AllowInternalNetwork, false)
	parsed, err := validateWebhookURL(renderedURL, allowInternal)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strOr(step.Method, "POST"))
	body := expressions.RenderTemplate(strOr(step.Body, ""), input)

	headers := make(http.Header, len(step.Headers)+1)
	for key, value := range step.Headers {
		headers.Set(key, expressions.RenderTemplate(value, input))
	}
	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}

	retries := step.Retries
	if retries == nil {
		retries = step.RetryCount
	}
	maxRetries := uint32(0)
	if retries != nil {
		maxRetries = *retries
	}
	if maxRetries > maxWebhookRetries {
		maxRetries = maxWebhookRetries
	}

	timeout := time.Duration(stepTimeoutMs(step, defaultWebhookMs)) * time.Millisecond

	var lastErr error
	for attempt := uint32(0); attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := uint64(webhookBackoffMs) << (attempt - 1)
			if backoff > maxBackoffMs {
				backoff = maxBackoffMs
			}
			if err := sleepCtx(ctx, time.Duration(backoff)*time.Millisecond); err != nil {
				return nil, err
			}
		}

		output, err := e.sendWebhook(ctx, method, parsed.String(), headers, body, timeout)
		if err == nil {
			return output, nil
		}
		// Only transport failures are retried. A read failure means the
		// request itself went through, so retrying could repeat side effects.
		var readFailure *webhookReadFailure
		if errors.As(err, &readFailure) {
			return nil, schema.NewErrorf(schema.ErrCodeStepFailed,
				"webhook response read failed: %s", readFailure.err.Error()).WithCause(readFailure.err)
		}
		lastErr = err
	}

	return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "webhook request failed: %s", lastErr.Error()).WithCause(lastErr)
}

// webhookReadFailure marks an error reading the response body of a request
// that was already delivered.
type webhookReadFailure struct {
	err error
}

func (w *webhookReadFailure) Error() string { return w.err.Error() }

func (w *webhookReadFailure) Unwrap() error { return w.err }

// sendWebhook performs a single HTTP attempt.
func (e *Executor) sendWebhook(ctx context.Context, method, target string, headers http.Header, body string, timeout time.Duration) (map[string]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if method != http.MethodGet && body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header = headers.Clone()

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &webhookReadFailure{err: err}
	}

	var data any
	if err := json.Unmarshal(text, &data); err != nil {
		data = string(text)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for name, values := range resp.Header {
		if len(values) > 0 {
			respHeaders[strings.ToLower(name)] = values[0]
		}
	}

	return map[string]any{
		"status":     int64(resp.StatusCode),
		"statusText": http.StatusText(resp.StatusCode),
		"ok":         resp.StatusCode >= 200 && resp.StatusCode < 300,
		"data":       data,
		"headers":    respHeaders,
	}, nil
}

// validateWebhookURL enforces http/https and blocks internal hosts unless
// the step explicitly allows internal network access.
func validateWebhookURL(raw string, allowInternal bool) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed, "invalid webhook URL: %s", raw).WithCause(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, schema.NewErrorf(schema.ErrCodeStepFailed,
			"invalid webhook protocol: %s (http/https only)", parsed.Scheme)
	}
	if !allowInternal {
		host := parsed.Hostname()
		if isInternalOrLocalhost(host) {
			return nil, schema.NewErrorf(schema.ErrCodeStepFailed,
				"blocked webhook host: %s. Internal network access is not allowed", host)
		}
	}
	return parsed, nil
}

// isInternalOrLocalhost reports whether the host points into local or
// private address space.
func isInternalOrLocalhost(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") ||
		hostname == "0.0.0.0" ||
		strings.HasSuffix(strings.ToLower(hostname), ".local") {
		return true
	}

	ip := net.ParseIP(hostname)
	if ip == nil {
		return false
	}

	// IsPrivate covers RFC 1918 for v4 and unique-local fc00::/7 for v6.
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsUnspecified()
}
