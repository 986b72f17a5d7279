package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// ErrorType classifies adapter failures.
type ErrorType string

const (
	ErrorClient        ErrorType = "client_error"
	ErrorServer        ErrorType = "server_error"
	ErrorRateLimit     ErrorType = "rate_limit"
	ErrorValidation    ErrorType = "validation_error"
	ErrorContentFilter ErrorType = "content_filter"
	ErrorNetwork       ErrorType = "network_error"
	ErrorTimeout       ErrorType = "timeout_error"
	ErrorUnknown       ErrorType = "unknown"
)

// HTTPError is returned when the target API refuses or fails a query.
type HTTPError struct {
	Message    string
	StatusCode int
	Type       ErrorType
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// APIResponse is a parsed response from the target API.
type APIResponse struct {
	Content      string
	Metadata     map[string]any
	StatusCode   int
	Success      bool
	ErrorType    ErrorType
	ErrorMessage string
}

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxResponseBytes  = 1 << 20
)

// Adapter sends prompts to a single LLM backend described by a Config.
// Safe for concurrent use.
type Adapter struct {
	cfg        Config
	client     *http.Client
	maxRetries int
}

// New builds an Adapter from a resolved Config. Endpoint parameters honored:
// timeout (seconds), verify_ssl, max_retries.
func New(cfg Config) *Adapter {
	timeout := defaultTimeout
	if v, ok := intParam(cfg.Endpoint.Parameters, "timeout"); ok {
		timeout = time.Duration(v) * time.Second
	}
	maxRetries := defaultMaxRetries
	if v, ok := intParam(cfg.Endpoint.Parameters, "max_retries"); ok {
		maxRetries = v
	}

	var transport http.RoundTripper
	if verify, ok := cfg.Endpoint.Parameters["verify_ssl"].(bool); ok && !verify {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Adapter{
		cfg:        cfg,
		maxRetries: maxRetries,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newAuthTransport(transport, cfg),
		},
	}
}

// Config returns the adapter's resolved configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Model returns the configured default model name, if any.
func (a *Adapter) Model() string {
	s, _ := a.cfg.Request.ModelParameters.Model.Default.(string)
	return s
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Query sends a prompt to the target and returns the parsed response.
// Overrides in opts are keyed by logical parameter name (temperature,
// max_tokens, top_p, model, stream) or raw payload field. Transient network
// and server errors are retried with capped exponential backoff.
func (a *Adapter) Query(ctx context.Context, userPrompt, systemPrompt string, opts map[string]any) (*APIResponse, error) {
	payload, err := a.buildPayload(userPrompt, systemPrompt, opts)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if backoff > 8*time.Second {
				backoff = 8 * time.Second
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := a.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			if retryable(err) {
				continue
			}
			return nil, err
		}

		result := a.parseResponse(resp.status, resp.body)
		if result.Success {
			return result, nil
		}

		herr := &HTTPError{
			Message:    result.ErrorMessage,
			StatusCode: result.StatusCode,
			Type:       result.ErrorType,
		}
		lastErr = herr
		if herr.Type == ErrorServer || herr.Type == ErrorRateLimit {
			continue
		}
		return result, herr
	}
	return nil, lastErr
}

type rawResponse struct {
	status int
	body   []byte
}

func (a *Adapter) doRequest(ctx context.Context, body []byte) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, a.cfg.Endpoint.Method, a.cfg.Endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &HTTPError{Message: err.Error(), Type: ErrorTimeout}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &HTTPError{Message: err.Error(), Type: ErrorTimeout}
		}
		return nil, &HTTPError{Message: err.Error(), Type: ErrorNetwork}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &HTTPError{Message: fmt.Sprintf("read body: %v", err), Type: ErrorNetwork}
	}
	return &rawResponse{status: resp.StatusCode, body: data}, nil
}

func retryable(err error) bool {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Type == ErrorNetwork || herr.Type == ErrorTimeout
	}
	return false
}

// buildPayload assembles the request body from the template and overrides.
func (a *Adapter) buildPayload(userPrompt, systemPrompt string, opts map[string]any) (map[string]any, error) {
	if userPrompt == "" {
		return nil, fmt.Errorf("user prompt is empty")
	}

	var messages []map[string]string

	sys := a.cfg.Request.SystemPrompt
	if systemPrompt != "" || !sys.Optional {
		role := sys.Role
		if role == "" {
			role = "system"
		}
		messages = append(messages, map[string]string{"role": role, "content": systemPrompt})
	}

	userRole := a.cfg.Request.UserPrompt.Role
	if userRole == "" {
		userRole = "user"
	}
	messages = append(messages, map[string]string{"role": userRole, "content": userPrompt})

	payload := map[string]any{"messages": messages}

	params := map[string]ParamSpec{
		"temperature": a.cfg.Request.ModelParameters.Temperature,
		"max_tokens":  a.cfg.Request.ModelParameters.MaxTokens,
		"top_p":       a.cfg.Request.ModelParameters.TopP,
		"model":       a.cfg.Request.ModelParameters.Model,
		"stream":      a.cfg.Request.ModelParameters.Stream,
	}
	for name, spec := range params {
		field := spec.Field
		if field == "" {
			field = name
		}
		value := spec.Default
		if v, ok := opts[name]; ok {
			value = v
		}
		if value != nil {
			payload[field] = value
		}
	}

	// Pass through any extra fields the test payload carries.
	for key, value := range opts {
		if _, known := params[key]; !known {
			payload[key] = value
		}
	}

	return payload, nil
}

// parseResponse interprets a raw response through the response template.
func (a *Adapter) parseResponse(status int, body []byte) *APIResponse {
	var data any
	jsonOK := json.Unmarshal(body, &data) == nil

	successCodes := a.cfg.Response.ErrorCodes["success"]
	if len(successCodes) == 0 {
		successCodes = []int{http.StatusOK}
	}

	if containsInt(successCodes, status) && jsonOK {
		content := ""
		if v := extractPath(data, a.cfg.Response.ContentPath); v != nil {
			content = fmt.Sprintf("%v", v)
		}
		metadata := make(map[string]any)
		for key, path := range a.cfg.Response.Metadata {
			metadata[key] = extractPath(data, path)
		}
		return &APIResponse{
			Content:    content,
			Metadata:   metadata,
			StatusCode: status,
			Success:    true,
		}
	}

	errType, errMsg := a.classifyError(status, string(body))
	return &APIResponse{
		StatusCode:   status,
		Success:      false,
		ErrorType:    errType,
		ErrorMessage: errMsg,
	}
}

// classifyError maps a status code and body onto an ErrorType using the
// response template's code and message tables.
func (a *Adapter) classifyError(status int, body string) (ErrorType, string) {
	msg := truncate(body, 200)
	lower := strings.ToLower(msg)

	for name, codes := range a.cfg.Response.ErrorCodes {
		if name == "success" || !containsInt(codes, status) {
			continue
		}
		// Client errors are refined by the configured message tables.
		if name == string(ErrorClient) {
			for _, m := range a.cfg.Response.ErrorMessages[string(ErrorValidation)] {
				if strings.Contains(lower, strings.ToLower(m)) {
					return ErrorValidation, msg
				}
			}
			for _, m := range a.cfg.Response.ErrorMessages[string(ErrorContentFilter)] {
				if strings.Contains(lower, strings.ToLower(m)) {
					return ErrorContentFilter, msg
				}
			}
		}
		switch name {
		case string(ErrorClient), string(ErrorServer), string(ErrorRateLimit),
			string(ErrorValidation), string(ErrorContentFilter):
			return ErrorType(name), msg
		}
	}

	// Fall back on standard HTTP semantics when the template is silent.
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorRateLimit, msg
	case status >= 500:
		return ErrorServer, msg
	case status >= 400:
		return ErrorClient, msg
	}
	return ErrorUnknown, msg
}

// extractPath reads a value out of decoded JSON using the template's dotted
// path grammar ("choices[0].message.content").
func extractPath(data any, path string) any {
	if path == "" {
		return nil
	}
	if path[0] != '$' {
		path = "$." + path
	}
	v, err := jsonpath.Get(path, data)
	if err != nil {
		return nil
	}
	return v
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
