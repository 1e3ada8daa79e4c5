package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"igdmbot/pkg/errors"
	"igdmbot/pkg/logger"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// errorDecoder turns a non-2xx response into a typed error.
type errorDecoder func(status int, body []byte) error

// Client is the HTTP transport shared by both gateway bindings. It carries
// default headers and a cookie set that is updated from every response.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     logger.Logger
	decodeErr  errorDecoder

	mu      sync.RWMutex
	headers map[string]string
	cookies map[string]string
}

// NewClient creates a new client rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    log,
		decodeErr: statusError,
		headers: map[string]string{
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
		},
		cookies: make(map[string]string),
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(h *http.Client) {
	c.httpClient = h
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetHeaders sets multiple headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range headers {
		c.headers[key] = value
	}
}

// SetCookie sets a cookie sent with every request.
func (c *Client) SetCookie(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.cookies, name)
		return
	}
	c.cookies[name] = value
}

// Cookie returns a cookie value or "".
func (c *Client) Cookie(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cookies[name]
}

// ClearCookies drops all cookies.
func (c *Client) ClearCookies() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = make(map[string]string)
}

func (c *Client) url(path string, query url.Values) string {
	u := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		u = c.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + query.Encode()
	}
	return u
}

// doRequest performs an HTTP request with the configured headers and cookies
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}
	if len(c.cookies) > 0 {
		parts := make([]string, 0, len(c.cookies))
		for name, value := range c.cookies {
			parts = append(parts, name+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(parts, "; "))
	}
	c.mu.RUnlock()

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    redactURL(req.URL),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      redactURL(req.URL),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "network error")
	}

	c.mu.Lock()
	for _, ck := range resp.Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" || ck.Value == `""` {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck.Value
	}
	c.mu.Unlock()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      redactURL(req.URL),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// do sends a request and decodes a JSON response into target (which may be
// nil). The raw body is returned for callers that inspect login payloads.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, target interface{}) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, query), body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to create request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeNetwork, err, "failed to read response body").WithCode(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := c.decodeErr(resp.StatusCode, data)
		c.logger.WarnWithFields("API error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    redactURL(req.URL),
			"error":  apiErr.Error(),
		})
		return data, apiErr
	}

	if target != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, target); err != nil {
			c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
				"url":          redactURL(req.URL),
				"status":       resp.StatusCode,
				"error":        err.Error(),
				"body_preview": preview(data),
			})
			return data, errors.Wrap(errors.ErrorTypeParsing, err, "failed to parse JSON").WithCode(resp.StatusCode)
		}
	}
	return data, nil
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, target interface{}) error {
	_, err := c.do(ctx, http.MethodGet, path, query, nil, "", target)
	return err
}

// PostForm posts url-encoded form values and decodes the JSON response
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, target interface{}) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, nil, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", target)
}

// PostJSON posts a JSON body and decodes the JSON response
func (c *Client) PostJSON(ctx context.Context, path string, payload, target interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeUnknown, err, "failed to encode request")
	}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(body), "application/json", target)
}

// statusError maps a status code and body to a typed error. Message hints in
// the body take precedence so that challenge and second factor responses
// are classified correctly whatever their status.
func statusError(status int, body []byte) error {
	msg := bodyMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	hinted := errors.Classify(errors.New(errors.ErrorTypeUnknown, msg))

	var errType errors.ErrorType
	switch {
	case hinted != errors.ErrorTypeUnknown:
		errType = hinted
	case status == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case status == http.StatusUnauthorized:
		errType = errors.ErrorTypeInvalidCredentials
	case status == http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	case status >= 500:
		errType = errors.ErrorTypeServerError
	default:
		errType = errors.ErrorTypeUnknown
	}
	return errors.New(errType, msg).WithCode(status)
}

// bodyMessage extracts a human readable message from an API error body.
func bodyMessage(body []byte) string {
	var payload struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
		Error     *struct {
			Message string `json:"message"`
		} `json:"error"`
		TwoFactorRequired bool `json:"two_factor_required"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return preview(body)
	}

	var parts []string
	if payload.TwoFactorRequired {
		parts = append(parts, "two_factor_required")
	}
	for _, p := range []string{payload.ErrorType, payload.Message} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if payload.Error != nil && payload.Error.Message != "" {
		parts = append(parts, payload.Error.Message)
	}
	return strings.Join(parts, ": ")
}

func preview(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// redactURL hides token query parameters in logs.
func redactURL(u *url.URL) string {
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		cp := *u
		cp.RawQuery = q.Encode()
		return cp.String()
	}
	return u.String()
}

func checkStatusOK(status, message string) error {
	if status == "" || status == "ok" {
		return nil
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %q", status)
	}
	return errors.New(errors.Classify(errors.New(errors.ErrorTypeUnknown, message)), message)
}
