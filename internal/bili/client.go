// Package bili speaks the bilibili web API: favorites enumeration,
// playback-info resolution and the error taxonomy shared by the pipeline.
package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	APIBaseURL = "https://api.bilibili.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"
	referer   = "https://www.bilibili.com"

	// Standard page size of the paginated favorites endpoints.
	pageSize = 20
)

type Client struct {
	BaseURL string
	Cookie  string
	HTTP    *http.Client

	// Budget for 412 precondition-failed responses, which the platform
	// uses as an anti-automation throttle. Independent of the transient
	// retry budget below.
	Retry412Max   int
	Retry412Delay time.Duration

	// Budget for connection failures and retryable statuses (429, 5xx).
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Pause between consecutive page requests.
	RequestInterval time.Duration

	logger *log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewClient(cookie string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		BaseURL:        APIBaseURL,
		Cookie:         cookie,
		HTTP:           &http.Client{Timeout: 60 * time.Second},
		Retry412Max:    3,
		Retry412Delay:  120 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		logger:         logger.WithPrefix("bili"),
		sleep:          sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// RequestHeaders returns the headers the platform requires on both API
// and CDN requests.
func (c *Client) RequestHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Referer", referer)
	h.Set("Origin", referer)
	h.Set("Cookie", c.Cookie)
	h.Set("X-Requested-With", "com.bilibili.app")
	return h
}

// UserID extracts the authenticated user's id from the DedeUserID cookie.
func (c *Client) UserID() (string, error) {
	for _, part := range strings.Split(c.Cookie, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && name == "DedeUserID" && value != "" {
			return value, nil
		}
	}
	return "", newError(ErrKindAuth, "cookie is missing DedeUserID")
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// getJSON performs an authenticated GET against the API and decodes the
// response envelope into out. A 412 status is retried after
// Retry412Delay, up to Retry412Max times.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.BaseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var retries412, netRetries int
	for {
		env, status, err := c.doRequest(ctx, reqURL)
		if err != nil || retryableStatus(status) {
			if err == nil {
				err = fmt.Errorf("unexpected status %d", status)
			}
			netRetries++
			if netRetries > c.MaxRetries {
				return wrapError(ErrKindNetwork, "api request failed", err)
			}
			delay := c.RetryBaseDelay << uint(netRetries-1)
			c.logger.Warnf("request failed, retrying in %s (%d/%d): %v", delay, netRetries, c.MaxRetries, err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return serr
			}
			continue
		}
		if status == http.StatusPreconditionFailed {
			retries412++
			if retries412 > c.Retry412Max {
				return newError(ErrKindRateLimited, fmt.Sprintf("got 412 %d times for %s", retries412, path))
			}
			c.logger.Warnf("got 412, waiting %s before retry (%d/%d)", c.Retry412Delay, retries412, c.Retry412Max)
			if err := c.sleep(ctx, c.Retry412Delay); err != nil {
				return err
			}
			continue
		}
		if status != http.StatusOK {
			return newError(ErrKindAPI, fmt.Sprintf("unexpected status %d for %s", status, path))
		}

		switch env.Code {
		case 0:
		case -101, -111:
			return newError(ErrKindAuth, fmt.Sprintf("session rejected: %s", env.Message))
		default:
			return newError(ErrKindAPI, fmt.Sprintf("api error %d: %s", env.Code, env.Message))
		}
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return wrapError(ErrKindAPI, "failed to parse response data", err)
		}
		return nil
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) doRequest(ctx context.Context, reqURL string) (env apiEnvelope, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return env, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = c.RequestHeaders()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return env, 0, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", cerr)
		}
	}()

	if resp.StatusCode == http.StatusOK {
		if derr := json.NewDecoder(resp.Body).Decode(&env); derr != nil {
			return env, resp.StatusCode, fmt.Errorf("failed to parse response: %w", derr)
		}
	}
	return env, resp.StatusCode, nil
}

// ValidateCookie checks the stored cookie against the navigation
// endpoint, which reports whether the session is logged in.
func (c *Client) ValidateCookie(ctx context.Context) error {
	var nav struct {
		IsLogin bool   `json:"isLogin"`
		Uname   string `json:"uname"`
	}
	if err := c.getJSON(ctx, "/x/web-interface/nav", nil, &nav); err != nil {
		return err
	}
	if !nav.IsLogin {
		return newError(ErrKindAuth, "cookie is not logged in")
	}
	c.logger.Infof("cookie is valid for user %q", nav.Uname)
	return nil
}

func baseParams() url.Values {
	params := make(url.Values)
	params.Set("platform", "web")
	params.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))
	return params
}
