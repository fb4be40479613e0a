// Package moodle talks to the Moodle REST web services and turns their
// answers into the texts shown for each menu topic.
package moodle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	domerrors "github.com/garyellow/moodle-linebot-go/internal/errors"
	"github.com/garyellow/moodle-linebot-go/internal/logger"
	"github.com/garyellow/moodle-linebot-go/internal/metrics"
)

// ClientConfig describes the web-service endpoint and the REST account used to obtain a token.
type ClientConfig struct {
	BaseURL    string
	WSPath     string
	LoginPath  string
	RestFormat string
	Service    string
	Username   string
	Password   string

	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
}

// Client is an HTTP client for the Moodle web-service API.
// The REST token is fetched lazily, shared by all calls and refetched once
// when Moodle reports it as invalid.
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	metrics    *metrics.Metrics
	log        *logger.Logger

	mu    sync.RWMutex
	token string
	group singleflight.Group
}

// NewClient creates a new Moodle client. metrics and log may be nil.
func NewClient(cfg ClientConfig, m *metrics.Metrics, log *logger.Logger) *Client {
	if cfg.RestFormat == "" {
		cfg.RestFormat = "json"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log == nil {
		log = logger.NewWithWriter("error", io.Discard)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:     cfg,
		metrics: m,
		log:     log.WithModule("moodle"),
	}
}

// Token returns the cached web-service token, fetching it when absent.
// Concurrent callers share a single login request. The request runs detached
// from any caller with its own deadline; each caller stops waiting on its own ctx.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		c.mu.RLock()
		cached := c.token
		c.mu.RUnlock()
		if cached != "" {
			return cached, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.tokenTimeout())
		defer cancel()
		fresh, err := c.fetchToken(fetchCtx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = fresh
		c.mu.Unlock()
		return fresh, nil
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch token: %w", ctx.Err())
	case res := <-ch:
		if res.Shared && c.metrics != nil {
			c.metrics.RecordSingleflightDedup("moodle_token")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// tokenTimeout bounds one token fetch including its retries.
func (c *Client) tokenTimeout() time.Duration {
	attempts := time.Duration(c.cfg.MaxRetries + 1)
	return attempts*c.cfg.Timeout + (attempts-1)*c.cfg.MaxDelay
}

// Ready reports whether Moodle answers web-service calls right now.
// It calls core_webservice_get_site_info, fetching a token first if needed.
func (c *Client) Ready(ctx context.Context) error {
	return c.Call(ctx, "core_webservice_get_site_info", nil, nil)
}

// invalidateToken drops the cached token if it is still the one that failed.
func (c *Client) invalidateToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("username", c.cfg.Username)
	q.Set("password", c.cfg.Password)
	q.Set("service", c.cfg.Service)
	endpoint := c.cfg.BaseURL + c.cfg.LoginPath

	body, err := c.get(ctx, endpoint, q)
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordTokenRefresh()
	}

	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return "", &domerrors.MoodleError{
			Function:  "token",
			ErrorCode: gjson.GetBytes(body, "errorcode").String(),
			Message:   gjson.GetBytes(body, "error").String(),
		}
	}

	c.log.Info("Moodle REST token obtained")
	return token, nil
}

// Call invokes a web-service function and decodes the JSON answer into out.
// An exception payload is returned as *errors.MoodleError; HTTP failures as *errors.TransportError.
func (c *Client) Call(ctx context.Context, function string, params url.Values, out any) error {
	start := time.Now()
	body, err := c.call(ctx, function, params)
	if err != nil {
		var status string
		if _, ok := domerrors.AsMoodleError(err); ok {
			status = "exception"
		} else {
			status = "error"
		}
		c.record(function, status, start)
		return err
	}

	if out != nil {
		if err := decodeJSON(body, out); err != nil {
			c.record(function, "error", start)
			return fmt.Errorf("decode %s: %w", function, err)
		}
	}
	c.record(function, "success", start)
	return nil
}

func (c *Client) call(ctx context.Context, function string, params url.Values) ([]byte, error) {
	// One extra round when the token turns out to be invalid
	for attempt := 0; ; attempt++ {
		token, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}

		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("moodlewsrestformat", c.cfg.RestFormat)
		q.Set("wstoken", token)
		q.Set("wsfunction", function)

		body, err := c.get(ctx, c.cfg.BaseURL+c.cfg.WSPath, q)
		if err != nil {
			return nil, err
		}

		if gjson.GetBytes(body, "exception").Exists() {
			me := &domerrors.MoodleError{
				Function:  function,
				Exception: gjson.GetBytes(body, "exception").String(),
				ErrorCode: gjson.GetBytes(body, "errorcode").String(),
				Message:   gjson.GetBytes(body, "message").String(),
			}
			if me.IsInvalidToken() && attempt == 0 {
				c.log.WithField("function", function).Warn("Moodle token rejected, refreshing")
				c.invalidateToken(token)
				continue
			}
			return nil, me
		}
		return body, nil
	}
}

// get performs a GET with retries and returns the (decompressed) body.
// 429 and 5xx are retried with exponential backoff; other non-2xx stop at once.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("Accept-Encoding", "gzip")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return domerrors.NewTransportError(endpoint, 0, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				terr := domerrors.NewTransportError(endpoint, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
				if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
					return terr
				}
				return retry.Unrecoverable(terr)
			}

			b, err := readBody(resp)
			if err != nil {
				return domerrors.NewTransportError(endpoint, resp.StatusCode, err)
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.cfg.MaxRetries)+1),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(c.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithError(err).WithField("attempt", n+1).Warn("Retrying Moodle request")
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress gzip: %w", err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	}
	return io.ReadAll(reader)
}

func (c *Client) record(function, status string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordMoodleRequest(function, status, time.Since(start).Seconds())
	}
}
