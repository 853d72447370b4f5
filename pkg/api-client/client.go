// Package apiclient talks to the profile REST API.
//
// Every failure is returned as an *Error, classified once here so the rest of the
// cache only deals with the three kinds of Kind. Identical GET requests that overlap
// in time share a single round trip.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout is applied to every request unless configured otherwise.
const DefaultTimeout = 15 * time.Second

type Config struct {
	// Base URL of the API, e.g. `https://api.example.com/api`.
	BaseURL string
	// Timeout of a single request, including reading the body.
	Timeout time.Duration
	// Header fields added to every request.
	Header http.Header
	// HTTP client to use. http.DefaultClient is used if nil.
	HTTPClient *http.Client
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	header     http.Header
	httpClient *http.Client
	log        zerolog.Logger
	gets       singleflight.Group
}

// New creates a client for the API at config.BaseURL.
func New(config Config) (*Client, error) {
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q is not absolute", config.BaseURL)
	}

	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(u.String(), "/"),
		timeout:    config.Timeout,
		header:     config.Header.Clone(),
		httpClient: config.HTTPClient,
		log:        logger.With().Str("api", u.Host).Logger(),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// GetUser fetches the raw profile payload of a user.
func (c *Client) GetUser(ctx context.Context, id string) ([]byte, error) {
	return c.get(ctx, "/user/"+url.PathEscape(id))
}

// GetUsers fetches the raw payload of the user list.
func (c *Client) GetUsers(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/users/")
}

// UpdateProfile writes a profile patch.
func (c *Client) UpdateProfile(ctx context.Context, id string, patch any) error {
	_, err := c.Send(ctx, http.MethodPut, "/updateprofile/"+url.PathEscape(id), patch)
	return err
}

// get shares one request among concurrent callers of the same path.
// The shared request is not bound to any single caller's context; each
// caller stops waiting when its own context is done.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	detached := context.WithoutCancel(ctx)
	results := c.gets.DoChan(path, func() (interface{}, error) {
		return c.Send(detached, http.MethodGet, path, nil)
	})
	select {
	case <-ctx.Done():
		return nil, networkError(ctx.Err())
	case res := <-results:
		if res.Shared {
			c.log.Trace().Str("path", path).Msg("Shared in-flight request")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Send performs a request against the API and returns the response body.
// A non-nil body is sent as JSON. The path must start with a slash.
func (c *Client) Send(ctx context.Context, method, path string, body any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, unexpectedError(fmt.Errorf("encode body: %w", err))
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, unexpectedError(err)
	}
	for name, values := range c.header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log := c.log.With().Str("method", method).Str("path", path).Logger()
	log.Trace().Msg("Requesting API")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("No response from API")
		return nil, networkError(err)
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read API response")
		return nil, networkError(err)
	}
	log.Debug().
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Int("bytes", len(resBody)).
		Msg("API response")

	if res.StatusCode >= http.StatusBadRequest {
		return nil, serverError(res.StatusCode, resBody)
	}
	return resBody, nil
}
