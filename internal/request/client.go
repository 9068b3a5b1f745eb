/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package request

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

	"github.com/abdm-phr/phr/internal/system/constants"
	httpservice "github.com/abdm-phr/phr/internal/system/http"
	"github.com/abdm-phr/phr/internal/system/log"
)

const loggerComponentName = "RequestClient"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// TokenSource supplies bearer tokens for outbound requests.
type TokenSource interface {
	// Token returns the current access token, or "" when unauthenticated.
	Token(ctx context.Context) (string, error)
	// Refresh obtains a new access token after the backend rejected the current one.
	Refresh(ctx context.Context) (string, error)
}

// Client sends typed requests to the PHR backend.
type Client struct {
	baseURL    string
	httpClient httpservice.HTTPClientInterface
	tokens     TokenSource
	logger     *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTokenSource attaches bearer tokens from ts and refreshes them once on 401.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, httpClient httpservice.HTTPClientInterface, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = httpservice.GetHTTPClient()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a copy of the client that authenticates with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	clone := *c
	clone.tokens = ts
	return &clone
}

// QueryOptions controls a query.
type QueryOptions struct {
	PathParams map[string]string
	Params     url.Values
	// Debounce delays dispatch; a cancelled context during the delay aborts the query.
	Debounce time.Duration
}

// MutateOptions controls a mutation.
type MutateOptions struct {
	PathParams map[string]string
}

// Query performs a GET-style request for route.
func Query[Req, Resp any](ctx context.Context, c *Client, route Route[Req, Resp],
	opts QueryOptions) (Resp, error) {
	var resp Resp

	if opts.Debounce > 0 {
		timer := time.NewTimer(opts.Debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return resp, context.Cause(ctx)
		case <-timer.C:
		}
	}

	path, err := route.Expand(opts.PathParams)
	if err != nil {
		return resp, err
	}
	if len(opts.Params) > 0 {
		path += "?" + opts.Params.Encode()
	}

	err = c.send(ctx, route.Method, path, nil, &resp)
	return resp, err
}

// Mutate sends body to route and decodes the typed response.
func Mutate[Req, Resp any](ctx context.Context, c *Client, route Route[Req, Resp], body Req,
	opts MutateOptions) (Resp, error) {
	var resp Resp

	path, err := route.Expand(opts.PathParams)
	if err != nil {
		return resp, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return resp, fmt.Errorf("encode request body for %s: %w", route, err)
	}

	err = c.send(ctx, route.Method, path, payload, &resp)
	return resp, err
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	status, body, err := c.do(ctx, method, path, payload, false)
	if err == nil && status == http.StatusUnauthorized && c.tokens != nil {
		c.logger.Debug("Access token rejected, refreshing", log.String("path", path))
		if _, refreshErr := c.tokens.Refresh(ctx); refreshErr != nil {
			c.logger.Debug("Token refresh failed", log.Error(refreshErr))
		} else {
			status, body, err = c.do(ctx, method, path, payload, true)
		}
	}
	if err != nil {
		return err
	}

	if status < 200 || status > 299 {
		httpErr := &HTTPError{StatusCode: status}
		if len(bytes.TrimSpace(body)) > 0 {
			if jsonErr := json.Unmarshal(body, &httpErr.Cause); jsonErr != nil {
				httpErr.Cause.Detail = strings.TrimSpace(string(body))
			}
		}
		return httpErr
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte,
	replay bool) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set(constants.AcceptHeaderName, constants.ContentTypeJSON)
	if payload != nil {
		req.Header.Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return 0, nil, fmt.Errorf("obtain access token: %w", err)
		}
		if token != "" {
			req.Header.Set(constants.AuthorizationHeaderName, constants.TokenTypeBearer+" "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, context.Cause(ctx)
		}
		c.logger.Debug("Request failed without response", log.String("method", method),
			log.String("path", path), log.Error(err))
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var src io.Reader = resp.Body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		src = io.LimitReader(resp.Body, maxErrorBody)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, context.Cause(ctx)
		}
		return 0, nil, fmt.Errorf("%w: read response of %s %s: %w", ErrNetwork, method, path, err)
	}

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("Request completed", log.String("method", method), log.String("path", path),
			log.Int("status", resp.StatusCode), log.Bool("replay", replay),
			log.Duration("elapsed", time.Since(start)))
	}
	return resp.StatusCode, body, nil
}
