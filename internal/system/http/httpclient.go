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

// Package http provides the outbound HTTP client used to reach the PHR gateway.
package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/abdm-phr/phr/internal/system/constants"
	"github.com/abdm-phr/phr/internal/system/log"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxIdlePerHost = 16
	loggerComponentName   = "HTTPClient"
	userAgentHeaderName   = "User-Agent"
)

// UserAgent is sent on outbound requests that do not set their own.
const UserAgent = "PHR-Flow-Service/1.0"

var (
	defaultClient HTTPClientInterface
	once          sync.Once
)

// HTTPClientInterface defines the interface for HTTP client operations.
type HTTPClientInterface interface {
	// Do executes an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient fills default headers on outbound requests and logs their outcome.
type HTTPClient struct {
	client  *http.Client
	headers http.Header
	logger  *log.Logger
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithDefaultHeader sends name: value on every request that does not set name itself.
func WithDefaultHeader(name, value string) Option {
	return func(c *HTTPClient) {
		c.headers.Set(name, value)
	}
}

// NewHTTPClient creates a new HTTPClient with default settings.
func NewHTTPClient(opts ...Option) HTTPClientInterface {
	return NewHTTPClientWithTimeout(defaultTimeout, opts...)
}

// NewHTTPClientWithTimeout creates a new HTTPClient whose requests are bounded by timeout.
func NewHTTPClientWithTimeout(timeout time.Duration, opts ...Option) HTTPClientInterface {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = defaultMaxIdlePerHost
	return NewHTTPClientWithConfig(&http.Client{Timeout: timeout, Transport: transport}, opts...)
}

// NewHTTPClientWithConfig wraps an existing http.Client.
func NewHTTPClientWithConfig(client *http.Client, opts ...Option) HTTPClientInterface {
	c := &HTTPClient{
		client: client,
		headers: http.Header{
			userAgentHeaderName:        []string{UserAgent},
			constants.AcceptHeaderName: []string{constants.ContentTypeJSON},
		},
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetHTTPClient returns the default singleton HTTPClient instance.
func GetHTTPClient() HTTPClientInterface {
	once.Do(func() {
		defaultClient = NewHTTPClient()
	})
	return defaultClient
}

// Do executes an HTTP request and returns an HTTP response.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	for name, values := range c.headers {
		if req.Header.Get(name) == "" {
			req.Header[name] = values
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Outbound request failed", log.String("method", req.Method),
			log.String("host", req.URL.Host), log.String("path", req.URL.Path),
			log.Duration("elapsed", time.Since(start)), log.Error(err))
		return nil, err
	}
	c.logger.Debug("Outbound request completed", log.String("method", req.Method),
		log.String("host", req.URL.Host), log.String("path", req.URL.Path),
		log.Int("status", resp.StatusCode), log.Duration("elapsed", time.Since(start)))
	return resp, nil
}
