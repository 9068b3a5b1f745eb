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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/abdm-phr/phr/internal/system/config"
)

type CORSMiddlewareTestSuite struct {
	suite.Suite
}

func TestCORSMiddlewareTestSuite(t *testing.T) {
	suite.Run(t, new(CORSMiddlewareTestSuite))
}

func (suite *CORSMiddlewareTestSuite) SetupTest() {
	config.ResetRuntime()
	cfg := &config.Config{
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"https://example.com", "https://test.com"},
		},
	}
	_ = config.InitializeRuntime("/tmp", cfg)
}

func (suite *CORSMiddlewareTestSuite) TearDownTest() {
	config.ResetRuntime()
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (suite *CORSMiddlewareTestSuite) TestWithCORS() {
	opts := CORSOptions{
		AllowedMethods:   "GET, POST",
		AllowedHeaders:   "Content-Type, X-PHR-Session",
		AllowCredentials: true,
	}

	testCases := []struct {
		name            string
		origin          string
		expectedOrigin  string
		expectedMethods string
	}{
		{name: "ValidOrigin", origin: "https://example.com", expectedOrigin: "https://example.com",
			expectedMethods: "GET, POST"},
		{name: "UnknownOrigin", origin: "https://malicious.com"},
		{name: "OriginContainingAllowedOrigin", origin: "https://example.com.evil.org"},
		{name: "NoOriginHeader"},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			pattern, wrapped := WithCORS("GET /test", okHandler, opts)
			assert.Equal(suite.T(), "GET /test", pattern)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			wrapped(w, req)

			assert.Equal(suite.T(), http.StatusOK, w.Code)
			assert.Equal(suite.T(), "OK", w.Body.String())
			assert.Equal(suite.T(), tc.expectedOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(suite.T(), tc.expectedMethods, w.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func (suite *CORSMiddlewareTestSuite) TestWithCORSWithoutCredentials() {
	_, wrapped := WithCORS("GET /test", okHandler, CORSOptions{
		AllowedMethods: "GET",
		ExposedHeaders: "X-PHR-Session",
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://test.com")
	w := httptest.NewRecorder()
	wrapped(w, req)

	assert.Equal(suite.T(), "https://test.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(suite.T(), "X-PHR-Session", w.Header().Get("Access-Control-Expose-Headers"))
	assert.Empty(suite.T(), w.Header().Get("Access-Control-Allow-Credentials"))
}

func (suite *CORSMiddlewareTestSuite) TestNoAllowedOrigins() {
	config.ResetRuntime()
	_ = config.InitializeRuntime("/tmp", &config.Config{})

	_, wrapped := WithCORS("GET /test", okHandler, CORSOptions{AllowedMethods: "GET"})
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	wrapped(w, req)

	assert.Empty(suite.T(), w.Header().Get("Access-Control-Allow-Origin"))
}
