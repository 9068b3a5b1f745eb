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

// Package authmock provides testify mocks for token handling collaborators.
package authmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/abdm-phr/phr/internal/auth"
)

// TokenSourceMock is a mock of request.TokenSource.
type TokenSourceMock struct {
	mock.Mock
}

// Token mocks the Token method.
func (m *TokenSourceMock) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Refresh mocks the Refresh method.
func (m *TokenSourceMock) Refresh(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// AuthHandlerMock is a mock of the global authentication handler.
type AuthHandlerMock struct {
	mock.Mock
}

// OnAuthenticated mocks the OnAuthenticated method.
func (m *AuthHandlerMock) OnAuthenticated(ctx context.Context, tokens auth.TokenPair) error {
	args := m.Called(ctx, tokens)
	return args.Error(0)
}
