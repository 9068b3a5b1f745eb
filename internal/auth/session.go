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

// Package auth binds authenticated token pairs to browser sessions.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/abdm-phr/phr/internal/system/log"
)

// ErrNotAuthenticated is returned when a refresh is requested for a session without a refresh token.
var ErrNotAuthenticated = errors.New("session is not authenticated")

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (TokenPair, error)
}

// Session is the token holder of one browser session. It receives token pairs from successful
// logins and supplies bearer tokens to outbound requests.
type Session struct {
	id        string
	store     Store
	refresher Refresher
	group     *singleflight.Group
	logger    *log.Logger
}

// Manager creates sessions sharing a store, refresher and refresh deduplication.
type Manager struct {
	store     Store
	refresher Refresher
	group     singleflight.Group
}

// NewManager creates a session manager.
func NewManager(store Store, refresher Refresher) *Manager {
	return &Manager{store: store, refresher: refresher}
}

// Session returns the session with the given id.
func (m *Manager) Session(id string) *Session {
	return &Session{
		id:        id,
		store:     m.store,
		refresher: m.refresher,
		group:     &m.group,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, "Session"),
			log.String("session", log.MaskString(id))),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// OnAuthenticated stores the token pair issued for this session.
func (s *Session) OnAuthenticated(ctx context.Context, tokens TokenPair) error {
	if tokens.IsZero() {
		return errors.New("token pair has no access token")
	}
	if err := s.store.Save(ctx, s.id, tokens); err != nil {
		return err
	}
	s.logger.Debug("Session authenticated")
	return nil
}

// Token returns the current access token, or "" for an unauthenticated session.
func (s *Session) Token(ctx context.Context) (string, error) {
	tokens, err := s.store.Get(ctx, s.id)
	if errors.Is(err, ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// Authenticated reports whether the session holds tokens.
func (s *Session) Authenticated(ctx context.Context) bool {
	token, err := s.Token(ctx)
	return err == nil && token != ""
}

// Refresh exchanges the stored refresh token for a new pair. Concurrent refreshes of the same
// session share one backend call.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	v, err, shared := s.group.Do(s.id, func() (interface{}, error) {
		tokens, err := s.store.Get(ctx, s.id)
		if errors.Is(err, ErrSessionNotFound) || (err == nil && tokens.RefreshToken == "") {
			return "", ErrNotAuthenticated
		}
		if err != nil {
			return "", err
		}
		if s.refresher == nil {
			return "", fmt.Errorf("%w: no refresher configured", ErrNotAuthenticated)
		}

		refreshed, err := s.refresher.RefreshTokens(ctx, tokens.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("refresh tokens: %w", err)
		}
		if refreshed.RefreshToken == "" {
			refreshed.RefreshToken = tokens.RefreshToken
		}
		if err := s.store.Save(ctx, s.id, refreshed); err != nil {
			return "", err
		}
		return refreshed.AccessToken, nil
	})
	if err != nil {
		s.logger.Debug("Token refresh failed", log.Error(err))
		return "", err
	}
	s.logger.Debug("Token refreshed", log.Bool("shared", shared))
	return v.(string), nil
}

// Logout forgets the session tokens.
func (s *Session) Logout(ctx context.Context) error {
	return s.store.Delete(ctx, s.id)
}
