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

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abdm-phr/phr/internal/system/database/client"
	"github.com/abdm-phr/phr/internal/system/log"
)

// ErrSessionNotFound is returned when a session holds no tokens.
var ErrSessionNotFound = errors.New("session not found")

// Store persists token pairs per session id.
type Store interface {
	Get(ctx context.Context, sessionID string) (TokenPair, error)
	Save(ctx context.Context, sessionID string, tokens TokenPair) error
	Delete(ctx context.Context, sessionID string) error
}

type dbStore struct {
	dbClient client.DBClientInterface
	logger   *log.Logger
}

// NewDBStore returns a Store backed by the session database, creating its table when missing.
func NewDBStore(dbClient client.DBClientInterface) (Store, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "SessionStore"))
	if _, err := dbClient.Execute(QueryCreateSessionTokenTable); err != nil {
		logger.Error("Failed to create session token table", log.Error(err))
		return nil, fmt.Errorf("failed to create session token table: %w", err)
	}
	return &dbStore{dbClient: dbClient, logger: logger}, nil
}

func (s *dbStore) Get(_ context.Context, sessionID string) (TokenPair, error) {
	results, err := s.dbClient.Query(QueryGetSessionToken, sessionID)
	if err != nil {
		s.logger.Error("Failed to execute query", log.Error(err))
		return TokenPair{}, fmt.Errorf("failed to execute query: %w", err)
	}
	if len(results) == 0 {
		return TokenPair{}, ErrSessionNotFound
	}
	if len(results) != 1 {
		s.logger.Error("Unexpected number of results", log.Int("resultCount", len(results)))
		return TokenPair{}, fmt.Errorf("unexpected number of results: %d", len(results))
	}

	row := results[0]
	accessToken, err := columnString(row, "access_token")
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := columnString(row, "refresh_token")
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *dbStore) Save(_ context.Context, sessionID string, tokens TokenPair) error {
	if _, err := s.dbClient.Execute(QueryUpsertSessionToken, sessionID, tokens.AccessToken,
		tokens.RefreshToken); err != nil {
		s.logger.Error("Failed to store session tokens", log.Error(err))
		return fmt.Errorf("failed to store session tokens: %w", err)
	}
	return nil
}

func (s *dbStore) Delete(_ context.Context, sessionID string) error {
	if _, err := s.dbClient.Execute(QueryDeleteSessionToken, sessionID); err != nil {
		s.logger.Error("Failed to delete session tokens", log.Error(err))
		return fmt.Errorf("failed to delete session tokens: %w", err)
	}
	return nil
}

func columnString(row map[string]interface{}, column string) (string, error) {
	switch v := row[column].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unexpected type %T for column %s", v, column)
	}
}

type memoryStore struct {
	mu     sync.RWMutex
	tokens map[string]TokenPair
}

// NewMemoryStore returns a Store that keeps tokens in process memory.
func NewMemoryStore() Store {
	return &memoryStore{tokens: make(map[string]TokenPair)}
}

func (s *memoryStore) Get(_ context.Context, sessionID string) (TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, ok := s.tokens[sessionID]
	if !ok {
		return TokenPair{}, ErrSessionNotFound
	}
	return tokens, nil
}

func (s *memoryStore) Save(_ context.Context, sessionID string, tokens TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sessionID] = tokens
	return nil
}

func (s *memoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}
