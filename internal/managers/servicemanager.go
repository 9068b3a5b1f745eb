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

// Package managers wires the server components together and registers their routes.
package managers

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/flowexec"
	"github.com/abdm-phr/phr/internal/phr"
	"github.com/abdm-phr/phr/internal/request"
	"github.com/abdm-phr/phr/internal/system/config"
	"github.com/abdm-phr/phr/internal/system/database/provider"
	"github.com/abdm-phr/phr/internal/system/healthcheck"
	httpservice "github.com/abdm-phr/phr/internal/system/http"
	"github.com/abdm-phr/phr/internal/system/log"
	"github.com/abdm-phr/phr/internal/system/metrics"
)

const flowCleanupInterval = 30 * time.Second

var _ ServiceManagerInterface = (*ServiceManager)(nil)

// ServiceManagerInterface defines the lifecycle of the registered services.
type ServiceManagerInterface interface {
	RegisterServices(ctx context.Context) error
	Shutdown()
}

// ServiceManager builds the flow services and registers them on the mux.
type ServiceManager struct {
	mux         *http.ServeMux
	config      *config.Config
	httpClient  httpservice.HTTPClientInterface
	dbProvider  provider.DBProviderInterface
	flowService flowexec.FlowExecServiceInterface
	logger      *log.Logger
}

// NewServiceManager creates a new instance of ServiceManager.
func NewServiceManager(mux *http.ServeMux, cfg *config.Config) *ServiceManager {
	return &ServiceManager{
		mux:        mux,
		config:     cfg,
		httpClient: httpservice.NewHTTPClientWithTimeout(cfg.GatewayTimeout()),
		logger:     log.GetLogger().With(log.String(log.LoggerKeyComponentName, "ServiceManager")),
	}
}

// WithHTTPClient replaces the client used to reach the PHR gateway.
func (sm *ServiceManager) WithHTTPClient(client httpservice.HTTPClientInterface) *ServiceManager {
	sm.httpClient = client
	return sm
}

// RegisterServices registers the flow, health and metrics endpoints and starts
// the flow cleanup loop, which runs until ctx is cancelled.
func (sm *ServiceManager) RegisterServices(ctx context.Context) error {
	store := sm.sessionStore()

	api := phr.NewAPI(request.NewClient(sm.config.Gateway.BaseURL, sm.httpClient))
	sm.flowService = flowexec.Initialize(sm.mux, flowexec.Config{
		API:      api,
		Sessions: auth.NewManager(store, api),
		Options: phr.Options{
			ResendInterval:  sm.config.OTP.ResendInterval,
			CodeLength:      sm.config.OTP.CodeLength,
			PollInterval:    sm.config.PollInterval(),
			WatchdogTimeout: sm.config.WatchdogTimeout(),
			SearchDebounce:  sm.config.SearchDebounce(),
			Metrics:         metrics.GetMetrics(),
		},
		CacheSize: sm.config.Flow.CacheSize,
		TTL:       sm.config.FlowTTL(),
	})
	go sm.flowService.RunCleanup(ctx, flowCleanupInterval)

	healthcheck.Register(sm.mux, &healthcheck.Service{DBProvider: sm.dbProvider})
	sm.mux.Handle("GET /metrics", promhttp.Handler())
	return nil
}

// sessionStore opens the session database, falling back to memory when it is
// not configured or cannot be reached.
func (sm *ServiceManager) sessionStore() auth.Store {
	if sm.config.Database.Session.Type == "" {
		sm.logger.Info("Session database is not configured, keeping sessions in memory")
		return auth.NewMemoryStore()
	}
	dbProvider := provider.GetDBProvider()
	dbClient, err := dbProvider.GetDBClient(provider.SessionDB)
	if err != nil {
		sm.logger.Warn("Failed to open session database, keeping sessions in memory", log.Error(err))
		return auth.NewMemoryStore()
	}
	store, err := auth.NewDBStore(dbClient)
	if err != nil {
		sm.logger.Warn("Failed to prepare session store, keeping sessions in memory", log.Error(err))
		return auth.NewMemoryStore()
	}
	sm.dbProvider = dbProvider
	return store
}

// Shutdown closes the running flows and the database connections.
func (sm *ServiceManager) Shutdown() {
	if sm.flowService != nil {
		sm.flowService.Shutdown()
	}
	if sm.dbProvider != nil {
		if err := sm.dbProvider.Close(); err != nil {
			sm.logger.Error("Failed to close database connections", log.Error(err))
		}
	}
}
