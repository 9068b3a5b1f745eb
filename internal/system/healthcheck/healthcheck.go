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

// Package healthcheck serves the liveness and readiness probes of the server.
package healthcheck

import (
	"encoding/json"
	"net/http"

	"github.com/abdm-phr/phr/internal/system/constants"
	dbmodel "github.com/abdm-phr/phr/internal/system/database/model"
	"github.com/abdm-phr/phr/internal/system/database/provider"
	"github.com/abdm-phr/phr/internal/system/log"
)

// Status represents the status of the server or one of its dependencies.
type Status string

const (
	// StatusUp means the service is reachable.
	StatusUp Status = "UP"
	// StatusDown means the service is unreachable.
	StatusDown Status = "DOWN"
)

// ServiceStatus is the status of a single dependency.
type ServiceStatus struct {
	ServiceName string `json:"service_name"`
	Status      Status `json:"status"`
}

// ServerStatus is the aggregated readiness of the server.
type ServerStatus struct {
	Status        Status          `json:"status"`
	ServiceStatus []ServiceStatus `json:"service_status"`
}

var querySessionDBTable = dbmodel.DBQuery{
	ID:    "HLC-00001",
	Query: "SELECT SESSION_ID FROM SESSION_TOKEN WHERE 1 = 0",
}

// Service checks the dependencies the server needs to accept traffic.
type Service struct {
	// DBProvider is nil when sessions are kept in memory.
	DBProvider provider.DBProviderInterface
}

// CheckReadiness checks the readiness of the server and its dependencies.
func (s *Service) CheckReadiness() ServerStatus {
	if s.DBProvider == nil {
		return ServerStatus{Status: StatusUp, ServiceStatus: []ServiceStatus{}}
	}
	sessionDB := ServiceStatus{
		ServiceName: "SessionDB",
		Status:      s.checkDatabaseStatus(provider.SessionDB, querySessionDBTable),
	}
	return ServerStatus{Status: sessionDB.Status, ServiceStatus: []ServiceStatus{sessionDB}}
}

// checkDatabaseStatus runs the probe query against the named database.
// The client is shared with the session store so it is left open.
func (s *Service) checkDatabaseStatus(dbName string, query dbmodel.DBQuery) Status {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "HealthCheckService"))

	dbClient, err := s.DBProvider.GetDBClient(dbName)
	if err != nil {
		logger.Error("Failed to get database client", log.Error(err))
		return StatusDown
	}
	if _, err := dbClient.Query(query); err != nil {
		logger.Error("Failed to execute query", log.Error(err))
		return StatusDown
	}
	return StatusUp
}

// Handler serves the health check endpoints.
type Handler struct {
	Service *Service
}

// HandleLivenessRequest reports that the process is serving requests.
func (h *Handler) HandleLivenessRequest(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleReadinessRequest reports whether the server dependencies are reachable.
func (h *Handler) HandleReadinessRequest(w http.ResponseWriter, _ *http.Request) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, "HealthCheckHandler"))

	status := h.Service.CheckReadiness()
	w.Header().Set(constants.ContentTypeHeaderName, constants.ContentTypeJSON)
	if status.Status != StatusUp {
		logger.Error("Readiness check failed", log.String("status", string(status.Status)))
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Error("Error encoding readiness response", log.Error(err))
	}
}

// Register adds the health check routes to the mux.
func Register(mux *http.ServeMux, service *Service) {
	h := &Handler{Service: service}
	mux.HandleFunc("GET /health/liveness", h.HandleLivenessRequest)
	mux.HandleFunc("GET /health/readiness", h.HandleReadinessRequest)
}
