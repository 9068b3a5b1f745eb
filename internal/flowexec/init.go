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

package flowexec

import (
	"net/http"

	serverconst "github.com/abdm-phr/phr/internal/system/constants"
	"github.com/abdm-phr/phr/internal/system/middleware"
)

// Initialize creates the flow execution service and registers its routes.
func Initialize(mux *http.ServeMux, cfg Config) FlowExecServiceInterface {
	flowExecService := newFlowExecService(cfg)
	handler := newFlowExecutionHandler(flowExecService)
	registerRoutes(mux, handler)
	return flowExecService
}

func registerRoutes(mux *http.ServeMux, handler *flowExecutionHandler) {
	opts := middleware.CORSOptions{
		AllowedMethods:   "GET, POST, DELETE",
		AllowedHeaders:   "Content-Type, " + serverconst.SessionHeaderName,
		ExposedHeaders:   serverconst.SessionHeaderName,
		AllowCredentials: true,
	}
	preflight := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}

	mux.HandleFunc(middleware.WithCORS("POST /flow/execute", handler.HandleFlowExecutionRequest, opts))
	mux.HandleFunc(middleware.WithCORS("OPTIONS /flow/execute", preflight, opts))
	mux.HandleFunc(middleware.WithCORS("GET /flow/{flowId}", handler.HandleFlowGetRequest, opts))
	mux.HandleFunc(middleware.WithCORS("DELETE /flow/{flowId}", handler.HandleFlowDeleteRequest, opts))
	mux.HandleFunc(middleware.WithCORS("OPTIONS /flow/{flowId}", preflight, opts))
}
