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
	"encoding/json"
	"net/http"

	"github.com/abdm-phr/phr/internal/phr"
	serverconst "github.com/abdm-phr/phr/internal/system/constants"
	"github.com/abdm-phr/phr/internal/system/error/apierror"
	"github.com/abdm-phr/phr/internal/system/error/serviceerror"
	"github.com/abdm-phr/phr/internal/system/log"
	sysutils "github.com/abdm-phr/phr/internal/system/utils"
)

const handlerLoggerComponentName = "FlowExecutionHandler"

// flowExecutionHandler handles flow execution requests.
type flowExecutionHandler struct {
	flowExecService FlowExecServiceInterface
}

func newFlowExecutionHandler(flowExecService FlowExecServiceInterface) *flowExecutionHandler {
	return &flowExecutionHandler{
		flowExecService: flowExecService,
	}
}

// HandleFlowExecutionRequest handles the flow execution request. A request starting a flow without
// a session header is assigned a new session, returned in the same header.
func (h *flowExecutionHandler) HandleFlowExecutionRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, handlerLoggerComponentName))

	flowR, err := sysutils.DecodeJSONBody[FlowRequest](r)
	if err != nil {
		writeAPIError(w, logger, http.StatusBadRequest, APIErrorFlowRequestJSONDecodeError)
		return
	}

	// Sanitize the input to prevent injection attacks. Passwords are forwarded as typed.
	req := FlowRequest{
		FlowType: sysutils.SanitizeString(flowR.FlowType),
		FlowID:   sysutils.SanitizeString(flowR.FlowID),
		ActionID: sysutils.SanitizeString(flowR.ActionID),
		Inputs:   sysutils.SanitizeStringMap(flowR.Inputs, phr.InputPassword),
	}

	sessionID := sessionIDOf(r)
	if sessionID == "" && req.FlowID == "" {
		sessionID = sysutils.GenerateUUID()
	}
	if sessionID != "" {
		w.Header().Set(serverconst.SessionHeaderName, sessionID)
	}

	flowResp, svcErr := h.flowExecService.Execute(r.Context(), sessionID, req)
	if svcErr != nil {
		handleFlowError(w, logger, svcErr)
		return
	}

	writeResponse(w, logger, flowResp)
	logger.Debug("Flow execution request handled successfully", log.String(log.LoggerKeyFlowID, flowResp.FlowID))
}

// HandleFlowGetRequest returns the current state of a flow.
func (h *flowExecutionHandler) HandleFlowGetRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, handlerLoggerComponentName))

	flowID := sysutils.SanitizeString(r.PathValue("flowId"))
	flowResp, svcErr := h.flowExecService.GetFlow(sessionIDOf(r), flowID)
	if svcErr != nil {
		handleFlowError(w, logger, svcErr)
		return
	}
	writeResponse(w, logger, flowResp)
}

// HandleFlowDeleteRequest closes a flow.
func (h *flowExecutionHandler) HandleFlowDeleteRequest(w http.ResponseWriter, r *http.Request) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, handlerLoggerComponentName))

	flowID := sysutils.SanitizeString(r.PathValue("flowId"))
	if svcErr := h.flowExecService.CloseFlow(sessionIDOf(r), flowID); svcErr != nil {
		handleFlowError(w, logger, svcErr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	logger.Debug("Flow closed on request", log.String(log.LoggerKeyFlowID, flowID))
}

func sessionIDOf(r *http.Request) string {
	return sysutils.SanitizeString(r.Header.Get(serverconst.SessionHeaderName))
}

func writeResponse(w http.ResponseWriter, logger *log.Logger, flowResp *FlowResponse) {
	w.Header().Set(serverconst.ContentTypeHeaderName, serverconst.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(flowResp); err != nil {
		logger.Error("Error encoding response", log.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleFlowError handles errors that occur during flow execution as an API error response.
func handleFlowError(w http.ResponseWriter, logger *log.Logger, flowErr *serviceerror.ServiceError) {
	errResp := apierror.ErrorResponse{
		Code:        flowErr.Code,
		Message:     flowErr.Error,
		Description: flowErr.ErrorDescription,
	}
	writeAPIError(w, logger, statusOf(flowErr), errResp)
}

func statusOf(flowErr *serviceerror.ServiceError) int {
	switch {
	case flowErr.Code == ErrorFlowNotFound.Code:
		return http.StatusNotFound
	case flowErr.Code == ErrorAuthenticationRequired.Code:
		return http.StatusUnauthorized
	case flowErr.Type == serviceerror.ClientErrorType:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeAPIError(w http.ResponseWriter, logger *log.Logger, status int, errResp apierror.ErrorResponse) {
	w.Header().Set(serverconst.ContentTypeHeaderName, serverconst.ContentTypeJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("Error encoding error response", log.Error(err))
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
