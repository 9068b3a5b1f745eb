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
	"github.com/abdm-phr/phr/internal/system/error/apierror"
	"github.com/abdm-phr/phr/internal/system/error/serviceerror"
)

// Client error structs

// APIErrorFlowRequestJSONDecodeError is returned when the request body cannot be decoded.
var APIErrorFlowRequestJSONDecodeError = apierror.ErrorResponse{
	Code:        "FLOW-1001",
	Message:     "Invalid request payload",
	Description: "Failed to decode request payload",
}

// ErrorInvalidFlowType is returned when a new flow names an unknown flow type.
var ErrorInvalidFlowType = serviceerror.ServiceError{
	Code:             "FLOW-1002",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "Invalid flow type provided in the request",
}

// ErrorFlowNotFound is returned when the flow id is unknown, expired or owned by another session.
var ErrorFlowNotFound = serviceerror.ServiceError{
	Code:             "FLOW-1003",
	Type:             serviceerror.ClientErrorType,
	Error:            "Flow not found",
	ErrorDescription: "No active flow found for the flow ID",
}

// ErrorInvalidAction is returned when the active step does not accept the action.
var ErrorInvalidAction = serviceerror.ServiceError{
	Code:             "FLOW-1004",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "The action is not accepted by the current step",
}

// ErrorInvalidInput is returned when the inputs of an action are invalid.
var ErrorInvalidInput = serviceerror.ServiceError{
	Code:             "FLOW-1005",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "One or more inputs are invalid",
}

// ErrorAuthenticationRequired is returned when a flow needs a logged in session.
var ErrorAuthenticationRequired = serviceerror.ServiceError{
	Code:             "FLOW-1006",
	Type:             serviceerror.ClientErrorType,
	Error:            "Authentication required",
	ErrorDescription: "The flow requires an authenticated session",
}

// ErrorSessionRequired is returned when the request carries no session id.
var ErrorSessionRequired = serviceerror.ServiceError{
	Code:             "FLOW-1007",
	Type:             serviceerror.ClientErrorType,
	Error:            "Invalid request",
	ErrorDescription: "A session ID is required to access the flow",
}

// Server error structs

// ErrorFlowCreation is returned when a flow instance cannot be created.
var ErrorFlowCreation = serviceerror.ServiceError{
	Code:             "FLOW-5001",
	Type:             serviceerror.ServerErrorType,
	Error:            "Something went wrong",
	ErrorDescription: "Failed to create the flow",
}

// ErrorFlowExecution is returned when a step fails unexpectedly.
var ErrorFlowExecution = serviceerror.ServiceError{
	Code:             "FLOW-5002",
	Type:             serviceerror.ServerErrorType,
	Error:            "Something went wrong",
	ErrorDescription: "Failed to execute the flow step",
}
