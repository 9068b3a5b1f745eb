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

import "github.com/abdm-phr/phr/internal/stepflow"

// FlowRequest is the body of a flow execution request.
type FlowRequest struct {
	FlowType string            `json:"flowType"`
	FlowID   string            `json:"flowId"`
	ActionID string            `json:"actionId"`
	Inputs   map[string]string `json:"inputs"`
}

// FlowResponse is the body of a flow execution response.
type FlowResponse struct {
	FlowID        string   `json:"flowId"`
	FlowType      string   `json:"flowType"`
	StepID        string   `json:"stepId,omitempty"`
	FlowStatus    string   `json:"flowStatus"`
	Data          FlowData `json:"data"`
	FailureReason string   `json:"failureReason,omitempty"`
}

// FlowData carries what the client renders for the active step.
type FlowData struct {
	Inputs         []stepflow.InputData    `json:"inputs,omitempty"`
	Actions        []stepflow.PromptAction `json:"actions,omitempty"`
	AdditionalData map[string]any          `json:"additionalData,omitempty"`
}
