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

package stepflow

// StepID identifies a step within a flow.
type StepID string

// Status describes the state of a flow after a step handled an action.
type Status string

const (
	// StatusIncomplete indicates that the flow is waiting for user input.
	StatusIncomplete Status = "INCOMPLETE"
	// StatusComplete indicates that the flow reached a terminal success.
	StatusComplete Status = "COMPLETE"
	// StatusError indicates that the last action failed and the step awaits a retry.
	StatusError Status = "ERROR"
)

// ActionType defines the kind of action a prompt offers.
type ActionType string

const (
	// ActionTypeSubmit submits the prompt inputs.
	ActionTypeSubmit ActionType = "SUBMIT"
	// ActionTypeView navigates without submitting inputs.
	ActionTypeView ActionType = "VIEW"
)

// Action is a user action routed to the active step. An empty ID asks the step to render itself.
type Action struct {
	ID     string            `json:"actionId"`
	Inputs map[string]string `json:"inputs,omitempty"`
}

// Input returns the named input value.
func (a Action) Input(name string) string {
	return a.Inputs[name]
}

// IsRender reports whether the action only asks for the step prompt.
func (a Action) IsRender() bool {
	return a.ID == ""
}

// InputData describes an input a prompt requires.
type InputData struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// PromptAction is an action the active step accepts.
type PromptAction struct {
	Type ActionType `json:"type"`
	ID   string     `json:"id"`
}

// Prompt is what a step presents after handling an action.
type Prompt struct {
	StepID        StepID         `json:"stepId"`
	Status        Status         `json:"flowStatus"`
	Inputs        []InputData    `json:"inputs,omitempty"`
	Actions       []PromptAction `json:"actions,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	FailureReason string         `json:"failureReason,omitempty"`
}

// WithData sets a data entry and returns the prompt.
func (p *Prompt) WithData(key string, value any) *Prompt {
	if p.Data == nil {
		p.Data = make(map[string]any)
	}
	p.Data[key] = value
	return p
}
