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

package phr

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/linking"
	"github.com/abdm-phr/phr/internal/otpflow"
	"github.com/abdm-phr/phr/internal/request"
	"github.com/abdm-phr/phr/internal/stepflow"
	"github.com/abdm-phr/phr/internal/system/log"
	"github.com/abdm-phr/phr/internal/system/metrics"
)

// FlowType names a user journey.
type FlowType string

const (
	// FlowTypeLogin logs a user in with an OTP or a password.
	FlowTypeLogin FlowType = "LOGIN"
	// FlowTypeRegistration creates a new ABHA address.
	FlowTypeRegistration FlowType = "REGISTRATION"
	// FlowTypeLinking links health records held by a facility.
	FlowTypeLinking FlowType = "LINKING"
)

// Action ids accepted by the flow steps.
const (
	ActionSendOTP     = "send-otp"
	ActionVerify      = "verify"
	ActionResend      = "resend"
	ActionEdit        = "edit"
	ActionBack        = "back"
	ActionUsePassword = "use-password"
	ActionLogin       = "login"
	ActionSelect      = "select"
	ActionSuggest     = "suggest"
	ActionNext        = "next"
	ActionCreate      = "create"
	ActionCreateNew   = "create-new"
	ActionSearch      = "search"
	ActionLink        = "link"
	ActionRefresh     = "refresh"
	ActionRetry       = "retry"
)

// Input names used by the flow steps.
const (
	InputMethod            = "method"
	InputValue             = "value"
	InputOTP               = "otp"
	InputABHAAddress       = "abhaAddress"
	InputPassword          = "password"
	InputFirstName         = "firstName"
	InputMiddleName        = "middleName"
	InputLastName          = "lastName"
	InputGender            = "gender"
	InputYearOfBirth       = "yearOfBirth"
	InputEmail             = "email"
	InputQuery             = "query"
	InputFacilityID        = "facilityId"
	InputPatientIdentifier = "patientIdentifier"
	InputIdentifierType    = "identifierType"
)

// Data keys carrying live state in prompts.
const (
	DataOTP         = "otp"
	DataLinking     = "linking"
	DataFailure     = "failure"
	DataAccounts    = "accounts"
	DataSuggestions = "suggestions"
	DataFacilities  = "facilities"
	DataSearching   = "searching"
	DataResult      = "result"
	DataProfile     = "profile"
)

var (
	// ErrUnknownFlowType is returned for flow types that are not defined.
	ErrUnknownFlowType = errors.New("unknown flow type")
	// ErrUnknownAction is returned when the active step does not accept an action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidInput is returned when a required input is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAuthenticationRequired is returned when a flow needs an authenticated session.
	ErrAuthenticationRequired = errors.New("authentication required")
)

// Flow is one running user journey.
type Flow interface {
	Type() FlowType
	// Handle routes an action to the active step.
	Handle(ctx context.Context, action stepflow.Action) (*stepflow.Prompt, error)
	// Snapshot returns the last prompt refreshed with live state.
	Snapshot() *stepflow.Prompt
	// Done reports whether the flow reached its terminal step.
	Done() bool
	// Close stops every timer and poller the flow owns.
	Close()
}

// Options tunes the flow components.
type Options struct {
	ResendInterval  int
	CodeLength      int
	PollInterval    time.Duration
	WatchdogTimeout time.Duration
	SearchDebounce  time.Duration
	Metrics         *metrics.Metrics
}

// Env is what a flow needs from its surroundings.
type Env struct {
	API     *API
	Session *auth.Session
	Options Options
}

// NewFlow creates a flow of the given type.
func NewFlow(ctx context.Context, flowType FlowType, env Env) (Flow, error) {
	var (
		flow Flow
		err  error
	)
	switch flowType {
	case FlowTypeLogin:
		flow, err = newLoginFlow(env)
	case FlowTypeRegistration:
		flow, err = newRegistrationFlow(env)
	case FlowTypeLinking:
		if env.Session == nil || !env.Session.Authenticated(ctx) {
			return nil, ErrAuthenticationRequired
		}
		flow, err = newLinkFlow(env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlowType, flowType)
	}
	if err != nil {
		return nil, err
	}
	return flow, nil
}

// Failure is the presentable form of an error.
type Failure struct {
	Kind    string              `json:"kind"`
	Status  int                 `json:"status,omitempty"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// Failure kinds.
const (
	FailureKindNetwork    = "NETWORK"
	FailureKindHTTP       = "HTTP"
	FailureKindTimeout    = "TIMEOUT"
	FailureKindValidation = "VALIDATION"
)

var validationErrors = []error{
	ErrInvalidInput,
	otpflow.ErrInvalidCode,
	otpflow.ErrInvalidContact,
	otpflow.ErrResendNotAllowed,
	otpflow.ErrOTPNotSent,
	otpflow.ErrAlreadyVerified,
	linking.ErrLinkingFailed,
	linking.ErrMissingRequestID,
}

// networkFailureMessage is shown when the gateway could not be reached.
const networkFailureMessage = "Network Error"

// FailureOf converts err into a Failure. It reports false for errors a user cannot act on.
func FailureOf(err error) (Failure, bool) {
	if httpErr, ok := request.AsHTTPError(err); ok {
		return Failure{
			Kind:    FailureKindHTTP,
			Status:  httpErr.StatusCode,
			Message: httpErr.Cause.Message(),
			Fields:  httpErr.Cause.Fields,
		}, true
	}
	if request.IsNetworkError(err) {
		return Failure{Kind: FailureKindNetwork, Message: networkFailureMessage}, true
	}
	if errors.Is(err, linking.ErrWatchdogTimeout) {
		return Failure{Kind: FailureKindTimeout, Message: linking.ErrWatchdogTimeout.Error()}, true
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return Failure{Kind: FailureKindValidation, Message: err.Error()}, true
		}
	}
	return Failure{}, false
}

// failed turns err into an error prompt when the user can act on it.
func failed(prompt *stepflow.Prompt, err error) (*stepflow.Prompt, error) {
	failure, ok := FailureOf(err)
	if !ok {
		return nil, err
	}
	prompt.Status = stepflow.StatusError
	prompt.FailureReason = failure.Message
	return prompt.WithData(DataFailure, failure), nil
}

func unknownAction(step stepflow.StepID, action stepflow.Action) error {
	return fmt.Errorf("%w: %q at step %q", ErrUnknownAction, action.ID, step)
}

func required(action stepflow.Action, names ...string) error {
	for _, name := range names {
		if action.Input(name) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
		}
	}
	return nil
}

func completed(data map[string]any) *stepflow.Prompt {
	return &stepflow.Prompt{Status: stepflow.StatusComplete, Data: data}
}

// withLive copies prompt and adds the entries of live to its data.
func withLive(prompt *stepflow.Prompt, live map[string]any) *stepflow.Prompt {
	if prompt == nil {
		return nil
	}
	cp := *prompt
	cp.Data = make(map[string]any, len(prompt.Data)+len(live))
	maps.Copy(cp.Data, prompt.Data)
	maps.Copy(cp.Data, live)
	return &cp
}

// txnStore exposes a transaction id field of flow memory to the OTP flow.
type txnStore struct {
	get func() string
	set func(string)
}

func (s txnStore) TransactionID() string {
	return s.get()
}

func (s txnStore) SetTransactionID(id string) {
	s.set(id)
}

func newOTPFlow(env Env, client otpflow.Client, onVerified otpflow.VerifiedFunc) (*otpflow.Flow, error) {
	cfg := otpflow.Config{
		Client:         client,
		OnVerified:     onVerified,
		ResendInterval: env.Options.ResendInterval,
		CodeLength:     env.Options.CodeLength,
		Metrics:        env.Options.Metrics,
	}
	if env.Session != nil {
		cfg.Auth = env.Session
	}
	return otpflow.New(cfg)
}

// authenticatedData is the data of a completed login or registration. The profile is best effort.
func authenticatedData(ctx context.Context, env Env, logger *log.Logger) map[string]any {
	data := map[string]any{"authenticated": true}
	profile, err := env.API.WithSession(env.Session).Profile(ctx)
	if err != nil {
		logger.Warn("Failed to load the user profile", log.Error(err))
		return data
	}
	data[DataProfile] = profile
	return data
}

func otpInputs() []stepflow.InputData {
	return []stepflow.InputData{{Name: InputOTP, Type: "otp", Required: true}}
}

func otpActions() []stepflow.PromptAction {
	return []stepflow.PromptAction{
		{Type: stepflow.ActionTypeSubmit, ID: ActionVerify},
		{Type: stepflow.ActionTypeView, ID: ActionResend},
		{Type: stepflow.ActionTypeView, ID: ActionEdit},
		{Type: stepflow.ActionTypeView, ID: ActionBack},
	}
}
