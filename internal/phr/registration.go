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
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/otpflow"
	"github.com/abdm-phr/phr/internal/stepflow"
	"github.com/abdm-phr/phr/internal/system/log"
)

const registrationLoggerComponentName = "RegistrationFlow"

// Registration steps.
const (
	StepRegistrationMobile           stepflow.StepID = "mobile"
	StepRegistrationOTP              stepflow.StepID = "otp"
	StepRegistrationExistingAccounts stepflow.StepID = "existing-accounts"
	StepRegistrationDetails          stepflow.StepID = "details"
	StepRegistrationCreate           stepflow.StepID = "create"
)

var registrationMethods = []otpflow.Method{
	otpflow.MethodMobile,
	otpflow.MethodEmail,
	otpflow.MethodAadhaar,
}

// RegistrationMemory is the flow memory of the registration journey.
type RegistrationMemory struct {
	Method           otpflow.Method `json:"method,omitempty"`
	Value            string         `json:"value,omitempty"`
	TransactionID    string         `json:"transactionId,omitempty"`
	ExistingAccounts []string       `json:"existingAccounts,omitempty"`
	Profile          Profile        `json:"profile"`
	ABHAAddress      string         `json:"abhaAddress,omitempty"`
	Registered       bool           `json:"registered"`
}

type registrationFlow struct {
	env         Env
	engine      *stepflow.Engine[RegistrationMemory]
	logger      *log.Logger
	suggestions typeahead[[]string]

	mu       sync.Mutex
	otp      *otpflow.Flow
	verified json.RawMessage
}

func newRegistrationFlow(env Env) (*registrationFlow, error) {
	f := &registrationFlow{
		env:    env,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, registrationLoggerComponentName)),
	}
	if err := f.resetOTP(); err != nil {
		return nil, err
	}

	engine, err := stepflow.New([]stepflow.Step[RegistrationMemory]{
		{ID: StepRegistrationMobile, View: f.mobileStep},
		{ID: StepRegistrationOTP, View: f.otpStep},
		{ID: StepRegistrationExistingAccounts, View: f.existingAccountsStep},
		{ID: StepRegistrationDetails, View: f.detailsStep},
		{ID: StepRegistrationCreate, View: f.createStep},
	}, RegistrationMemory{})
	if err != nil {
		f.Close()
		return nil, err
	}
	f.engine = engine
	return f, nil
}

func (f *registrationFlow) Type() FlowType {
	return FlowTypeRegistration
}

func (f *registrationFlow) Handle(ctx context.Context, action stepflow.Action) (*stepflow.Prompt, error) {
	prompt, err := f.engine.Handle(ctx, action)
	if err != nil {
		return nil, err
	}
	return withLive(prompt, f.live()), nil
}

func (f *registrationFlow) Snapshot() *stepflow.Prompt {
	return withLive(f.engine.Last(), f.live())
}

func (f *registrationFlow) Done() bool {
	return f.engine.Memory().Registered
}

func (f *registrationFlow) Close() {
	f.currentOTP().Close()
	f.suggestions.Close()
}

// Memory returns the flow memory.
func (f *registrationFlow) Memory() RegistrationMemory {
	return f.engine.Memory()
}

func (f *registrationFlow) live() map[string]any {
	live := map[string]any{DataOTP: f.currentOTP().State()}
	suggestions, searching, err := f.suggestions.Results()
	live[DataSuggestions] = suggestions
	live[DataSearching] = searching
	if err != nil {
		if failure, ok := FailureOf(err); ok {
			live[DataFailure] = failure
		}
	}
	return live
}

func (f *registrationFlow) currentOTP() *otpflow.Flow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otp
}

func (f *registrationFlow) resetOTP() error {
	next, err := newOTPFlow(f.env, f.env.API.RegistrationOTP(), func(_ context.Context, payload json.RawMessage,
		_ otpflow.SendRequest) error {
		f.verified = payload
		return nil
	})
	if err != nil {
		return err
	}
	f.mu.Lock()
	prev := f.otp
	f.otp = next
	f.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

func registrationTxn(ctl *stepflow.Controls[RegistrationMemory]) otpflow.TransactionStore {
	return txnStore{
		get: func() string { return ctl.Memory().TransactionID },
		set: func(id string) { ctl.SetMemory(func(m *RegistrationMemory) { m.TransactionID = id }) },
	}
}

func mobilePrompt() *stepflow.Prompt {
	return &stepflow.Prompt{
		Inputs: []stepflow.InputData{
			{Name: InputMethod, Type: "select", Required: false},
			{Name: InputValue, Type: "string", Required: true},
		},
		Actions: []stepflow.PromptAction{{Type: stepflow.ActionTypeSubmit, ID: ActionSendOTP}},
	}
}

func (f *registrationFlow) mobileStep(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return mobilePrompt(), nil
	case ActionSendOTP:
		req := otpflow.SendRequest{
			Value: strings.TrimSpace(action.Input(InputValue)),
			Type:  otpflow.Method(action.Input(InputMethod)),
		}
		if req.Type == "" {
			req.Type = otpflow.MethodMobile
		}
		if !slices.Contains(registrationMethods, req.Type) {
			return failed(mobilePrompt(), fmt.Errorf("%w: unsupported registration method %q",
				ErrInvalidInput, req.Type))
		}
		if err := f.currentOTP().Send(ctx, registrationTxn(ctl), req); err != nil {
			return failed(mobilePrompt(), err)
		}
		ctl.SetMemory(func(m *RegistrationMemory) {
			m.Method = req.Type
			m.Value = req.Value
		})
		ctl.GoTo(StepRegistrationOTP)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *registrationFlow) otpPrompt(ctl *stepflow.Controls[RegistrationMemory]) *stepflow.Prompt {
	mem := ctl.Memory()
	return (&stepflow.Prompt{Inputs: otpInputs(), Actions: otpActions()}).
		WithData("sentTo", map[string]string{"method": string(mem.Method), "value": mem.Value})
}

func (f *registrationFlow) otpStep(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	otp := f.currentOTP()
	switch action.ID {
	case "":
		return f.otpPrompt(ctl), nil
	case ActionVerify:
		f.verified = nil
		if err := otp.Verify(ctx, registrationTxn(ctl), action.Input(InputOTP)); err != nil {
			return failed(f.otpPrompt(ctl), err)
		}
		if f.verified == nil {
			// The backend logged the contact straight in.
			ctl.SetMemory(func(m *RegistrationMemory) { m.Registered = true })
			return completed(authenticatedData(ctx, f.env, f.logger)), nil
		}
		var payload verifiedAccounts
		if err := json.Unmarshal(f.verified, &payload); err != nil {
			return nil, fmt.Errorf("decode verified accounts: %w", err)
		}
		ctl.SetMemory(func(m *RegistrationMemory) { m.ExistingAccounts = payload.Accounts })
		if len(payload.Accounts) > 0 {
			ctl.GoTo(StepRegistrationExistingAccounts)
		} else {
			ctl.GoTo(StepRegistrationDetails)
		}
		return nil, nil
	case ActionResend:
		if err := otp.Send(ctx, registrationTxn(ctl), otp.Sent()); err != nil {
			return failed(f.otpPrompt(ctl), err)
		}
		return f.otpPrompt(ctl), nil
	case ActionEdit:
		otp.Edit()
		return f.otpPrompt(ctl), nil
	case ActionBack:
		if err := f.resetOTP(); err != nil {
			return nil, err
		}
		ctl.SetMemory(func(m *RegistrationMemory) { m.TransactionID = "" })
		ctl.GoTo(StepRegistrationMobile)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *registrationFlow) existingAccountsPrompt(ctl *stepflow.Controls[RegistrationMemory]) *stepflow.Prompt {
	return (&stepflow.Prompt{
		Inputs: []stepflow.InputData{{Name: InputABHAAddress, Type: "select", Required: true}},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeSubmit, ID: ActionSelect},
			{Type: stepflow.ActionTypeView, ID: ActionCreateNew},
		},
	}).WithData(DataAccounts, ctl.Memory().ExistingAccounts)
}

func (f *registrationFlow) existingAccountsStep(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return f.existingAccountsPrompt(ctl), nil
	case ActionSelect:
		address := action.Input(InputABHAAddress)
		if !slices.Contains(ctl.Memory().ExistingAccounts, address) {
			return failed(f.existingAccountsPrompt(ctl),
				fmt.Errorf("%w: %q is not one of the existing accounts", ErrInvalidInput, address))
		}
		tokens, err := f.env.API.SelectAccount(ctx, AccountSelection{
			ABHAAddress:   address,
			TransactionID: ctl.Memory().TransactionID,
		})
		if err != nil {
			return failed(f.existingAccountsPrompt(ctl), err)
		}
		if err := f.authenticate(ctx, ctl, tokens, address); err != nil {
			return nil, err
		}
		return completed(authenticatedData(ctx, f.env, f.logger)), nil
	case ActionCreateNew:
		ctl.GoTo(StepRegistrationDetails)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func detailsPrompt(profile Profile) *stepflow.Prompt {
	return (&stepflow.Prompt{
		Inputs: []stepflow.InputData{
			{Name: InputFirstName, Type: "string", Required: true},
			{Name: InputMiddleName, Type: "string"},
			{Name: InputLastName, Type: "string"},
			{Name: InputGender, Type: "select", Required: true},
			{Name: InputYearOfBirth, Type: "number", Required: true},
			{Name: InputEmail, Type: "email"},
		},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeSubmit, ID: ActionNext},
			{Type: stepflow.ActionTypeView, ID: ActionSuggest},
		},
	}).WithData(DataProfile, profile)
}

// profileFrom merges the profile inputs of action over profile.
func profileFrom(profile Profile, action stepflow.Action) Profile {
	set := func(field *string, name string) {
		if v, ok := action.Inputs[name]; ok {
			*field = strings.TrimSpace(v)
		}
	}
	set(&profile.FirstName, InputFirstName)
	set(&profile.MiddleName, InputMiddleName)
	set(&profile.LastName, InputLastName)
	set(&profile.Gender, InputGender)
	set(&profile.YearOfBirth, InputYearOfBirth)
	set(&profile.Email, InputEmail)
	return profile
}

func (f *registrationFlow) suggest(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory]) {
	mem := ctl.Memory()
	if mem.Profile.FirstName == "" {
		return
	}
	txnID, profile, debounce := mem.TransactionID, mem.Profile, f.env.Options.SearchDebounce
	f.suggestions.Update(ctx, func(ctx context.Context) ([]string, error) {
		return f.env.API.Suggestions(ctx, txnID, profile, debounce)
	})
}

func (f *registrationFlow) detailsStep(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return detailsPrompt(ctl.Memory().Profile), nil
	case ActionSuggest:
		ctl.SetMemory(func(m *RegistrationMemory) { m.Profile = profileFrom(m.Profile, action) })
		f.suggest(ctx, ctl)
		return detailsPrompt(ctl.Memory().Profile), nil
	case ActionNext:
		ctl.SetMemory(func(m *RegistrationMemory) { m.Profile = profileFrom(m.Profile, action) })
		profile := ctl.Memory().Profile
		if err := validateProfile(profile); err != nil {
			return failed(detailsPrompt(profile), err)
		}
		f.suggest(ctx, ctl)
		ctl.GoTo(StepRegistrationCreate)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func validateProfile(profile Profile) error {
	switch {
	case profile.FirstName == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, InputFirstName)
	case profile.Gender == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, InputGender)
	case len(profile.YearOfBirth) != 4 || strings.Trim(profile.YearOfBirth, "0123456789") != "":
		return fmt.Errorf("%w: %s must be a four digit year", ErrInvalidInput, InputYearOfBirth)
	}
	return nil
}

func createPrompt() *stepflow.Prompt {
	return &stepflow.Prompt{
		Inputs: []stepflow.InputData{
			{Name: InputABHAAddress, Type: "string", Required: true},
			{Name: InputPassword, Type: "password"},
		},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeSubmit, ID: ActionCreate},
			{Type: stepflow.ActionTypeView, ID: ActionBack},
		},
	}
}

func (f *registrationFlow) createStep(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return createPrompt(), nil
	case ActionCreate:
		if err := required(action, InputABHAAddress); err != nil {
			return failed(createPrompt(), err)
		}
		mem := ctl.Memory()
		address := strings.TrimSpace(action.Input(InputABHAAddress))
		tokens, err := f.env.API.CreateAddress(ctx, CreateAddressRequest{
			TransactionID: mem.TransactionID,
			ABHAAddress:   address,
			Password:      action.Input(InputPassword),
			Profile:       mem.Profile,
		})
		if err != nil {
			return failed(createPrompt(), err)
		}
		if err := f.authenticate(ctx, ctl, tokens, address); err != nil {
			return nil, err
		}
		return completed(authenticatedData(ctx, f.env, f.logger)), nil
	case ActionBack:
		ctl.GoTo(StepRegistrationDetails)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *registrationFlow) authenticate(ctx context.Context, ctl *stepflow.Controls[RegistrationMemory],
	tokens auth.TokenPair, address string) error {
	if f.env.Session == nil {
		return ErrAuthenticationRequired
	}
	if err := f.env.Session.OnAuthenticated(ctx, tokens); err != nil {
		return err
	}
	ctl.SetMemory(func(m *RegistrationMemory) {
		m.ABHAAddress = address
		m.Registered = true
	})
	f.suggestions.Close()
	f.currentOTP().Close()
	return nil
}
