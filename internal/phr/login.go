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

const loginLoggerComponentName = "LoginFlow"

// Login steps.
const (
	StepLoginIdentifier    stepflow.StepID = "identifier"
	StepLoginOTP           stepflow.StepID = "otp"
	StepLoginSelectAccount stepflow.StepID = "select-account"
	StepLoginPassword      stepflow.StepID = "password"
)

var loginMethods = []otpflow.Method{
	otpflow.MethodMobile,
	otpflow.MethodEmail,
	otpflow.MethodABHAAddress,
	otpflow.MethodABHANumber,
}

// LoginMemory is the flow memory of the login journey.
type LoginMemory struct {
	Method        otpflow.Method `json:"method,omitempty"`
	Value         string         `json:"value,omitempty"`
	TransactionID string         `json:"transactionId,omitempty"`
	Accounts      []string       `json:"accounts,omitempty"`
	ABHAAddress   string         `json:"abhaAddress,omitempty"`
	Authenticated bool           `json:"authenticated"`
}

// verifiedAccounts is the generic verification payload listing the addresses of a contact.
type verifiedAccounts struct {
	Accounts []string `json:"accounts"`
}

type loginFlow struct {
	env    Env
	engine *stepflow.Engine[LoginMemory]
	logger *log.Logger

	mu       sync.Mutex
	otp      *otpflow.Flow
	verified json.RawMessage
}

func newLoginFlow(env Env) (*loginFlow, error) {
	f := &loginFlow{
		env:    env,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loginLoggerComponentName)),
	}
	if err := f.resetOTP(); err != nil {
		return nil, err
	}

	engine, err := stepflow.New([]stepflow.Step[LoginMemory]{
		{ID: StepLoginIdentifier, View: f.identifierStep},
		{ID: StepLoginOTP, View: f.otpStep},
		{ID: StepLoginSelectAccount, View: f.selectAccountStep},
		{ID: StepLoginPassword, View: f.passwordStep},
	}, LoginMemory{})
	if err != nil {
		f.Close()
		return nil, err
	}
	f.engine = engine
	return f, nil
}

func (f *loginFlow) Type() FlowType {
	return FlowTypeLogin
}

func (f *loginFlow) Handle(ctx context.Context, action stepflow.Action) (*stepflow.Prompt, error) {
	prompt, err := f.engine.Handle(ctx, action)
	if err != nil {
		return nil, err
	}
	return withLive(prompt, f.live()), nil
}

func (f *loginFlow) Snapshot() *stepflow.Prompt {
	return withLive(f.engine.Last(), f.live())
}

func (f *loginFlow) Done() bool {
	return f.engine.Memory().Authenticated
}

func (f *loginFlow) Close() {
	f.currentOTP().Close()
}

// Memory returns the flow memory.
func (f *loginFlow) Memory() LoginMemory {
	return f.engine.Memory()
}

func (f *loginFlow) live() map[string]any {
	return map[string]any{DataOTP: f.currentOTP().State()}
}

func (f *loginFlow) currentOTP() *otpflow.Flow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.otp
}

func (f *loginFlow) resetOTP() error {
	next, err := newOTPFlow(f.env, f.env.API.LoginOTP(), func(_ context.Context, payload json.RawMessage,
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

func loginTxn(ctl *stepflow.Controls[LoginMemory]) otpflow.TransactionStore {
	return txnStore{
		get: func() string { return ctl.Memory().TransactionID },
		set: func(id string) { ctl.SetMemory(func(m *LoginMemory) { m.TransactionID = id }) },
	}
}

func identifierPrompt() *stepflow.Prompt {
	return &stepflow.Prompt{
		Inputs: []stepflow.InputData{
			{Name: InputMethod, Type: "select", Required: true},
			{Name: InputValue, Type: "string", Required: true},
		},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeSubmit, ID: ActionSendOTP},
			{Type: stepflow.ActionTypeView, ID: ActionUsePassword},
		},
	}
}

func (f *loginFlow) identifierStep(ctx context.Context, ctl *stepflow.Controls[LoginMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return identifierPrompt(), nil
	case ActionUsePassword:
		ctl.GoTo(StepLoginPassword)
		return nil, nil
	case ActionSendOTP:
		req := otpflow.SendRequest{
			Value: strings.TrimSpace(action.Input(InputValue)),
			Type:  otpflow.Method(action.Input(InputMethod)),
		}
		if req.Type == "" {
			req.Type = otpflow.MethodMobile
		}
		if !slices.Contains(loginMethods, req.Type) {
			return failed(identifierPrompt(), fmt.Errorf("%w: unsupported login method %q", ErrInvalidInput, req.Type))
		}
		if err := f.currentOTP().Send(ctx, loginTxn(ctl), req); err != nil {
			return failed(identifierPrompt(), err)
		}
		ctl.SetMemory(func(m *LoginMemory) {
			m.Method = req.Type
			m.Value = req.Value
		})
		ctl.GoTo(StepLoginOTP)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *loginFlow) otpPrompt(ctl *stepflow.Controls[LoginMemory]) *stepflow.Prompt {
	mem := ctl.Memory()
	return (&stepflow.Prompt{Inputs: otpInputs(), Actions: otpActions()}).
		WithData("sentTo", map[string]string{"method": string(mem.Method), "value": mem.Value})
}

func (f *loginFlow) otpStep(ctx context.Context, ctl *stepflow.Controls[LoginMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	otp := f.currentOTP()
	switch action.ID {
	case "":
		return f.otpPrompt(ctl), nil
	case ActionVerify:
		f.verified = nil
		if err := otp.Verify(ctx, loginTxn(ctl), action.Input(InputOTP)); err != nil {
			return failed(f.otpPrompt(ctl), err)
		}
		if f.verified != nil {
			var payload verifiedAccounts
			if err := json.Unmarshal(f.verified, &payload); err != nil {
				return nil, fmt.Errorf("decode verified accounts: %w", err)
			}
			if len(payload.Accounts) == 0 {
				return failed(f.otpPrompt(ctl), fmt.Errorf("%w: no ABHA address is linked to %s",
					ErrInvalidInput, log.MaskString(ctl.Memory().Value)))
			}
			ctl.SetMemory(func(m *LoginMemory) { m.Accounts = payload.Accounts })
			ctl.GoTo(StepLoginSelectAccount)
			return nil, nil
		}
		ctl.SetMemory(func(m *LoginMemory) { m.Authenticated = true })
		otp.Close()
		return completed(authenticatedData(ctx, f.env, f.logger)), nil
	case ActionResend:
		if err := otp.Send(ctx, loginTxn(ctl), otp.Sent()); err != nil {
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
		ctl.SetMemory(func(m *LoginMemory) { m.TransactionID = "" })
		ctl.GoTo(StepLoginIdentifier)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *loginFlow) selectAccountPrompt(ctl *stepflow.Controls[LoginMemory]) *stepflow.Prompt {
	return (&stepflow.Prompt{
		Inputs: []stepflow.InputData{{Name: InputABHAAddress, Type: "select", Required: true}},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeSubmit, ID: ActionSelect},
			{Type: stepflow.ActionTypeView, ID: ActionBack},
		},
	}).WithData(DataAccounts, ctl.Memory().Accounts)
}

func (f *loginFlow) selectAccountStep(ctx context.Context, ctl *stepflow.Controls[LoginMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return f.selectAccountPrompt(ctl), nil
	case ActionSelect:
		address := action.Input(InputABHAAddress)
		if !slices.Contains(ctl.Memory().Accounts, address) {
			return failed(f.selectAccountPrompt(ctl),
				fmt.Errorf("%w: %q is not one of the verified accounts", ErrInvalidInput, address))
		}
		tokens, err := f.env.API.SelectAccount(ctx, AccountSelection{
			ABHAAddress:   address,
			TransactionID: ctl.Memory().TransactionID,
		})
		if err != nil {
			return failed(f.selectAccountPrompt(ctl), err)
		}
		if err := f.authenticate(ctx, ctl, tokens, address); err != nil {
			return nil, err
		}
		return completed(authenticatedData(ctx, f.env, f.logger)), nil
	case ActionBack:
		if err := f.resetOTP(); err != nil {
			return nil, err
		}
		ctl.SetMemory(func(m *LoginMemory) {
			m.TransactionID = ""
			m.Accounts = nil
		})
		ctl.GoTo(StepLoginIdentifier)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func passwordPrompt() *stepflow.Prompt {
	return &stepflow.Prompt{
		Inputs: []stepflow.InputData{
			{Name: InputABHAAddress, Type: "string", Required: true},
			{Name: InputPassword, Type: "password", Required: true},
		},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeSubmit, ID: ActionLogin},
			{Type: stepflow.ActionTypeView, ID: ActionBack},
		},
	}
}

func (f *loginFlow) passwordStep(ctx context.Context, ctl *stepflow.Controls[LoginMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return passwordPrompt(), nil
	case ActionLogin:
		if err := required(action, InputABHAAddress, InputPassword); err != nil {
			return failed(passwordPrompt(), err)
		}
		address := strings.TrimSpace(action.Input(InputABHAAddress))
		tokens, err := f.env.API.PasswordLogin(ctx, PasswordLogin{
			ABHAAddress: address,
			Password:    action.Input(InputPassword),
		})
		if err != nil {
			return failed(passwordPrompt(), err)
		}
		if err := f.authenticate(ctx, ctl, tokens, address); err != nil {
			return nil, err
		}
		return completed(authenticatedData(ctx, f.env, f.logger)), nil
	case ActionBack:
		ctl.GoTo(StepLoginIdentifier)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *loginFlow) authenticate(ctx context.Context, ctl *stepflow.Controls[LoginMemory],
	tokens auth.TokenPair, address string) error {
	if f.env.Session == nil {
		return ErrAuthenticationRequired
	}
	if err := f.env.Session.OnAuthenticated(ctx, tokens); err != nil {
		return err
	}
	ctl.SetMemory(func(m *LoginMemory) {
		m.ABHAAddress = address
		m.Authenticated = true
	})
	f.currentOTP().Close()
	return nil
}
