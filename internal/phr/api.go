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

// Package phr adapts the PHR backend to the flow components and defines the login, registration
// and linking flows.
package phr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/linking"
	"github.com/abdm-phr/phr/internal/otpflow"
	"github.com/abdm-phr/phr/internal/request"
)

// API calls the PHR backend.
type API struct {
	client *request.Client
}

// NewAPI creates an API over client.
func NewAPI(client *request.Client) *API {
	return &API{client: client}
}

// WithSession returns an API that authenticates with the session tokens.
func (a *API) WithSession(tokens request.TokenSource) *API {
	return &API{client: a.client.WithTokens(tokens)}
}

// RefreshTokens implements auth.Refresher.
func (a *API) RefreshTokens(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	return request.Mutate(ctx, a.client, RefreshTokenRoute, RefreshRequest{RefreshToken: refreshToken},
		request.MutateOptions{})
}

// LoginOTP returns the OTP client of the login journey.
func (a *API) LoginOTP() otpflow.Client {
	return otpClient{api: a, send: LoginSendOTPRoute, verify: LoginVerifyOTPRoute}
}

// RegistrationOTP returns the OTP client of the registration journey.
func (a *API) RegistrationOTP() otpflow.Client {
	return otpClient{api: a, send: RegistrationSendOTPRoute, verify: RegistrationVerifyOTPRoute}
}

// SelectAccount logs in with one of the addresses returned by a verification.
func (a *API) SelectAccount(ctx context.Context, req AccountSelection) (auth.TokenPair, error) {
	return request.Mutate(ctx, a.client, LoginSelectAccountRoute, req, request.MutateOptions{})
}

// PasswordLogin logs in with an ABHA address and password.
func (a *API) PasswordLogin(ctx context.Context, req PasswordLogin) (auth.TokenPair, error) {
	return request.Mutate(ctx, a.client, LoginPasswordRoute, req, request.MutateOptions{})
}

// Suggestions lists ABHA addresses for a draft profile after waiting debounce.
func (a *API) Suggestions(ctx context.Context, transactionID string, profile Profile,
	debounce time.Duration) ([]string, error) {
	params := url.Values{}
	params.Set("firstName", profile.FirstName)
	if profile.LastName != "" {
		params.Set("lastName", profile.LastName)
	}
	if profile.YearOfBirth != "" {
		params.Set("yearOfBirth", profile.YearOfBirth)
	}
	resp, err := request.Query(ctx, a.client, RegistrationSuggestionsRoute, request.QueryOptions{
		PathParams: map[string]string{"transactionId": transactionID},
		Params:     params,
		Debounce:   debounce,
	})
	if err != nil {
		return nil, err
	}
	return resp.Suggestions, nil
}

// CreateAddress registers a new ABHA address and returns the issued tokens.
func (a *API) CreateAddress(ctx context.Context, req CreateAddressRequest) (auth.TokenPair, error) {
	return request.Mutate(ctx, a.client, RegistrationCreateRoute, req, request.MutateOptions{})
}

// SearchFacilities finds facilities by name after waiting debounce.
func (a *API) SearchFacilities(ctx context.Context, name string, debounce time.Duration) ([]Facility, error) {
	resp, err := request.Query(ctx, a.client, FacilitySearchRoute, request.QueryOptions{
		Params:   url.Values{"name": {name}},
		Debounce: debounce,
	})
	if err != nil {
		return nil, err
	}
	return resp.Facilities, nil
}

// Profile returns the profile of the authenticated user.
func (a *API) Profile(ctx context.Context) (UserProfile, error) {
	return request.Query(ctx, a.client, ProfileRoute, request.QueryOptions{})
}

// StartLinking implements linking.Client.
func (a *API) StartLinking(ctx context.Context, req LinkRequest) (string, error) {
	resp, err := request.Mutate(ctx, a.client, LinkStartRoute, req, request.MutateOptions{})
	if err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

// LinkingStatus implements linking.Client.
func (a *API) LinkingStatus(ctx context.Context, requestID string) (linking.StatusResult, error) {
	return request.Query(ctx, a.client, LinkStatusRoute, request.QueryOptions{
		PathParams: map[string]string{"requestId": requestID},
	})
}

type otpClient struct {
	api    *API
	send   request.Route[otpflow.SendRequest, TransactionResponse]
	verify request.Route[otpflow.VerifyRequest, json.RawMessage]
}

func (c otpClient) SendOTP(ctx context.Context, req otpflow.SendRequest) (string, error) {
	resp, err := request.Mutate(ctx, c.api.client, c.send, req, request.MutateOptions{})
	if err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("%s returned no transaction id", c.send)
	}
	return resp.TransactionID, nil
}

func (c otpClient) VerifyOTP(ctx context.Context, req otpflow.VerifyRequest) (otpflow.VerifyResult, error) {
	raw, err := request.Mutate(ctx, c.api.client, c.verify, req, request.MutateOptions{})
	if err != nil {
		return otpflow.VerifyResult{}, err
	}
	return decodeVerifyResult(raw)
}

// decodeVerifyResult tells a token pair response apart from a generic payload.
func decodeVerifyResult(raw json.RawMessage) (otpflow.VerifyResult, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return otpflow.VerifyResult{Payload: json.RawMessage(`{}`)}, nil
	}
	var tokens auth.TokenPair
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return otpflow.VerifyResult{Payload: raw}, nil
	}
	if !tokens.IsZero() {
		return otpflow.VerifyResult{Tokens: &tokens}, nil
	}
	return otpflow.VerifyResult{Payload: raw}, nil
}
