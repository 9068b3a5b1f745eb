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
	"encoding/json"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/linking"
	"github.com/abdm-phr/phr/internal/otpflow"
	"github.com/abdm-phr/phr/internal/request"
)

// AccountSelection picks one of the ABHA addresses a verified contact owns.
type AccountSelection struct {
	ABHAAddress   string `json:"abhaAddress"`
	TransactionID string `json:"transactionId"`
}

// PasswordLogin authenticates with an ABHA address and password.
type PasswordLogin struct {
	ABHAAddress string `json:"abhaAddress"`
	Password    string `json:"password"`
}

// RefreshRequest exchanges a refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// SuggestionsResponse lists ABHA addresses available for a draft profile.
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Profile is the demographic data collected during registration.
type Profile struct {
	FirstName   string `json:"firstName"`
	MiddleName  string `json:"middleName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Gender      string `json:"gender"`
	YearOfBirth string `json:"yearOfBirth"`
	Email       string `json:"email,omitempty"`
}

// CreateAddressRequest registers a new ABHA address.
type CreateAddressRequest struct {
	TransactionID string `json:"transactionId"`
	ABHAAddress   string `json:"abhaAddress"`
	Password      string `json:"password,omitempty"`
	Profile
}

// Facility is a health facility patients can link records from.
type Facility struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

// FacilitySearchResponse is the result of a facility search.
type FacilitySearchResponse struct {
	Facilities []Facility `json:"facilities"`
}

// LinkRequest starts a user initiated linking job with a facility.
type LinkRequest struct {
	FacilityID        string `json:"facilityId"`
	PatientIdentifier string `json:"patientIdentifier"`
	IdentifierType    string `json:"identifierType"`
}

// LinkStartResponse carries the id of the started linking job.
type LinkStartResponse struct {
	RequestID string `json:"requestId"`
}

// TransactionResponse carries the transaction id of a sent OTP.
type TransactionResponse struct {
	TransactionID string `json:"transactionId"`
}

// UserProfile is the profile of an authenticated user.
type UserProfile struct {
	ABHAAddress string `json:"abhaAddress"`
	ABHANumber  string `json:"abhaNumber,omitempty"`
	FullName    string `json:"fullName"`
	Mobile      string `json:"mobile,omitempty"`
}

// Backend routes.
var (
	LoginSendOTPRoute        = request.NewRoute[otpflow.SendRequest, TransactionResponse]("POST /login/otp/send")
	LoginVerifyOTPRoute      = request.NewRoute[otpflow.VerifyRequest, json.RawMessage]("POST /login/otp/verify")
	LoginSelectAccountRoute  = request.NewRoute[AccountSelection, auth.TokenPair]("POST /login/account/select")
	LoginPasswordRoute       = request.NewRoute[PasswordLogin, auth.TokenPair]("POST /login/password")
	RegistrationSendOTPRoute = request.NewRoute[otpflow.SendRequest, TransactionResponse](
		"POST /registration/otp/send")
	RegistrationVerifyOTPRoute = request.NewRoute[otpflow.VerifyRequest, json.RawMessage](
		"POST /registration/otp/verify")
	RegistrationSuggestionsRoute = request.NewRoute[struct{}, SuggestionsResponse](
		"GET /registration/{transactionId}/suggestions")
	RegistrationCreateRoute = request.NewRoute[CreateAddressRequest, auth.TokenPair](
		"POST /registration/abha-address")
	FacilitySearchRoute = request.NewRoute[struct{}, FacilitySearchResponse]("GET /facilities")
	LinkStartRoute      = request.NewRoute[LinkRequest, LinkStartResponse]("POST /patients/links")
	LinkStatusRoute     = request.NewRoute[struct{}, linking.StatusResult](
		"GET /patients/links/{requestId}/status")
	RefreshTokenRoute = request.NewRoute[RefreshRequest, auth.TokenPair]("POST /auth/refresh")
	ProfileRoute      = request.NewRoute[struct{}, UserProfile]("GET /profile")
)
