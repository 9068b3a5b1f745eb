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

package otpflow

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/request"
)

// Method is the contact channel an OTP is sent to.
type Method string

const (
	// MethodMobile sends the OTP to a mobile number.
	MethodMobile Method = "mobile-number"
	// MethodEmail sends the OTP to an email address.
	MethodEmail Method = "email"
	// MethodABHAAddress sends the OTP to the contact linked with an ABHA address.
	MethodABHAAddress Method = "abha-address"
	// MethodABHANumber sends the OTP to the contact linked with an ABHA number.
	MethodABHANumber Method = "abha-number"
	// MethodAadhaar sends the OTP to the mobile number registered with Aadhaar.
	MethodAadhaar Method = "aadhaar"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	switch m {
	case MethodMobile, MethodEmail, MethodABHAAddress, MethodABHANumber, MethodAadhaar:
		return true
	}
	return false
}

// Phase is the state of an OTP verification.
type Phase string

const (
	// PhaseIdle means no OTP has been sent.
	PhaseIdle Phase = "IDLE"
	// PhaseSent means an OTP was sent and the entered code is considered valid.
	PhaseSent Phase = "SENT"
	// PhaseInvalid means the last verification failed.
	PhaseInvalid Phase = "INVALID"
	// PhaseVerified is terminal.
	PhaseVerified Phase = "VERIFIED"
)

// Failure classifies the last verification failure.
type Failure string

const (
	// FailureNone means the last verification did not fail.
	FailureNone Failure = ""
	// FailureInvalidCode means the backend rejected the code with a client error.
	FailureInvalidCode Failure = "INVALID_CODE"
	// FailureNetwork means no response was received.
	FailureNetwork Failure = "NETWORK"
	// FailureServer means the backend failed with a server error.
	FailureServer Failure = "SERVER"
)

// ClassifyFailure maps a verification error onto a Failure.
func ClassifyFailure(err error) Failure {
	if err == nil {
		return FailureNone
	}
	if httpErr, ok := request.AsHTTPError(err); ok {
		if httpErr.IsClientError() {
			return FailureInvalidCode
		}
		return FailureServer
	}
	return FailureNetwork
}

var (
	// ErrResendNotAllowed is returned when a resend is attempted before the countdown elapsed.
	ErrResendNotAllowed = errors.New("otp resend not allowed yet")
	// ErrOTPNotSent is returned when verifying before an OTP was sent.
	ErrOTPNotSent = errors.New("otp not sent")
	// ErrInvalidCode is returned for codes that are not exactly the configured number of digits.
	ErrInvalidCode = errors.New("invalid otp code format")
	// ErrAlreadyVerified is returned for any action after a successful verification.
	ErrAlreadyVerified = errors.New("otp already verified")
	// ErrInvalidContact is returned for an empty contact value or unknown method.
	ErrInvalidContact = errors.New("invalid otp contact")
)

// SendRequest is the contact an OTP is sent to.
type SendRequest struct {
	Value string `json:"value"`
	Type  Method `json:"type"`
}

// VerifyRequest is sent to the backend to check a code.
type VerifyRequest struct {
	OTP           string `json:"otp"`
	TransactionID string `json:"transactionId"`
}

// VerifyResult is the backend response to a successful verification. Tokens is set when the
// verification authenticated the user; otherwise Payload carries the response body.
type VerifyResult struct {
	Tokens  *auth.TokenPair
	Payload json.RawMessage
}

// State is a snapshot of the flow.
type State struct {
	OTPSent         bool    `json:"otpSent"`
	IsOTPValid      bool    `json:"isOtpValid"`
	ResendCountdown int     `json:"resendCountdown"`
	Phase           Phase   `json:"phase"`
	LastFailure     Failure `json:"lastFailure,omitempty"`
}

// Client sends and verifies OTPs against the backend.
type Client interface {
	SendOTP(ctx context.Context, req SendRequest) (string, error)
	VerifyOTP(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

// AuthHandler receives token pairs from verifications that authenticate the user.
type AuthHandler interface {
	OnAuthenticated(ctx context.Context, tokens auth.TokenPair) error
}

// VerifiedFunc receives a generic verification payload with the request the OTP was sent for.
type VerifiedFunc func(ctx context.Context, payload json.RawMessage, sent SendRequest) error

// TransactionStore holds the server issued transaction id in flow memory.
type TransactionStore interface {
	TransactionID() string
	SetTransactionID(id string)
}

// TransactionHolder is a TransactionStore backed by a plain field.
type TransactionHolder struct {
	ID string
}

// TransactionID returns the stored id.
func (h *TransactionHolder) TransactionID() string {
	return h.ID
}

// SetTransactionID stores id.
func (h *TransactionHolder) SetTransactionID(id string) {
	h.ID = id
}
