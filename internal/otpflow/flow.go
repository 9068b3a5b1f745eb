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

// Package otpflow implements the send, resend and verify cycle of a one-time password.
package otpflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/abdm-phr/phr/internal/countdown"
	"github.com/abdm-phr/phr/internal/system/log"
	"github.com/abdm-phr/phr/internal/system/metrics"
)

const loggerComponentName = "OTPFlow"

const (
	// DefaultResendInterval is the resend countdown in seconds.
	DefaultResendInterval = 60
	// DefaultCodeLength is the number of digits of an OTP.
	DefaultCodeLength = 6
)

// Config wires a Flow to its collaborators.
type Config struct {
	Client Client
	// Auth receives token pairs. Required when the backend may authenticate on verify.
	Auth AuthHandler
	// OnVerified receives generic verification payloads.
	OnVerified VerifiedFunc
	// ResendInterval in seconds, DefaultResendInterval when zero.
	ResendInterval int
	// CodeLength, DefaultCodeLength when zero.
	CodeLength int
	// OnCountdown observes every countdown value. It must not call back into the Flow.
	OnCountdown func(remaining int)
	Metrics     *metrics.Metrics
}

// Flow tracks one OTP verification.
type Flow struct {
	// opMu serializes Send and Verify. mu guards the state and is not held across backend calls.
	opMu        sync.Mutex
	mu          sync.Mutex
	cfg         Config
	timer       *countdown.Timer
	phase       Phase
	valid       bool
	lastFailure Failure
	sent        SendRequest
	logger      *log.Logger
}

// New creates an idle flow.
func New(cfg Config) (*Flow, error) {
	if cfg.Client == nil {
		return nil, errors.New("otp flow requires a client")
	}
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = DefaultResendInterval
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultCodeLength
	}

	var opts []countdown.Option
	if cfg.OnCountdown != nil {
		opts = append(opts, countdown.WithOnChange(cfg.OnCountdown))
	}

	return &Flow{
		cfg:    cfg,
		timer:  countdown.New(cfg.ResendInterval, opts...),
		phase:  PhaseIdle,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}, nil
}

// Send sends an OTP to req, or resends it once the countdown reached zero. On success the
// transaction id is written to store and the countdown restarts. Failures leave the state
// unchanged and are returned as is.
func (f *Flow) Send(ctx context.Context, store TransactionStore, req SendRequest) error {
	if req.Value == "" || !req.Type.Valid() {
		return fmt.Errorf("%w: type %q", ErrInvalidContact, req.Type)
	}

	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.Lock()
	phase := f.phase
	remaining := f.timer.Remaining()
	f.mu.Unlock()

	switch phase {
	case PhaseVerified:
		return ErrAlreadyVerified
	case PhaseSent, PhaseInvalid:
		if remaining > 0 {
			return ErrResendNotAllowed
		}
	}

	logger := f.logger.With(log.String("method", string(req.Type)), log.String("value", log.MaskString(req.Value)))
	resend := phase != PhaseIdle

	transactionID, err := f.cfg.Client.SendOTP(ctx, req)
	if err != nil {
		logger.Debug("Failed to send OTP", log.Bool("resend", resend), log.Error(err))
		f.recordSend(req.Type, sendOutcome(err))
		return err
	}

	store.SetTransactionID(transactionID)
	f.mu.Lock()
	f.sent = req
	f.phase = PhaseSent
	f.valid = true
	f.lastFailure = FailureNone
	f.timer.Start(f.cfg.ResendInterval)
	f.mu.Unlock()

	f.recordSend(req.Type, metrics.OutcomeSuccess)
	logger.Debug("OTP sent", log.Bool("resend", resend))
	return nil
}

// Verify checks code against the transaction id in store. A failure moves the flow to the
// invalid phase and is returned as is; the countdown keeps running.
func (f *Flow) Verify(ctx context.Context, store TransactionStore, code string) error {
	f.opMu.Lock()
	defer f.opMu.Unlock()

	f.mu.Lock()
	phase := f.phase
	sent := f.sent
	f.mu.Unlock()

	switch phase {
	case PhaseIdle:
		return ErrOTPNotSent
	case PhaseVerified:
		return ErrAlreadyVerified
	}
	if !f.validCode(code) {
		return fmt.Errorf("%w: expected %d digits", ErrInvalidCode, f.cfg.CodeLength)
	}

	result, err := f.cfg.Client.VerifyOTP(ctx, VerifyRequest{OTP: code, TransactionID: store.TransactionID()})
	if err != nil {
		failure := ClassifyFailure(err)
		f.mu.Lock()
		f.phase = PhaseInvalid
		f.valid = false
		f.lastFailure = failure
		f.mu.Unlock()
		f.recordVerification(metrics.OutcomeFailure)
		f.logger.Debug("OTP verification failed", log.String("failure", string(failure)), log.Error(err))
		return err
	}

	if result.Tokens != nil {
		if f.cfg.Auth == nil {
			return errors.New("otp verification returned tokens but no auth handler is configured")
		}
		if err := f.cfg.Auth.OnAuthenticated(ctx, *result.Tokens); err != nil {
			return fmt.Errorf("handle authentication: %w", err)
		}
	} else if f.cfg.OnVerified != nil {
		if err := f.cfg.OnVerified(ctx, result.Payload, sent); err != nil {
			return fmt.Errorf("handle verification: %w", err)
		}
	}

	f.mu.Lock()
	f.phase = PhaseVerified
	f.valid = true
	f.lastFailure = FailureNone
	f.timer.Stop()
	f.mu.Unlock()

	f.recordVerification(metrics.OutcomeSuccess)
	f.logger.Debug("OTP verified", log.Bool("authenticated", result.Tokens != nil))
	return nil
}

// Edit marks the entered code as valid again after the user changed it.
func (f *Flow) Edit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == PhaseInvalid {
		f.phase = PhaseSent
		f.valid = true
	}
}

// CanResend reports whether Send would be accepted as a resend.
func (f *Flow) CanResend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return (f.phase == PhaseSent || f.phase == PhaseInvalid) && f.timer.Remaining() == 0
}

// Sent returns the request of the last successful send.
func (f *Flow) Sent() SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

// State returns a snapshot of the flow.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return State{
		OTPSent:         f.phase != PhaseIdle,
		IsOTPValid:      f.phase == PhaseIdle || f.valid,
		ResendCountdown: f.timer.Remaining(),
		Phase:           f.phase,
		LastFailure:     f.lastFailure,
	}
}

// Close stops the countdown.
func (f *Flow) Close() {
	f.timer.Stop()
}

func (f *Flow) validCode(code string) bool {
	if len(code) != f.cfg.CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func sendOutcome(err error) string {
	if ClassifyFailure(err) == FailureNetwork {
		return metrics.OutcomeNetwork
	}
	return metrics.OutcomeFailure
}

func (f *Flow) recordSend(method Method, outcome string) {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.OTPSends.WithLabelValues(string(method), outcome).Inc()
	}
}

func (f *Flow) recordVerification(outcome string) {
	if f.cfg.Metrics != nil {
		f.cfg.Metrics.OTPVerifications.WithLabelValues(outcome).Inc()
	}
}
