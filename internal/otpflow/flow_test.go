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
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/request"
	"github.com/abdm-phr/phr/internal/system/metrics"
	"github.com/abdm-phr/phr/tests/mocks/authmock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	mu          sync.Mutex
	sendErr     error
	verifyErrs  []error
	result      VerifyResult
	sendCalls   []SendRequest
	verifyCalls []VerifyRequest
}

func (c *fakeClient) SendOTP(_ context.Context, req SendRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls = append(c.sendCalls, req)
	if c.sendErr != nil {
		return "", c.sendErr
	}
	return fmt.Sprintf("txn-%d", len(c.sendCalls)), nil
}

func (c *fakeClient) VerifyOTP(_ context.Context, req VerifyRequest) (VerifyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verifyCalls = append(c.verifyCalls, req)
	if len(c.verifyErrs) > 0 {
		err := c.verifyErrs[0]
		c.verifyErrs = c.verifyErrs[1:]
		if err != nil {
			return VerifyResult{}, err
		}
	}
	return c.result, nil
}

var mobileLogin = SendRequest{Value: "9998887777", Type: MethodMobile}

var invalidOTP = &request.HTTPError{StatusCode: 400, Cause: request.Cause{Detail: "Invalid OTP"}}

type FlowTestSuite struct {
	suite.Suite
}

func TestFlowTestSuite(t *testing.T) {
	suite.Run(t, new(FlowTestSuite))
}

func (suite *FlowTestSuite) TestNewRequiresClient() {
	_, err := New(Config{})
	suite.Error(err)
}

func (suite *FlowTestSuite) TestInitialState() {
	flow, err := New(Config{Client: &fakeClient{}})
	suite.Require().NoError(err)
	defer flow.Close()

	suite.Equal(State{IsOTPValid: true, Phase: PhaseIdle}, flow.State())
	suite.False(flow.CanResend())
}

func (suite *FlowTestSuite) TestSendStoresTransactionAndStartsCountdown() {
	synctest.Test(suite.T(), func(t *testing.T) {
		client := &fakeClient{}
		flow, err := New(Config{Client: client})
		require.NoError(t, err)
		defer flow.Close()

		store := &TransactionHolder{}
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))

		assert.Equal(t, "txn-1", store.TransactionID())
		assert.Equal(t, State{OTPSent: true, IsOTPValid: true, ResendCountdown: 60, Phase: PhaseSent},
			flow.State())
		assert.Equal(t, mobileLogin, flow.Sent())

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, 59, flow.State().ResendCountdown)
	})
}

func (suite *FlowTestSuite) TestSendFailureLeavesStateUnchanged() {
	testCases := []struct {
		name    string
		err     error
		network bool
	}{
		{"Network", fmt.Errorf("%w: connection reset", request.ErrNetwork), true},
		{"HTTP", &request.HTTPError{StatusCode: 422, Cause: request.Cause{Detail: "Invalid mobile"}}, false},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			flow, err := New(Config{Client: &fakeClient{sendErr: tc.err}})
			suite.Require().NoError(err)
			defer flow.Close()

			store := &TransactionHolder{}
			err = flow.Send(context.Background(), store, mobileLogin)
			suite.ErrorIs(err, tc.err)
			suite.Equal(tc.network, request.IsNetworkError(err))
			suite.Empty(store.TransactionID())
			suite.Equal(State{IsOTPValid: true, Phase: PhaseIdle}, flow.State())
		})
	}
}

func (suite *FlowTestSuite) TestSendRejectsInvalidContact() {
	flow, err := New(Config{Client: &fakeClient{}})
	suite.Require().NoError(err)

	suite.ErrorIs(flow.Send(context.Background(), &TransactionHolder{}, SendRequest{Type: MethodEmail}),
		ErrInvalidContact)
	suite.ErrorIs(flow.Send(context.Background(), &TransactionHolder{}, SendRequest{Value: "x", Type: "fax"}),
		ErrInvalidContact)
}

func (suite *FlowTestSuite) TestResendGating() {
	synctest.Test(suite.T(), func(t *testing.T) {
		client := &fakeClient{}
		flow, err := New(Config{Client: client})
		require.NoError(t, err)
		defer flow.Close()

		store := &TransactionHolder{}
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))

		time.Sleep(30 * time.Second)
		synctest.Wait()
		assert.False(t, flow.CanResend())
		assert.ErrorIs(t, flow.Send(context.Background(), store, mobileLogin), ErrResendNotAllowed)
		assert.Len(t, client.sendCalls, 1)

		time.Sleep(30 * time.Second)
		synctest.Wait()
		assert.Equal(t, 0, flow.State().ResendCountdown)
		assert.True(t, flow.CanResend())

		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))
		assert.Equal(t, "txn-2", store.TransactionID())
		assert.Equal(t, 60, flow.State().ResendCountdown)
		assert.False(t, flow.CanResend())
	})
}

func (suite *FlowTestSuite) TestResendFromInvalidRestoresValidity() {
	synctest.Test(suite.T(), func(t *testing.T) {
		client := &fakeClient{verifyErrs: []error{invalidOTP}}
		flow, err := New(Config{Client: client, ResendInterval: 5})
		require.NoError(t, err)
		defer flow.Close()

		store := &TransactionHolder{}
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))
		assert.Error(t, flow.Verify(context.Background(), store, "111111"))
		assert.False(t, flow.State().IsOTPValid)

		time.Sleep(5 * time.Second)
		synctest.Wait()
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))

		state := flow.State()
		assert.True(t, state.IsOTPValid)
		assert.Equal(t, PhaseSent, state.Phase)
		assert.Equal(t, 5, state.ResendCountdown)
		assert.Equal(t, FailureNone, state.LastFailure)
	})
}

func (suite *FlowTestSuite) TestVerifyBeforeSend() {
	client := &fakeClient{}
	flow, err := New(Config{Client: client})
	suite.Require().NoError(err)

	suite.ErrorIs(flow.Verify(context.Background(), &TransactionHolder{}, "123456"), ErrOTPNotSent)
	suite.Empty(client.verifyCalls)
}

func (suite *FlowTestSuite) TestVerifyRejectsMalformedCode() {
	testCases := []struct {
		name string
		code string
	}{
		{"Empty", ""},
		{"TooShort", "12345"},
		{"TooLong", "1234567"},
		{"Letters", "12a456"},
		{"NonASCIIDigits", "١٢٣٤٥٦"},
		{"Spaces", "123 45"},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			client := &fakeClient{}
			flow, err := New(Config{Client: client})
			suite.Require().NoError(err)
			defer flow.Close()

			store := &TransactionHolder{}
			suite.Require().NoError(flow.Send(context.Background(), store, mobileLogin))
			before := flow.State()

			suite.ErrorIs(flow.Verify(context.Background(), store, tc.code), ErrInvalidCode)
			suite.Empty(client.verifyCalls)
			suite.Equal(before.Phase, flow.State().Phase)
			suite.True(flow.State().IsOTPValid)
		})
	}
}

func (suite *FlowTestSuite) TestMobileLoginWithTokenPair() {
	synctest.Test(suite.T(), func(t *testing.T) {
		tokens := auth.TokenPair{AccessToken: "access", RefreshToken: "refresh"}
		client := &fakeClient{result: VerifyResult{Tokens: &tokens}}
		handler := &authmock.AuthHandlerMock{}
		handler.On("OnAuthenticated", mock.Anything, tokens).Return(nil).Once()

		var genericCalls int
		flow, err := New(Config{
			Client: client,
			Auth:   handler,
			OnVerified: func(context.Context, json.RawMessage, SendRequest) error {
				genericCalls++
				return nil
			},
		})
		require.NoError(t, err)
		defer flow.Close()

		store := &TransactionHolder{}
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))
		assert.True(t, flow.State().OTPSent)
		assert.Equal(t, 60, flow.State().ResendCountdown)

		require.NoError(t, flow.Verify(context.Background(), store, "123456"))

		assert.Equal(t, []VerifyRequest{{OTP: "123456", TransactionID: "txn-1"}}, client.verifyCalls)
		handler.AssertExpectations(t)
		assert.Zero(t, genericCalls)
		assert.Equal(t, PhaseVerified, flow.State().Phase)

		assert.ErrorIs(t, flow.Verify(context.Background(), store, "123456"), ErrAlreadyVerified)
		assert.ErrorIs(t, flow.Send(context.Background(), store, mobileLogin), ErrAlreadyVerified)
	})
}

func (suite *FlowTestSuite) TestGenericPayloadForwardedWithSendContext() {
	payload := json.RawMessage(`{"accounts":["john@sbx","jane@sbx"]}`)
	client := &fakeClient{result: VerifyResult{Payload: payload}}

	var gotPayload json.RawMessage
	var gotSent SendRequest
	flow, err := New(Config{
		Client: client,
		OnVerified: func(_ context.Context, p json.RawMessage, sent SendRequest) error {
			gotPayload, gotSent = p, sent
			return nil
		},
	})
	suite.Require().NoError(err)
	defer flow.Close()

	sent := SendRequest{Value: "john@example.org", Type: MethodEmail}
	store := &TransactionHolder{}
	suite.Require().NoError(flow.Send(context.Background(), store, sent))
	suite.Require().NoError(flow.Verify(context.Background(), store, "654321"))

	suite.JSONEq(string(payload), string(gotPayload))
	suite.Equal(sent, gotSent)
	suite.Equal(PhaseVerified, flow.State().Phase)
}

func (suite *FlowTestSuite) TestTokensWithoutAuthHandler() {
	client := &fakeClient{result: VerifyResult{Tokens: &auth.TokenPair{AccessToken: "a"}}}
	flow, err := New(Config{Client: client})
	suite.Require().NoError(err)
	defer flow.Close()

	store := &TransactionHolder{}
	suite.Require().NoError(flow.Send(context.Background(), store, mobileLogin))
	suite.Error(flow.Verify(context.Background(), store, "123456"))
	suite.Equal(PhaseSent, flow.State().Phase)
}

func (suite *FlowTestSuite) TestCallbackErrorKeepsFlowOpen() {
	callbackErr := errors.New("profile store down")
	client := &fakeClient{result: VerifyResult{Payload: json.RawMessage(`{}`)}}
	flow, err := New(Config{
		Client: client,
		OnVerified: func(context.Context, json.RawMessage, SendRequest) error {
			return callbackErr
		},
	})
	suite.Require().NoError(err)
	defer flow.Close()

	store := &TransactionHolder{}
	suite.Require().NoError(flow.Send(context.Background(), store, mobileLogin))
	suite.ErrorIs(flow.Verify(context.Background(), store, "123456"), callbackErr)
	suite.Equal(PhaseSent, flow.State().Phase)
}

func (suite *FlowTestSuite) TestInvalidCodeThenEdit() {
	synctest.Test(suite.T(), func(t *testing.T) {
		client := &fakeClient{verifyErrs: []error{invalidOTP}}
		flow, err := New(Config{Client: client})
		require.NoError(t, err)
		defer flow.Close()

		store := &TransactionHolder{}
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))
		time.Sleep(10 * time.Second)
		synctest.Wait()

		err = flow.Verify(context.Background(), store, "000000")
		httpErr, ok := request.AsHTTPError(err)
		require.True(t, ok)
		assert.Equal(t, 400, httpErr.StatusCode)

		state := flow.State()
		assert.False(t, state.IsOTPValid)
		assert.True(t, state.OTPSent)
		assert.Equal(t, PhaseInvalid, state.Phase)
		assert.Equal(t, FailureInvalidCode, state.LastFailure)
		assert.Equal(t, 50, state.ResendCountdown)

		time.Sleep(time.Second)
		synctest.Wait()
		assert.Equal(t, 49, flow.State().ResendCountdown)

		flow.Edit()
		state = flow.State()
		assert.True(t, state.IsOTPValid)
		assert.True(t, state.OTPSent)
		assert.Equal(t, PhaseSent, state.Phase)
		assert.Len(t, client.sendCalls, 1)
	})
}

func (suite *FlowTestSuite) TestVerifyAfterInvalidSucceeds() {
	client := &fakeClient{verifyErrs: []error{invalidOTP, nil}, result: VerifyResult{Payload: json.RawMessage(`{}`)}}
	flow, err := New(Config{Client: client})
	suite.Require().NoError(err)
	defer flow.Close()

	store := &TransactionHolder{}
	suite.Require().NoError(flow.Send(context.Background(), store, mobileLogin))
	suite.Error(flow.Verify(context.Background(), store, "111111"))
	suite.Equal(PhaseInvalid, flow.State().Phase)
	suite.True(flow.State().OTPSent)

	suite.NoError(flow.Verify(context.Background(), store, "222222"))
	suite.Equal(PhaseVerified, flow.State().Phase)
	suite.Len(client.sendCalls, 1)
}

// gatedClient holds every verification until release is closed.
type gatedClient struct {
	release chan struct{}
}

func (c *gatedClient) SendOTP(context.Context, SendRequest) (string, error) {
	return "txn-1", nil
}

func (c *gatedClient) VerifyOTP(context.Context, VerifyRequest) (VerifyResult, error) {
	<-c.release
	return VerifyResult{}, invalidOTP
}

func (suite *FlowTestSuite) TestStateReadableWhileVerifying() {
	synctest.Test(suite.T(), func(t *testing.T) {
		client := &gatedClient{release: make(chan struct{})}
		flow, err := New(Config{Client: client})
		require.NoError(t, err)
		defer flow.Close()

		store := &TransactionHolder{}
		require.NoError(t, flow.Send(context.Background(), store, mobileLogin))

		verified := make(chan error, 1)
		go func() { verified <- flow.Verify(context.Background(), store, "123456") }()
		synctest.Wait()

		read := make(chan State, 1)
		go func() { read <- flow.State() }()
		synctest.Wait()
		select {
		case state := <-read:
			assert.Equal(t, State{OTPSent: true, IsOTPValid: true, ResendCountdown: 60, Phase: PhaseSent}, state)
		default:
			t.Fatal("state is not readable while the verification is in flight")
		}

		close(client.release)
		require.ErrorIs(t, <-verified, invalidOTP)
		assert.Equal(t, PhaseInvalid, flow.State().Phase)
		assert.Equal(t, FailureInvalidCode, flow.State().LastFailure)
	})
}

func (suite *FlowTestSuite) TestVerifyFailureClassification() {
	testCases := []struct {
		name     string
		err      error
		expected Failure
	}{
		{"ClientError", invalidOTP, FailureInvalidCode},
		{"ServerError", &request.HTTPError{StatusCode: 503}, FailureServer},
		{"Network", fmt.Errorf("%w: timeout", request.ErrNetwork), FailureNetwork},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			flow, err := New(Config{Client: &fakeClient{verifyErrs: []error{tc.err}}})
			suite.Require().NoError(err)
			defer flow.Close()

			store := &TransactionHolder{}
			suite.Require().NoError(flow.Send(context.Background(), store, mobileLogin))
			suite.ErrorIs(flow.Verify(context.Background(), store, "123456"), tc.err)

			state := flow.State()
			suite.Equal(PhaseInvalid, state.Phase)
			suite.False(state.IsOTPValid)
			suite.Equal(tc.expected, state.LastFailure)
		})
	}
}

func (suite *FlowTestSuite) TestEditOutsideInvalidIsNoop() {
	flow, err := New(Config{Client: &fakeClient{}})
	suite.Require().NoError(err)
	flow.Edit()
	suite.Equal(PhaseIdle, flow.State().Phase)
}

func (suite *FlowTestSuite) TestCloseStopsCountdown() {
	synctest.Test(suite.T(), func(t *testing.T) {
		flow, err := New(Config{Client: &fakeClient{}})
		require.NoError(t, err)

		require.NoError(t, flow.Send(context.Background(), &TransactionHolder{}, mobileLogin))
		time.Sleep(3 * time.Second)
		synctest.Wait()
		flow.Close()

		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.Equal(t, 57, flow.State().ResendCountdown)
	})
}

func (suite *FlowTestSuite) TestOnCountdownObserver() {
	synctest.Test(suite.T(), func(t *testing.T) {
		var mu sync.Mutex
		var seen []int
		flow, err := New(Config{
			Client:         &fakeClient{},
			ResendInterval: 2,
			OnCountdown: func(v int) {
				mu.Lock()
				seen = append(seen, v)
				mu.Unlock()
			},
		})
		require.NoError(t, err)
		defer flow.Close()

		require.NoError(t, flow.Send(context.Background(), &TransactionHolder{}, mobileLogin))
		time.Sleep(3 * time.Second)
		synctest.Wait()

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []int{2, 1, 0}, seen)
	})
}

func (suite *FlowTestSuite) TestMetricsRecorded() {
	m := metrics.New(prometheus.NewRegistry())
	client := &fakeClient{verifyErrs: []error{invalidOTP}, result: VerifyResult{Payload: json.RawMessage(`{}`)}}
	flow, err := New(Config{Client: client, Metrics: m})
	suite.Require().NoError(err)
	defer flow.Close()

	store := &TransactionHolder{}
	suite.Require().NoError(flow.Send(context.Background(), store, mobileLogin))
	suite.Error(flow.Verify(context.Background(), store, "111111"))
	suite.NoError(flow.Verify(context.Background(), store, "222222"))

	suite.Equal(1.0, testutil.ToFloat64(m.OTPSends.WithLabelValues(string(MethodMobile), metrics.OutcomeSuccess)))
	suite.Equal(1.0, testutil.ToFloat64(m.OTPVerifications.WithLabelValues(metrics.OutcomeFailure)))
	suite.Equal(1.0, testutil.ToFloat64(m.OTPVerifications.WithLabelValues(metrics.OutcomeSuccess)))
}
