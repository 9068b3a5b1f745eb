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
	"net/http"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/abdm-phr/phr/internal/otpflow"
	"github.com/abdm-phr/phr/internal/stepflow"
)

const (
	sendRoute    = "POST /login/otp/send"
	verifyRoute  = "POST /login/otp/verify"
	selectRoute  = "POST /login/account/select"
	passwdRoute  = "POST /login/password"
	profileRoute = "GET /profile"
)

type LoginFlowTestSuite struct {
	suite.Suite
}

func TestLoginFlowTestSuite(t *testing.T) {
	suite.Run(t, new(LoginFlowTestSuite))
}

func (suite *LoginFlowTestSuite) newLogin(b *backend) (*loginFlow, Env) {
	env, _ := newTestEnv(b)
	flow, err := NewFlow(context.Background(), FlowTypeLogin, env)
	suite.Require().NoError(err)
	login, ok := flow.(*loginFlow)
	suite.Require().True(ok)
	return login, env
}

func (suite *LoginFlowTestSuite) TestMobileOTPLogin() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		b.reply(verifyRoute, http.StatusOK, `{"accessToken": "access-1", "refreshToken": "refresh-1"}`)
		b.reply(profileRoute, http.StatusOK, `{"abhaAddress": "asha@abdm", "fullName": "Asha K"}`)
		flow, env := suite.newLogin(b)
		defer flow.Close()
		ctx := context.Background()

		prompt, err := flow.Handle(ctx, stepflow.Action{})
		require.NoError(t, err)
		require.Equal(t, StepLoginIdentifier, prompt.StepID)
		require.Equal(t, stepflow.StatusIncomplete, prompt.Status)

		prompt, err = flow.Handle(ctx, act(ActionSendOTP, InputMethod, "mobile-number", InputValue, "9998887777"))
		require.NoError(t, err)
		require.Equal(t, StepLoginOTP, prompt.StepID)
		state := otpStateOf(t, prompt)
		require.True(t, state.OTPSent)
		require.True(t, state.IsOTPValid)
		require.Equal(t, 60, state.ResendCountdown)
		require.JSONEq(t, `{"value": "9998887777", "type": "mobile-number"}`, b.body(sendRoute))
		require.Equal(t, "txn-1", flow.Memory().TransactionID)

		time.Sleep(time.Second)
		synctest.Wait()
		require.Equal(t, 59, otpStateOf(t, flow.Snapshot()).ResendCountdown)

		prompt, err = flow.Handle(ctx, act(ActionVerify, InputOTP, "123456"))
		require.NoError(t, err)
		require.Equal(t, stepflow.StatusComplete, prompt.Status)
		require.Equal(t, StepLoginOTP, prompt.StepID)
		require.JSONEq(t, `{"otp": "123456", "transactionId": "txn-1"}`, b.body(verifyRoute))
		require.Equal(t, otpflow.PhaseVerified, otpStateOf(t, prompt).Phase)
		require.Equal(t, UserProfile{ABHAAddress: "asha@abdm", FullName: "Asha K"}, prompt.Data[DataProfile])
		require.Equal(t, "Bearer access-1", b.authorization(profileRoute))

		require.True(t, flow.Done())
		require.True(t, env.Session.Authenticated(ctx))
		token, err := env.Session.Token(ctx)
		require.NoError(t, err)
		require.Equal(t, "access-1", token)
	})
}

func (suite *LoginFlowTestSuite) TestInvalidCodeThenEdit() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		b.reply(verifyRoute, http.StatusBadRequest, `{"detail": "Invalid OTP"}`)
		flow, env := suite.newLogin(b)
		defer flow.Close()
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionSendOTP, InputValue, "9998887777"))
		require.NoError(t, err)

		time.Sleep(10 * time.Second)
		synctest.Wait()

		prompt, err := flow.Handle(ctx, act(ActionVerify, InputOTP, "123456"))
		require.NoError(t, err)
		require.Equal(t, StepLoginOTP, prompt.StepID)
		failure := failureOf(t, prompt)
		require.Equal(t, Failure{Kind: FailureKindHTTP, Status: http.StatusBadRequest, Message: "Invalid OTP"},
			failure)
		require.Equal(t, "Invalid OTP", prompt.FailureReason)

		state := otpStateOf(t, prompt)
		require.False(t, state.IsOTPValid)
		require.True(t, state.OTPSent)
		require.Equal(t, otpflow.FailureInvalidCode, state.LastFailure)
		require.Equal(t, 50, state.ResendCountdown)

		time.Sleep(time.Second)
		synctest.Wait()
		require.Equal(t, 49, otpStateOf(t, flow.Snapshot()).ResendCountdown)

		prompt, err = flow.Handle(ctx, act(ActionEdit))
		require.NoError(t, err)
		require.Equal(t, stepflow.StatusIncomplete, prompt.Status)
		require.True(t, otpStateOf(t, prompt).IsOTPValid)
		require.False(t, flow.Done())
		require.False(t, env.Session.Authenticated(ctx))
	})
}

func (suite *LoginFlowTestSuite) TestMalformedCodeNeverReachesBackend() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		b.reply(verifyRoute, http.StatusOK, `{"accessToken": "access-1"}`)
		flow, _ := suite.newLogin(b)
		defer flow.Close()

		_, err := flow.Handle(context.Background(), act(ActionSendOTP, InputValue, "9998887777"))
		require.NoError(t, err)
		prompt, err := flow.Handle(context.Background(), act(ActionVerify, InputOTP, "12ab56"))
		require.NoError(t, err)
		require.Equal(t, FailureKindValidation, failureOf(t, prompt).Kind)
		require.Zero(t, b.count(verifyRoute))
	})
}

func (suite *LoginFlowTestSuite) TestResendGating() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		flow, _ := suite.newLogin(b)
		defer flow.Close()
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionSendOTP, InputValue, "9998887777"))
		require.NoError(t, err)

		prompt, err := flow.Handle(ctx, act(ActionResend))
		require.NoError(t, err)
		require.Equal(t, FailureKindValidation, failureOf(t, prompt).Kind)
		require.Equal(t, 1, b.count(sendRoute))

		time.Sleep(60 * time.Second)
		synctest.Wait()

		prompt, err = flow.Handle(ctx, act(ActionResend))
		require.NoError(t, err)
		require.Equal(t, stepflow.StatusIncomplete, prompt.Status)
		require.Equal(t, 60, otpStateOf(t, prompt).ResendCountdown)
		require.Equal(t, 2, b.count(sendRoute))
	})
}

func (suite *LoginFlowTestSuite) TestAccountSelection() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		b.reply(verifyRoute, http.StatusOK, `{"accounts": ["asha@abdm", "asha.k@abdm"]}`)
		b.reply(selectRoute, http.StatusOK, `{"accessToken": "access-2", "refreshToken": "refresh-2"}`)
		b.reply(profileRoute, http.StatusOK, `{"abhaAddress": "asha.k@abdm", "fullName": "Asha K"}`)
		flow, env := suite.newLogin(b)
		defer flow.Close()
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionSendOTP, InputValue, "9998887777"))
		require.NoError(t, err)
		prompt, err := flow.Handle(ctx, act(ActionVerify, InputOTP, "123456"))
		require.NoError(t, err)
		require.Equal(t, StepLoginSelectAccount, prompt.StepID)
		require.Equal(t, []string{"asha@abdm", "asha.k@abdm"}, prompt.Data[DataAccounts])
		require.False(t, env.Session.Authenticated(ctx))

		prompt, err = flow.Handle(ctx, act(ActionSelect, InputABHAAddress, "someone@abdm"))
		require.NoError(t, err)
		require.Equal(t, FailureKindValidation, failureOf(t, prompt).Kind)
		require.Zero(t, b.count(selectRoute))

		prompt, err = flow.Handle(ctx, act(ActionSelect, InputABHAAddress, "asha.k@abdm"))
		require.NoError(t, err)
		require.Equal(t, stepflow.StatusComplete, prompt.Status)
		require.JSONEq(t, `{"abhaAddress": "asha.k@abdm", "transactionId": "txn-1"}`, b.body(selectRoute))
		require.Equal(t, "asha.k@abdm", flow.Memory().ABHAAddress)
		require.True(t, flow.Done())
		require.True(t, env.Session.Authenticated(ctx))
	})
}

func (suite *LoginFlowTestSuite) TestVerificationWithoutAccounts() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		b.reply(verifyRoute, http.StatusOK, `{"accounts": []}`)
		flow, _ := suite.newLogin(b)
		defer flow.Close()

		_, err := flow.Handle(context.Background(), act(ActionSendOTP, InputValue, "9998887777"))
		require.NoError(t, err)
		prompt, err := flow.Handle(context.Background(), act(ActionVerify, InputOTP, "123456"))
		require.NoError(t, err)
		require.Equal(t, StepLoginOTP, prompt.StepID)
		require.Equal(t, FailureKindValidation, failureOf(t, prompt).Kind)
	})
}

func (suite *LoginFlowTestSuite) TestPasswordLogin() {
	b := newBackend()
	b.handle(passwdRoute, func(w http.ResponseWriter, r *http.Request) {
		if b.body(passwdRoute) != `{"abhaAddress":"asha@abdm","password":"secret"}` {
			writeJSON(w, http.StatusBadRequest, `{"password": ["Incorrect password"]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"accessToken": "access-3", "refreshToken": "refresh-3"}`)
	})
	b.reply(profileRoute, http.StatusInternalServerError, `{"detail": "unavailable"}`)
	flow, env := suite.newLogin(b)
	defer flow.Close()
	ctx := context.Background()

	prompt, err := flow.Handle(ctx, act(ActionUsePassword))
	suite.Require().NoError(err)
	suite.Equal(StepLoginPassword, prompt.StepID)

	prompt, err = flow.Handle(ctx, act(ActionLogin, InputABHAAddress, "asha@abdm"))
	suite.Require().NoError(err)
	suite.Equal(FailureKindValidation, failureOf(suite.T(), prompt).Kind)

	prompt, err = flow.Handle(ctx, act(ActionLogin, InputABHAAddress, "asha@abdm", InputPassword, "wrong"))
	suite.Require().NoError(err)
	failure := failureOf(suite.T(), prompt)
	suite.Equal(http.StatusBadRequest, failure.Status)
	suite.Equal(map[string][]string{"password": {"Incorrect password"}}, failure.Fields)

	prompt, err = flow.Handle(ctx, act(ActionLogin, InputABHAAddress, "asha@abdm", InputPassword, "secret"))
	suite.Require().NoError(err)
	suite.Equal(stepflow.StatusComplete, prompt.Status)
	suite.NotContains(prompt.Data, DataProfile)
	suite.True(flow.Done())
	suite.True(env.Session.Authenticated(ctx))
}

func (suite *LoginFlowTestSuite) TestBackRestartsOTP() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		b.reply(sendRoute, http.StatusOK, `{"transactionId": "txn-1"}`)
		flow, _ := suite.newLogin(b)
		defer flow.Close()
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionSendOTP, InputValue, "9998887777"))
		require.NoError(t, err)
		prompt, err := flow.Handle(ctx, act(ActionBack))
		require.NoError(t, err)
		require.Equal(t, StepLoginIdentifier, prompt.StepID)
		state := otpStateOf(t, prompt)
		require.Equal(t, otpflow.PhaseIdle, state.Phase)
		require.Zero(t, state.ResendCountdown)
		require.Empty(t, flow.Memory().TransactionID)

		// A new contact can be used right away.
		_, err = flow.Handle(ctx, act(ActionSendOTP, InputValue, "9998886666"))
		require.NoError(t, err)
		require.Equal(t, 2, b.count(sendRoute))
	})
}

func (suite *LoginFlowTestSuite) TestSendFailures() {
	b := newBackend()
	flow, _ := suite.newLogin(b)
	defer flow.Close()
	ctx := context.Background()

	prompt, err := flow.Handle(ctx, act(ActionSendOTP, InputMethod, "aadhaar", InputValue, "1234"))
	suite.Require().NoError(err)
	suite.Equal(FailureKindValidation, failureOf(suite.T(), prompt).Kind)

	b.failWith(errors.New("connection refused"))
	prompt, err = flow.Handle(ctx, act(ActionSendOTP, InputValue, "9998887777"))
	suite.Require().NoError(err)
	suite.Equal(StepLoginIdentifier, prompt.StepID)
	suite.Equal(Failure{Kind: FailureKindNetwork, Message: "Network Error"}, failureOf(suite.T(), prompt))
	suite.Equal(otpflow.PhaseIdle, otpStateOf(suite.T(), prompt).Phase)
}

func (suite *LoginFlowTestSuite) TestUnknownAction() {
	flow, _ := suite.newLogin(newBackend())
	defer flow.Close()

	_, err := flow.Handle(context.Background(), act("launch"))
	suite.ErrorIs(err, ErrUnknownAction)
}

func TestNewFlowRejections(t *testing.T) {
	env, _ := newTestEnv(newBackend())

	_, err := NewFlow(context.Background(), "CONSENT", env)
	require.ErrorIs(t, err, ErrUnknownFlowType)

	_, err = NewFlow(context.Background(), FlowTypeLinking, env)
	require.ErrorIs(t, err, ErrAuthenticationRequired)

	env.Session = nil
	_, err = NewFlow(context.Background(), FlowTypeLinking, env)
	require.ErrorIs(t, err, ErrAuthenticationRequired)
}
