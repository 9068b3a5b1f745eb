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
	"net/http"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/linking"
	"github.com/abdm-phr/phr/internal/stepflow"
)

const (
	facilitiesRoute = "GET /facilities"
	linkStartRoute  = "POST /patients/links"
	linkStatusRoute = "GET /patients/links/{requestId}/status"
)

// statusQueue answers status checks in order and then keeps repeating the last answer.
type statusQueue struct {
	mu       sync.Mutex
	statuses []string
}

func (q *statusQueue) next() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	status := q.statuses[0]
	if len(q.statuses) > 1 {
		q.statuses = q.statuses[1:]
	}
	return status
}

type LinkFlowTestSuite struct {
	suite.Suite
}

func TestLinkFlowTestSuite(t *testing.T) {
	suite.Run(t, new(LinkFlowTestSuite))
}

func (suite *LinkFlowTestSuite) newLinking(b *backend, statuses ...string) *linkFlow {
	queue := &statusQueue{statuses: statuses}
	b.reply(linkStartRoute, http.StatusOK, `{"requestId": "req-1"}`)
	b.handle(linkStatusRoute, func(w http.ResponseWriter, r *http.Request) {
		suite.Equal("req-1", r.PathValue("requestId"))
		writeJSON(w, http.StatusOK, queue.next())
	})
	b.handle(facilitiesRoute, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"facilities": [{"id": "f-1", "name": "`+r.URL.Query().Get("name")+` Hospital"}]}`)
	})

	env, session := newTestEnv(b)
	suite.Require().NoError(session.OnAuthenticated(context.Background(),
		auth.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}))
	flow, err := NewFlow(context.Background(), FlowTypeLinking, env)
	suite.Require().NoError(err)
	link, ok := flow.(*linkFlow)
	suite.Require().True(ok)
	return link
}

func linkStatusOf(t *testing.T, prompt *stepflow.Prompt) LinkStatus {
	t.Helper()
	status, ok := prompt.Data[DataLinking].(LinkStatus)
	require.True(t, ok, "prompt carries no linking status")
	return status
}

func (suite *LinkFlowTestSuite) TestSearchAndLink() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		flow := suite.newLinking(b,
			`{"status": "pending"}`,
			`{"status": "pending"}`,
			`{"status": "completed", "payload": {"careContexts": 2}}`)
		defer flow.Close()
		ctx := context.Background()

		prompt, err := flow.Handle(ctx, stepflow.Action{})
		require.NoError(t, err)
		require.Equal(t, StepLinkFacility, prompt.StepID)
		require.Equal(t, LinkStatus{State: linking.StateIdle}, linkStatusOf(t, prompt))

		_, err = flow.Handle(ctx, act(ActionSearch, InputQuery, "City"))
		require.NoError(t, err)
		time.Sleep(time.Second)
		synctest.Wait()
		require.Equal(t, []Facility{{ID: "f-1", Name: "City Hospital"}}, flow.Snapshot().Data[DataFacilities])
		require.Equal(t, "Bearer access-1", b.authorization(facilitiesRoute))

		prompt, err = flow.Handle(ctx, act(ActionLink, InputFacilityID, "f-1", InputPatientIdentifier, "9998887777"))
		require.NoError(t, err)
		require.Equal(t, StepLinkLinking, prompt.StepID)
		require.Equal(t, LinkStatus{IsPolling: true, RequestID: "req-1", State: linking.StateStarted},
			linkStatusOf(t, prompt))
		require.JSONEq(t, `{"facilityId": "f-1", "patientIdentifier": "9998887777", "identifierType": "MOBILE"}`,
			b.body(linkStartRoute))

		time.Sleep(4500 * time.Millisecond)
		synctest.Wait()
		require.Equal(t, 2, b.count(linkStatusRoute))
		require.True(t, linkStatusOf(t, flow.Snapshot()).IsPolling)

		time.Sleep(2 * time.Second)
		synctest.Wait()
		require.Equal(t, 3, b.count(linkStatusRoute))
		snapshot := flow.Snapshot()
		require.Equal(t, LinkStatus{State: linking.StateCompleted}, linkStatusOf(t, snapshot))
		require.JSONEq(t, `{"careContexts": 2}`, string(snapshot.Data[DataResult].(json.RawMessage)))

		prompt, err = flow.Handle(ctx, act(ActionRefresh))
		require.NoError(t, err)
		require.Equal(t, StepLinkDone, prompt.StepID)
		require.Equal(t, stepflow.StatusComplete, prompt.Status)
		require.True(t, flow.Done())
	})
}

func (suite *LinkFlowTestSuite) TestWatchdogThenRetry() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		flow := suite.newLinking(b, `{"status": "pending"}`)
		defer flow.Close()
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionLink, InputFacilityID, "f-1", InputPatientIdentifier, "9998887777"))
		require.NoError(t, err)

		time.Sleep(10 * time.Second)
		synctest.Wait()
		status := linkStatusOf(t, flow.Snapshot())
		require.False(t, status.IsPolling)
		require.Empty(t, status.RequestID)
		require.Equal(t, linking.StateTimedOut, status.State)
		require.Equal(t, &Failure{Kind: FailureKindTimeout, Message: linking.ErrWatchdogTimeout.Error()}, status.Failure)
		require.Equal(t, 4, b.count(linkStatusRoute))

		prompt, err := flow.Handle(ctx, act(ActionRetry))
		require.NoError(t, err)
		require.Equal(t, StepLinkLinking, prompt.StepID)
		require.True(t, linkStatusOf(t, prompt).IsPolling)
		require.Equal(t, 2, b.count(linkStartRoute))

		prompt, err = flow.Handle(ctx, act(ActionBack))
		require.NoError(t, err)
		require.Equal(t, StepLinkFacility, prompt.StepID)
		require.False(t, linkStatusOf(t, prompt).IsPolling)

		time.Sleep(10 * time.Second)
		synctest.Wait()
		require.Equal(t, 4, b.count(linkStatusRoute))
		require.False(t, flow.Done())
	})
}

func (suite *LinkFlowTestSuite) TestLinkValidation() {
	b := newBackend()
	flow := suite.newLinking(b, `{"status": "pending"}`)
	defer flow.Close()

	prompt, err := flow.Handle(context.Background(), act(ActionLink, InputFacilityID, "f-1"))
	suite.Require().NoError(err)
	suite.Equal(StepLinkFacility, prompt.StepID)
	suite.Equal(FailureKindValidation, failureOf(suite.T(), prompt).Kind)
	suite.Zero(b.count(linkStartRoute))
}

func (suite *LinkFlowTestSuite) TestFailedJob() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		flow := suite.newLinking(b, `{"status": "failed"}`)
		defer flow.Close()
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionLink, InputFacilityID, "f-1", InputPatientIdentifier, "9998887777"))
		require.NoError(t, err)
		time.Sleep(3 * time.Second)
		synctest.Wait()

		status := linkStatusOf(t, flow.Snapshot())
		require.Equal(t, linking.StateFailed, status.State)
		require.NotNil(t, status.Failure)
		require.Equal(t, FailureKindValidation, status.Failure.Kind)

		prompt, err := flow.Handle(ctx, act(ActionRefresh))
		require.NoError(t, err)
		require.Equal(t, StepLinkLinking, prompt.StepID)
		require.False(t, flow.Done())
	})
}

func (suite *LinkFlowTestSuite) TestCloseStopsPolling() {
	synctest.Test(suite.T(), func(t *testing.T) {
		b := newBackend()
		flow := suite.newLinking(b, `{"status": "pending"}`)
		ctx := context.Background()

		_, err := flow.Handle(ctx, act(ActionLink, InputFacilityID, "f-1", InputPatientIdentifier, "9998887777"))
		require.NoError(t, err)
		time.Sleep(3 * time.Second)
		synctest.Wait()
		require.Equal(t, 1, b.count(linkStatusRoute))

		flow.Close()
		time.Sleep(10 * time.Second)
		synctest.Wait()
		require.Equal(t, 1, b.count(linkStatusRoute))
		require.Equal(t, linking.StateIdle, linkStatusOf(t, flow.Snapshot()).State)
	})
}
