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
	"strings"
	"sync"

	"github.com/abdm-phr/phr/internal/linking"
	"github.com/abdm-phr/phr/internal/stepflow"
	"github.com/abdm-phr/phr/internal/system/log"
)

const linkLoggerComponentName = "LinkFlow"

// Linking steps.
const (
	StepLinkFacility stepflow.StepID = "facility"
	StepLinkLinking  stepflow.StepID = "linking"
	StepLinkDone     stepflow.StepID = "done"
)

// DefaultIdentifierType is used when a link request names no identifier type.
const DefaultIdentifierType = "MOBILE"

// LinkMemory is the flow memory of the linking journey.
type LinkMemory struct {
	Query   string      `json:"query,omitempty"`
	Request LinkRequest `json:"request"`
}

// LinkStatus is the live state of the linking job.
type LinkStatus struct {
	IsPolling bool          `json:"isPolling"`
	RequestID string        `json:"requestId,omitempty"`
	State     linking.State `json:"state"`
	Failure   *Failure      `json:"failure,omitempty"`
}

type linkFlow struct {
	env        Env
	api        *API // bound to the session tokens
	engine     *stepflow.Engine[LinkMemory]
	poller     *linking.Poller[LinkRequest]
	facilities typeahead[[]Facility]
	logger     *log.Logger

	mu     sync.Mutex
	result *linking.StatusResult
}

func newLinkFlow(env Env) (*linkFlow, error) {
	f := &linkFlow{
		env:    env,
		api:    env.API.WithSession(env.Session),
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, linkLoggerComponentName)),
	}
	f.poller = linking.NewPoller[LinkRequest](f.api, linking.Config{
		PollInterval:    env.Options.PollInterval,
		WatchdogTimeout: env.Options.WatchdogTimeout,
		Metrics:         env.Options.Metrics,
		Handlers: linking.Handlers{
			OnCompleted: f.onCompleted,
			OnFailed:    f.onFinished,
			OnTimeout:   f.onFinished,
		},
	})

	engine, err := stepflow.New([]stepflow.Step[LinkMemory]{
		{ID: StepLinkFacility, View: f.facilityStep},
		{ID: StepLinkLinking, View: f.linkingStep},
		{ID: StepLinkDone, View: f.doneStep},
	}, LinkMemory{})
	if err != nil {
		return nil, err
	}
	f.engine = engine
	return f, nil
}

func (f *linkFlow) Type() FlowType {
	return FlowTypeLinking
}

func (f *linkFlow) Handle(ctx context.Context, action stepflow.Action) (*stepflow.Prompt, error) {
	prompt, err := f.engine.Handle(ctx, action)
	if err != nil {
		return nil, err
	}
	return withLive(prompt, f.live()), nil
}

func (f *linkFlow) Snapshot() *stepflow.Prompt {
	return withLive(f.engine.Last(), f.live())
}

func (f *linkFlow) Done() bool {
	return f.engine.CurrentStep() == StepLinkDone
}

func (f *linkFlow) Close() {
	f.poller.Stop()
	f.facilities.Close()
}

// Memory returns the flow memory.
func (f *linkFlow) Memory() LinkMemory {
	return f.engine.Memory()
}

// Wait blocks until the running linking job and facility search finished.
func (f *linkFlow) Wait() {
	f.poller.Wait()
	f.facilities.Wait()
}

func (f *linkFlow) onCompleted(_ context.Context, result linking.StatusResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = &result
}

func (f *linkFlow) onFinished(_ context.Context, err error) {
	f.logger.Debug("Linking finished without records", log.Error(err))
}

func (f *linkFlow) linkStatus() LinkStatus {
	status := LinkStatus{
		IsPolling: f.poller.IsPolling(),
		RequestID: f.poller.RequestID(),
		State:     f.poller.State(),
	}
	if err := f.poller.Err(); err != nil {
		if failure, ok := FailureOf(err); ok {
			status.Failure = &failure
		} else {
			status.Failure = &Failure{Kind: FailureKindHTTP, Message: err.Error()}
		}
	}
	return status
}

func (f *linkFlow) live() map[string]any {
	facilities, searching, err := f.facilities.Results()
	live := map[string]any{
		DataLinking:    f.linkStatus(),
		DataFacilities: facilities,
		DataSearching:  searching,
	}
	if err != nil {
		if failure, ok := FailureOf(err); ok {
			live[DataFailure] = failure
		}
	}
	f.mu.Lock()
	if f.result != nil {
		live[DataResult] = f.result.Payload
	}
	f.mu.Unlock()
	return live
}

func facilityPrompt() *stepflow.Prompt {
	return &stepflow.Prompt{
		Inputs: []stepflow.InputData{
			{Name: InputQuery, Type: "string"},
			{Name: InputFacilityID, Type: "select", Required: true},
			{Name: InputPatientIdentifier, Type: "string", Required: true},
			{Name: InputIdentifierType, Type: "select"},
		},
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeView, ID: ActionSearch},
			{Type: stepflow.ActionTypeSubmit, ID: ActionLink},
		},
	}
}

func (f *linkFlow) facilityStep(ctx context.Context, ctl *stepflow.Controls[LinkMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "":
		return facilityPrompt(), nil
	case ActionSearch:
		query := strings.TrimSpace(action.Input(InputQuery))
		ctl.SetMemory(func(m *LinkMemory) { m.Query = query })
		if query != "" {
			debounce := f.env.Options.SearchDebounce
			f.facilities.Update(ctx, func(ctx context.Context) ([]Facility, error) {
				return f.api.SearchFacilities(ctx, query, debounce)
			})
		}
		return facilityPrompt(), nil
	case ActionLink:
		if err := required(action, InputFacilityID, InputPatientIdentifier); err != nil {
			return failed(facilityPrompt(), err)
		}
		req := LinkRequest{
			FacilityID:        action.Input(InputFacilityID),
			PatientIdentifier: strings.TrimSpace(action.Input(InputPatientIdentifier)),
			IdentifierType:    action.Input(InputIdentifierType),
		}
		if req.IdentifierType == "" {
			req.IdentifierType = DefaultIdentifierType
		}
		if err := f.start(ctx, req); err != nil {
			return failed(facilityPrompt(), err)
		}
		ctl.SetMemory(func(m *LinkMemory) { m.Request = req })
		f.facilities.Close()
		ctl.GoTo(StepLinkLinking)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *linkFlow) start(ctx context.Context, req LinkRequest) error {
	if err := f.poller.Start(ctx, req); err != nil {
		return err
	}
	f.mu.Lock()
	f.result = nil
	f.mu.Unlock()
	return nil
}

func linkingPrompt() *stepflow.Prompt {
	return &stepflow.Prompt{
		Actions: []stepflow.PromptAction{
			{Type: stepflow.ActionTypeView, ID: ActionRefresh},
			{Type: stepflow.ActionTypeSubmit, ID: ActionRetry},
			{Type: stepflow.ActionTypeView, ID: ActionBack},
		},
	}
}

func (f *linkFlow) linkingStep(ctx context.Context, ctl *stepflow.Controls[LinkMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	switch action.ID {
	case "", ActionRefresh:
		if f.poller.State() == linking.StateCompleted {
			ctl.GoTo(StepLinkDone)
			return nil, nil
		}
		return linkingPrompt(), nil
	case ActionRetry:
		if f.poller.IsPolling() {
			return linkingPrompt(), nil
		}
		if err := f.start(ctx, ctl.Memory().Request); err != nil {
			return failed(linkingPrompt(), err)
		}
		return linkingPrompt(), nil
	case ActionBack:
		f.poller.Stop()
		ctl.GoTo(StepLinkFacility)
		return nil, nil
	default:
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
}

func (f *linkFlow) doneStep(_ context.Context, ctl *stepflow.Controls[LinkMemory],
	action stepflow.Action) (*stepflow.Prompt, error) {
	if !action.IsRender() {
		return nil, unknownAction(ctl.CurrentStep(), action)
	}
	return completed(map[string]any{"request": ctl.Memory().Request}), nil
}
