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

// Package flowexec exposes the PHR flows over HTTP and keeps the running flow instances.
package flowexec

import (
	"context"
	"errors"
	"time"

	"github.com/abdm-phr/phr/internal/auth"
	"github.com/abdm-phr/phr/internal/phr"
	"github.com/abdm-phr/phr/internal/stepflow"
	"github.com/abdm-phr/phr/internal/system/cache"
	"github.com/abdm-phr/phr/internal/system/error/serviceerror"
	"github.com/abdm-phr/phr/internal/system/log"
	sysutils "github.com/abdm-phr/phr/internal/system/utils"
)

const serviceLoggerComponentName = "FlowExecService"

// FlowExecServiceInterface defines the entry point for flow execution.
type FlowExecServiceInterface interface {
	Execute(ctx context.Context, sessionID string, req FlowRequest) (*FlowResponse, *serviceerror.ServiceError)
	GetFlow(sessionID, flowID string) (*FlowResponse, *serviceerror.ServiceError)
	CloseFlow(sessionID, flowID string) *serviceerror.ServiceError
	// RunCleanup closes expired flows periodically until ctx is cancelled.
	RunCleanup(ctx context.Context, interval time.Duration)
	// Shutdown closes every running flow.
	Shutdown()
}

// Config configures the flow execution service.
type Config struct {
	API       *phr.API
	Sessions  *auth.Manager
	Options   phr.Options
	CacheSize int
	TTL       time.Duration
}

type flowInstance struct {
	id        string
	sessionID string
	flow      phr.Flow
}

type flowExecService struct {
	api      *phr.API
	sessions *auth.Manager
	options  phr.Options
	flows    *cache.InMemoryCache[*flowInstance]
	logger   *log.Logger
}

func newFlowExecService(cfg Config) *flowExecService {
	s := &flowExecService{
		api:      cfg.API,
		sessions: cfg.Sessions,
		options:  cfg.Options,
		logger:   log.GetLogger().With(log.String(log.LoggerKeyComponentName, serviceLoggerComponentName)),
	}
	s.flows = cache.NewInMemoryCache(cfg.CacheSize, cfg.TTL, s.onEvict)
	return s
}

// Execute starts a flow when req carries no flow id and otherwise routes the action to the active
// step of the stored flow. Completed flows are closed and forgotten.
func (s *flowExecService) Execute(ctx context.Context, sessionID string, req FlowRequest) (
	*FlowResponse, *serviceerror.ServiceError) {
	if sessionID == "" {
		return nil, &ErrorSessionRequired
	}

	var inst *flowInstance
	if req.FlowID == "" {
		created, svcErr := s.newInstance(ctx, sessionID, req.FlowType)
		if svcErr != nil {
			return nil, svcErr
		}
		inst = created
	} else {
		loaded, svcErr := s.load(sessionID, req.FlowID)
		if svcErr != nil {
			return nil, svcErr
		}
		inst = loaded
	}
	logger := s.logger.With(log.String(log.LoggerKeyFlowID, inst.id),
		log.String(log.LoggerKeyFlowType, string(inst.flow.Type())))

	prompt, err := inst.flow.Handle(ctx, stepflow.Action{ID: req.ActionID, Inputs: req.Inputs})
	if err != nil {
		svcErr := s.toServiceError(err, logger)
		if svcErr.Type == serviceerror.ServerErrorType {
			s.flows.Delete(inst.id)
		}
		return nil, svcErr
	}
	s.recordAction(inst.flow.Type(), prompt.StepID)

	if inst.flow.Done() {
		logger.Debug("Flow completed", log.String(log.LoggerKeyStepID, string(prompt.StepID)))
		s.flows.Delete(inst.id)
	}
	return toResponse(inst, prompt), nil
}

// GetFlow returns the current prompt of a flow refreshed with its live state.
func (s *flowExecService) GetFlow(sessionID, flowID string) (*FlowResponse, *serviceerror.ServiceError) {
	inst, svcErr := s.load(sessionID, flowID)
	if svcErr != nil {
		return nil, svcErr
	}
	prompt := inst.flow.Snapshot()
	if prompt == nil {
		return nil, &ErrorFlowNotFound
	}
	return toResponse(inst, prompt), nil
}

// CloseFlow stops the timers and pollers of a flow and forgets it.
func (s *flowExecService) CloseFlow(sessionID, flowID string) *serviceerror.ServiceError {
	inst, svcErr := s.load(sessionID, flowID)
	if svcErr != nil {
		return svcErr
	}
	s.flows.Delete(inst.id)
	return nil
}

func (s *flowExecService) RunCleanup(ctx context.Context, interval time.Duration) {
	s.flows.RunCleanup(ctx, interval)
}

func (s *flowExecService) Shutdown() {
	s.flows.Clear()
}

func (s *flowExecService) newInstance(ctx context.Context, sessionID, flowTypeStr string) (
	*flowInstance, *serviceerror.ServiceError) {
	flowType := phr.FlowType(sysutils.SanitizeString(flowTypeStr))
	env := phr.Env{API: s.api, Session: s.sessions.Session(sessionID), Options: s.options}

	flow, err := phr.NewFlow(ctx, flowType, env)
	if err != nil {
		switch {
		case errors.Is(err, phr.ErrUnknownFlowType):
			return nil, &ErrorInvalidFlowType
		case errors.Is(err, phr.ErrAuthenticationRequired):
			return nil, &ErrorAuthenticationRequired
		default:
			s.logger.Error("Failed to create flow", log.String(log.LoggerKeyFlowType, string(flowType)),
				log.Error(err))
			return nil, &ErrorFlowCreation
		}
	}

	inst := &flowInstance{id: sysutils.GenerateUUID(), sessionID: sessionID, flow: flow}
	s.flows.Set(inst.id, inst)
	if m := s.options.Metrics; m != nil {
		m.ActiveFlows.WithLabelValues(string(flowType)).Inc()
	}
	s.logger.Debug("Flow created", log.String(log.LoggerKeyFlowID, inst.id),
		log.String(log.LoggerKeyFlowType, string(flowType)))
	return inst, nil
}

// load returns the flow with id flowID if it belongs to the session.
func (s *flowExecService) load(sessionID, flowID string) (*flowInstance, *serviceerror.ServiceError) {
	if sessionID == "" {
		return nil, &ErrorSessionRequired
	}
	inst, ok := s.flows.Get(flowID)
	if !ok || inst.sessionID != sessionID {
		return nil, &ErrorFlowNotFound
	}
	return inst, nil
}

func (s *flowExecService) onEvict(key string, inst *flowInstance, reason cache.EvictionReason) {
	inst.flow.Close()
	if m := s.options.Metrics; m != nil {
		m.ActiveFlows.WithLabelValues(string(inst.flow.Type())).Dec()
	}
	s.logger.Debug("Flow closed", log.String(log.LoggerKeyFlowID, key), log.String("reason", string(reason)))
}

func (s *flowExecService) toServiceError(err error, logger *log.Logger) *serviceerror.ServiceError {
	switch {
	case errors.Is(err, phr.ErrUnknownAction):
		return serviceerror.CustomServiceError(ErrorInvalidAction, err.Error())
	case errors.Is(err, phr.ErrInvalidInput):
		return serviceerror.CustomServiceError(ErrorInvalidInput, err.Error())
	case errors.Is(err, phr.ErrAuthenticationRequired):
		return &ErrorAuthenticationRequired
	default:
		logger.Error("Flow step failed", log.Error(err))
		return &ErrorFlowExecution
	}
}

func (s *flowExecService) recordAction(flowType phr.FlowType, step stepflow.StepID) {
	if m := s.options.Metrics; m != nil {
		m.FlowActions.WithLabelValues(string(flowType), string(step)).Inc()
	}
}

func toResponse(inst *flowInstance, prompt *stepflow.Prompt) *FlowResponse {
	return &FlowResponse{
		FlowID:     inst.id,
		FlowType:   string(inst.flow.Type()),
		StepID:     string(prompt.StepID),
		FlowStatus: string(prompt.Status),
		Data: FlowData{
			Inputs:         prompt.Inputs,
			Actions:        prompt.Actions,
			AdditionalData: prompt.Data,
		},
		FailureReason: prompt.FailureReason,
	}
}
