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

// Package linking tracks an asynchronous linking job: it starts the job, polls its status at a
// fixed interval and gives up when a watchdog deadline passes.
package linking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdm-phr/phr/internal/system/log"
	"github.com/abdm-phr/phr/internal/system/metrics"
)

const loggerComponentName = "LinkingPoller"

const (
	// DefaultPollInterval is the delay between status checks.
	DefaultPollInterval = 2 * time.Second
	// DefaultWatchdogTimeout bounds a job from the moment it started.
	DefaultWatchdogTimeout = 10 * time.Second
)

var (
	// ErrWatchdogTimeout is reported when no terminal status arrived before the deadline.
	ErrWatchdogTimeout = errors.New("linking is taking too long, please try again")
	// ErrLinkingFailed is reported when the backend marks the job as failed.
	ErrLinkingFailed = errors.New("linking failed")
	// ErrMissingRequestID is returned when the backend accepted a job without a request id.
	ErrMissingRequestID = errors.New("linking started without a request id")

	errStopped    = errors.New("linking poller stopped")
	errSuperseded = errors.New("linking job superseded")
)

// JobStatus is the status reported by the backend.
type JobStatus string

const (
	// JobPending means the job is still running.
	JobPending JobStatus = "pending"
	// JobCompleted means the job finished successfully.
	JobCompleted JobStatus = "completed"
	// JobFailed means the job finished unsuccessfully.
	JobFailed JobStatus = "failed"
)

// StatusResult is one status check response.
type StatusResult struct {
	Status  JobStatus       `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// State is the poller state.
type State string

const (
	// StateIdle means no job is tracked.
	StateIdle State = "IDLE"
	// StateStarted means a job is being polled.
	StateStarted State = "STARTED"
	// StateCompleted means the last job completed.
	StateCompleted State = "COMPLETED"
	// StateFailed means the last job failed or its status could not be read.
	StateFailed State = "FAILED"
	// StateTimedOut means the watchdog stopped the last job.
	StateTimedOut State = "TIMED_OUT"
)

// Client starts linking jobs and reports their status.
type Client[Req any] interface {
	StartLinking(ctx context.Context, req Req) (string, error)
	LinkingStatus(ctx context.Context, requestID string) (StatusResult, error)
}

// Handlers receive the outcome of a job. They run on the polling goroutine and must not call
// Start, Stop or Wait.
type Handlers struct {
	OnCompleted func(ctx context.Context, result StatusResult)
	OnFailed    func(ctx context.Context, err error)
	OnTimeout   func(ctx context.Context, err error)
}

// Config configures a Poller.
type Config struct {
	PollInterval    time.Duration
	WatchdogTimeout time.Duration
	Handlers        Handlers
	Metrics         *metrics.Metrics
}

// Poller tracks at most one linking job at a time.
type Poller[Req any] struct {
	client Client[Req]
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	gen       uint64
	requestID string
	state     State
	lastErr   error
	cancel    context.CancelCauseFunc
	done      chan struct{}
}

// NewPoller creates an idle poller.
func NewPoller[Req any](client Client[Req], cfg Config) *Poller[Req] {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = DefaultWatchdogTimeout
	}
	return &Poller[Req]{
		client: client,
		cfg:    cfg,
		state:  StateIdle,
		logger: log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName)),
	}
}

// Start initiates a job. A failed initiation is returned without retrying and leaves any current
// job untouched. On success the current job is cancelled before the new one starts polling.
// The job outlives ctx cancellation but keeps its values.
func (p *Poller[Req]) Start(ctx context.Context, req Req) error {
	requestID, err := p.client.StartLinking(ctx, req)
	if err != nil {
		p.logger.Debug("Failed to start linking", log.Error(err))
		return err
	}
	if requestID == "" {
		return ErrMissingRequestID
	}
	deadline := time.Now().Add(p.cfg.WatchdogTimeout)

	p.mu.Lock()
	prevDone := p.cancelLocked(errSuperseded)
	p.gen++
	gen := p.gen
	jobCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.requestID = requestID
	p.state = StateStarted
	p.lastErr = nil
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	if prevDone != nil {
		<-prevDone
	}

	p.logger.Debug("Linking started", log.String(log.LoggerKeyRequestID, requestID))
	go p.run(jobCtx, cancel, gen, requestID, deadline, done)
	return nil
}

// Stop cancels the current job without invoking any handler and waits for it to exit.
func (p *Poller[Req]) Stop() {
	p.mu.Lock()
	done := p.cancelLocked(errStopped)
	p.gen++
	if p.state == StateStarted {
		p.state = StateIdle
	}
	p.requestID = ""
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Wait blocks until the current job, if any, has exited.
func (p *Poller[Req]) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// RequestID returns the id of the tracked job, or "" when idle.
func (p *Poller[Req]) RequestID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestID
}

// IsPolling reports whether a job is tracked.
func (p *Poller[Req]) IsPolling() bool {
	return p.RequestID() != ""
}

// State returns the poller state.
func (p *Poller[Req]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error of the last failed or timed out job.
func (p *Poller[Req]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *Poller[Req]) cancelLocked(cause error) chan struct{} {
	if p.cancel != nil {
		p.cancel(cause)
		p.cancel = nil
	}
	return p.done
}

func (p *Poller[Req]) run(ctx context.Context, cancel context.CancelCauseFunc, gen uint64,
	requestID string, deadline time.Time, done chan struct{}) {
	defer close(done)
	defer cancel(context.Canceled)

	logger := p.logger.With(log.String(log.LoggerKeyRequestID, requestID))
	watchCtx, stopWatchdog := context.WithDeadlineCause(ctx, deadline, ErrWatchdogTimeout)
	defer stopWatchdog()

	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-watchCtx.Done():
			p.interrupted(watchCtx, gen, logger)
			return
		case <-timer.C:
		}
		if !time.Now().Before(deadline) {
			p.timeout(watchCtx, gen, logger)
			return
		}

		p.recordStatusCheck()
		result, err := p.client.LinkingStatus(watchCtx, requestID)
		if err != nil {
			if watchCtx.Err() != nil {
				p.interrupted(watchCtx, gen, logger)
				return
			}
			logger.Debug("Linking status check failed", log.Error(err))
			p.fail(watchCtx, gen, err)
			return
		}

		switch result.Status {
		case JobPending:
			timer.Reset(p.cfg.PollInterval)
		case JobCompleted:
			logger.Debug("Linking completed")
			if p.finish(gen, StateCompleted, nil, metrics.OutcomeSuccess) && p.cfg.Handlers.OnCompleted != nil {
				p.cfg.Handlers.OnCompleted(ctx, result)
			}
			return
		default:
			logger.Debug("Linking failed", log.String("status", string(result.Status)))
			p.fail(watchCtx, gen, fmt.Errorf("%w: status %q", ErrLinkingFailed, result.Status))
			return
		}
	}
}

// interrupted handles a cancelled job context: only the watchdog reports an outcome.
func (p *Poller[Req]) interrupted(ctx context.Context, gen uint64, logger *log.Logger) {
	if errors.Is(context.Cause(ctx), ErrWatchdogTimeout) {
		p.timeout(ctx, gen, logger)
		return
	}
	logger.Debug("Linking job cancelled", log.Error(context.Cause(ctx)))
}

func (p *Poller[Req]) timeout(ctx context.Context, gen uint64, logger *log.Logger) {
	logger.Debug("Linking watchdog fired")
	if p.finish(gen, StateTimedOut, ErrWatchdogTimeout, metrics.OutcomeTimeout) &&
		p.cfg.Handlers.OnTimeout != nil {
		p.cfg.Handlers.OnTimeout(context.WithoutCancel(ctx), ErrWatchdogTimeout)
	}
}

func (p *Poller[Req]) fail(ctx context.Context, gen uint64, err error) {
	if p.finish(gen, StateFailed, err, metrics.OutcomeFailure) && p.cfg.Handlers.OnFailed != nil {
		p.cfg.Handlers.OnFailed(context.WithoutCancel(ctx), err)
	}
}

// finish clears the tracked job if gen is still current and reports whether handlers may run.
func (p *Poller[Req]) finish(gen uint64, state State, err error, outcome string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	p.requestID = ""
	p.state = state
	p.lastErr = err
	p.cancel = nil
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.LinkingJobs.WithLabelValues(outcome).Inc()
	}
	return true
}

func (p *Poller[Req]) recordStatusCheck() {
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.StatusChecks.Inc()
	}
}
