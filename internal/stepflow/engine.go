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

// Package stepflow implements a multi-step form engine. Steps share one mutable flow memory value
// and navigate between each other by id.
package stepflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownStep is raised when navigating to a step id that is not configured.
	ErrUnknownStep = errors.New("unknown step")
	// ErrInvalidSteps is returned when the configured step list cannot form a flow.
	ErrInvalidSteps = errors.New("invalid step configuration")
	// ErrTransitionLoop is returned when rendering keeps redirecting between steps.
	ErrTransitionLoop = errors.New("step transition loop")
)

// View handles an action for one step. Extra step specific arguments are bound by closure when
// the step is declared.
type View[M any] func(ctx context.Context, ctl *Controls[M], action Action) (*Prompt, error)

// Step is one entry of a flow.
type Step[M any] struct {
	ID   StepID
	View View[M]
}

// Controls is injected into the active view. It is only valid for the duration of the call.
type Controls[M any] struct {
	steps   []Step[M]
	index   map[StepID]int
	current int
	memory  M
}

// CurrentIndex returns the position of the active step.
func (c *Controls[M]) CurrentIndex() int {
	return c.current
}

// CurrentStep returns the id of the active step.
func (c *Controls[M]) CurrentStep() StepID {
	return c.steps[c.current].ID
}

// IsFirstStep reports whether the active step is the first configured step.
func (c *Controls[M]) IsFirstStep() bool {
	return c.current == 0
}

// IsLastStep reports whether the active step is the last configured step.
func (c *Controls[M]) IsLastStep() bool {
	return c.current == len(c.steps)-1
}

// GoTo makes id the active step. It panics with an error wrapping ErrUnknownStep when id is not
// configured; flow memory is left untouched.
func (c *Controls[M]) GoTo(id StepID) {
	i, ok := c.index[id]
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrUnknownStep, id))
	}
	c.current = i
}

// Memory returns the flow memory.
func (c *Controls[M]) Memory() M {
	return c.memory
}

// SetMemory mutates the flow memory in place.
func (c *Controls[M]) SetMemory(update func(*M)) {
	update(&c.memory)
}

// Engine runs a flow of steps, handling one action at a time.
type Engine[M any] struct {
	mu   sync.Mutex
	ctl  Controls[M]
	last *Prompt
}

// New creates an engine whose first step is active.
func New[M any](steps []Step[M], initial M) (*Engine[M], error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidSteps)
	}
	index := make(map[StepID]int, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: step %d has no id", ErrInvalidSteps, i)
		}
		if s.View == nil {
			return nil, fmt.Errorf("%w: step %q has no view", ErrInvalidSteps, s.ID)
		}
		if _, dup := index[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate step id %q", ErrInvalidSteps, s.ID)
		}
		index[s.ID] = i
	}

	return &Engine[M]{
		ctl: Controls[M]{
			steps:  append([]Step[M](nil), steps...),
			index:  index,
			memory: initial,
		},
	}, nil
}

// Handle passes action to the active step. When the step navigates elsewhere without returning a
// prompt, the new active step is rendered. The returned prompt carries the active step id.
func (e *Engine[M]) Handle(ctx context.Context, action Action) (*Prompt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prompt, err := e.invoke(ctx, action)
	if err != nil {
		return nil, err
	}
	e.last = prompt
	return prompt, nil
}

// Render asks the active step for its prompt.
func (e *Engine[M]) Render(ctx context.Context) (*Prompt, error) {
	return e.Handle(ctx, Action{})
}

func (e *Engine[M]) invoke(ctx context.Context, action Action) (*Prompt, error) {
	for hops := 0; hops <= len(e.ctl.steps); hops++ {
		before := e.ctl.current
		prompt, err := e.ctl.steps[before].View(ctx, &e.ctl, action)
		if err != nil {
			return nil, err
		}
		if prompt != nil {
			prompt.StepID = e.ctl.CurrentStep()
			if prompt.Status == "" {
				prompt.Status = StatusIncomplete
			}
			return prompt, nil
		}
		if e.ctl.current == before && !action.IsRender() {
			// The step handled the action and stayed put; show it again.
			action = Action{}
			continue
		}
		if e.ctl.current == before {
			return nil, fmt.Errorf("step %q returned no prompt", e.ctl.CurrentStep())
		}
		action = Action{}
	}
	return nil, fmt.Errorf("%w: last step %q", ErrTransitionLoop, e.ctl.CurrentStep())
}

// CurrentStep returns the id of the active step.
func (e *Engine[M]) CurrentStep() StepID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctl.CurrentStep()
}

// CurrentIndex returns the position of the active step.
func (e *Engine[M]) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctl.current
}

// Memory returns the current flow memory.
func (e *Engine[M]) Memory() M {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctl.memory
}

// Last returns the most recent prompt, or nil before the first action.
func (e *Engine[M]) Last() *Prompt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Steps returns the configured step ids in order.
func (e *Engine[M]) Steps() []StepID {
	ids := make([]StepID, len(e.ctl.steps))
	for i, s := range e.ctl.steps {
		ids[i] = s.ID
	}
	return ids
}
