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
	"sync"

	"github.com/abdm-phr/phr/internal/request"
)

// typeahead runs lookups in the background, cancelling a lookup as soon as a newer one starts.
type typeahead[T any] struct {
	latest request.Latest
	wg     sync.WaitGroup

	mu      sync.Mutex
	seq     uint64
	results T
	err     error
	pending bool
}

// Update starts a lookup. The lookup outlives ctx cancellation.
func (t *typeahead[T]) Update(ctx context.Context, lookup func(ctx context.Context) (T, error)) {
	lookupCtx, release := t.latest.Begin(context.WithoutCancel(ctx))

	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.pending = true
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer release()

		results, err := lookup(lookupCtx)
		if errors.Is(err, request.ErrSuperseded) || errors.Is(err, context.Canceled) {
			return
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if t.seq != seq {
			return
		}
		t.results, t.err, t.pending = results, err, false
	}()
}

// Results returns the outcome of the most recent completed lookup and whether a lookup is running.
func (t *typeahead[T]) Results() (T, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.results, t.pending, t.err
}

// Wait blocks until running lookups finished.
func (t *typeahead[T]) Wait() {
	t.wg.Wait()
}

// Close cancels the running lookup and waits for it.
func (t *typeahead[T]) Close() {
	t.latest.Cancel()
	t.mu.Lock()
	t.seq++
	t.pending = false
	t.mu.Unlock()
	t.wg.Wait()
}
