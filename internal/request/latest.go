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

package request

import (
	"context"
	"sync"
)

// Latest tracks one in-flight request and cancels it when a newer one begins.
// The zero value is ready to use.
type Latest struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

// Begin derives a context for a new request, cancelling the previous one with ErrSuperseded.
// The returned release function must be called when the request completes.
func (l *Latest) Begin(ctx context.Context) (context.Context, func()) {
	reqCtx, cancel := context.WithCancelCause(ctx)

	l.mu.Lock()
	if l.cancel != nil {
		l.cancel(ErrSuperseded)
	}
	l.seq++
	seq := l.seq
	l.cancel = cancel
	l.mu.Unlock()

	return reqCtx, func() {
		l.mu.Lock()
		if l.seq == seq {
			l.cancel = nil
		}
		l.mu.Unlock()
		cancel(context.Canceled)
	}
}

// Cancel aborts the in-flight request, if any.
func (l *Latest) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel(context.Canceled)
		l.cancel = nil
	}
}
