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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.OTPSends.WithLabelValues("mobile-number", OutcomeSuccess).Inc()
	m.OTPVerifications.WithLabelValues(OutcomeFailure).Add(2)
	m.LinkingJobs.WithLabelValues(OutcomeTimeout).Inc()
	m.StatusChecks.Inc()
	m.ActiveFlows.WithLabelValues("login").Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OTPSends.WithLabelValues("mobile-number", OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OTPVerifications.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinkingJobs.WithLabelValues(OutcomeTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusChecks))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveFlows.WithLabelValues("login")))

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 5, count)

	assert.Panics(t, func() { New(reg) })
}
