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

// Package metrics exposes prometheus collectors for flow orchestration.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "phr"

// Outcome label values shared by the collectors.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNetwork  = "network_error"
	OutcomeTimeout  = "timeout"
	OutcomeRejected = "rejected"
)

// Metrics groups the collectors recorded by the flow components.
type Metrics struct {
	OTPSends         *prometheus.CounterVec
	OTPVerifications *prometheus.CounterVec
	LinkingJobs      *prometheus.CounterVec
	StatusChecks     prometheus.Counter
	ActiveFlows      *prometheus.GaugeVec
	FlowActions      *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// GetMetrics returns the process wide collectors registered with the default registerer.
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = New(prometheus.DefaultRegisterer)
	})
	return instance
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OTPSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "sends_total",
			Help:      "OTP send attempts by contact method and outcome.",
		}, []string{"method", "outcome"}),
		OTPVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "otp",
			Name:      "verifications_total",
			Help:      "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
		LinkingJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "linking",
			Name:      "jobs_total",
			Help:      "Facility linking jobs by terminal outcome.",
		}, []string{"outcome"}),
		StatusChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "linking",
			Name:      "status_checks_total",
			Help:      "Linking status requests issued by the poller.",
		}),
		ActiveFlows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "active",
			Help:      "Flow instances currently held in memory.",
		}, []string{"flow_type"}),
		FlowActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flow",
			Name:      "actions_total",
			Help:      "Actions handled per flow type and step.",
		}, []string{"flow_type", "step"}),
	}
	reg.MustRegister(m.OTPSends, m.OTPVerifications, m.LinkingJobs, m.StatusChecks, m.ActiveFlows, m.FlowActions)
	return m
}
