// Copyright 2024 Partisia Blockchain Applications
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the engine's HTTP traffic. One instance is shared by all
// handlers of an engine.
type Metrics struct {
	sharesStored     prometheus.Counter
	sharesServed     prometheus.Counter
	rejectedRequests *prometheus.CounterVec
	randomnessRounds prometheus.Counter
}

// NewMetrics creates the engine's metric collectors and registers them with
// the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sharesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_shares_stored_total",
			Help: "Number of shares stored by this engine.",
		}),
		sharesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_shares_served_total",
			Help: "Number of shares downloaded from this engine.",
		}),
		rejectedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_rejected_requests_total",
			Help: "Number of rejected share requests, by reason.",
		}, []string{"reason"}),
		randomnessRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_randomness_rounds_total",
			Help: "Number of randomness rounds this engine has contributed to.",
		}),
	}
	reg.MustRegister(m.sharesStored, m.sharesServed, m.rejectedRequests, m.randomnessRounds)
	return m
}

func (m *Metrics) rejected(reason string) {
	if m != nil {
		m.rejectedRequests.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) shareStored() {
	if m != nil {
		m.sharesStored.Inc()
	}
}

func (m *Metrics) shareServed() {
	if m != nil {
		m.sharesServed.Inc()
	}
}

func (m *Metrics) randomnessRound() {
	if m != nil {
		m.randomnessRounds.Inc()
	}
}
