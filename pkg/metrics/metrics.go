/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics provides Prometheus metrics for the secret store.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Refresh sources.
const (
	SourceForeground = "foreground"
	SourceBackground = "background"
)

const namespace = "secretstore"

// Registry holds every secret store collector. Hosts that expose metrics
// register it with their own handler or gatherer.
var Registry = prometheus.NewRegistry()

var (
	// OperationTotal counts secret store operations by outcome.
	OperationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "secret",
			Name:      "operations_total",
			Help:      "Total number of secret store operations",
		},
		[]string{"operation", "result"},
	)

	// OperationRetryTotal counts operations retried after a permission denial.
	OperationRetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "secret",
			Name:      "reauth_retries_total",
			Help:      "Total number of operations retried once after re-authentication",
		},
		[]string{"operation"},
	)

	// AuthTotal counts Vault authentications by token mode.
	AuthTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of Vault authentication attempts",
		},
		[]string{"mode", "result"},
	)

	// RefreshTotal counts identity provider refresh grants.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "refresh_total",
			Help:      "Total number of access token refreshes",
		},
		[]string{"source", "result"},
	)

	// RenewalTotal counts Vault token self-renewals.
	RenewalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "renewal_total",
			Help:      "Total number of Vault token renew-self calls",
		},
		[]string{"result"},
	)

	// TokenExpiryGauge is the unix time at which the current credential expires.
	// Zero when the expiry is unknown.
	TokenExpiryGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "expiry_timestamp_seconds",
			Help:      "Unix time at which the current credential expires (0=unknown)",
		},
	)

	// BackgroundRefresherRunning is 1 while the background refresher loop runs.
	BackgroundRefresherRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresher",
			Name:      "running",
			Help:      "Background refresher state (1=running, 0=stopped)",
		},
	)
)

func init() {
	Registry.MustRegister(
		OperationTotal,
		OperationRetryTotal,
		AuthTotal,
		RefreshTotal,
		RenewalTotal,
		TokenExpiryGauge,
		BackgroundRefresherRunning,
	)
}

func resultLabel(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}

// IncrementOperation increments the operation counter.
func IncrementOperation(operation string, success bool) {
	OperationTotal.WithLabelValues(operation, resultLabel(success)).Inc()
}

// IncrementOperationRetry increments the re-authentication retry counter.
func IncrementOperationRetry(operation string) {
	OperationRetryTotal.WithLabelValues(operation).Inc()
}

// IncrementAuth increments the authentication counter.
func IncrementAuth(mode string, success bool) {
	AuthTotal.WithLabelValues(mode, resultLabel(success)).Inc()
}

// IncrementRefresh increments the refresh counter.
func IncrementRefresh(source string, success bool) {
	RefreshTotal.WithLabelValues(source, resultLabel(success)).Inc()
}

// IncrementRenewal increments the renewal counter.
func IncrementRenewal(success bool) {
	RenewalTotal.WithLabelValues(resultLabel(success)).Inc()
}

// SetTokenExpiry records the credential expiry. A zero time clears the gauge.
func SetTokenExpiry(expiry time.Time) {
	if expiry.IsZero() {
		TokenExpiryGauge.Set(0)
		return
	}
	TokenExpiryGauge.Set(float64(expiry.Unix()))
}

// SetRefresherRunning sets the background refresher state.
func SetRefresherRunning(running bool) {
	val := 0.0
	if running {
		val = 1.0
	}
	BackgroundRefresherRunning.Set(val)
}
