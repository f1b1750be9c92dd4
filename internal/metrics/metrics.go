// Package metrics provides process-local counters for API traffic and
// session activity, using atomic counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// API request metrics
	apiCallsTotal   atomic.Int64
	apiErrorsTotal  atomic.Int64
	apiLatencyNanos atomic.Int64
	apiRetries      atomic.Int64

	// Per-service request counts
	authCalls     atomic.Int64
	deviceCalls   atomic.Int64
	userCalls     atomic.Int64
	firmwareCalls atomic.Int64
	fileCalls     atomic.Int64
	otherCalls    atomic.Int64

	// Session lifecycle
	authentications atomic.Int64
	authFailures    atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	persistFailures atomic.Int64
}

// Service names used to bucket API calls.
const (
	ServiceAuth     = "auth"
	ServiceDevice   = "device"
	ServiceUser     = "user"
	ServiceFirmware = "firmware"
	ServiceFile     = "file"
)

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordAPICall records an API call with its duration and success status.
func (m *Metrics) RecordAPICall(service string, duration time.Duration, err error) {
	m.apiCallsTotal.Add(1)
	m.apiLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.apiErrorsTotal.Add(1)
	}

	switch service {
	case ServiceAuth:
		m.authCalls.Add(1)
	case ServiceDevice:
		m.deviceCalls.Add(1)
	case ServiceUser:
		m.userCalls.Add(1)
	case ServiceFirmware:
		m.firmwareCalls.Add(1)
	case ServiceFile:
		m.fileCalls.Add(1)
	default:
		m.otherCalls.Add(1)
	}
}

// RecordRetry records a retried API attempt.
func (m *Metrics) RecordRetry() {
	m.apiRetries.Add(1)
}

// RecordAuthentication records a username/password authentication.
func (m *Metrics) RecordAuthentication(err error) {
	if err != nil {
		m.authFailures.Add(1)
		return
	}
	m.authentications.Add(1)
}

// RecordRefresh records a token refresh.
func (m *Metrics) RecordRefresh(err error) {
	if err != nil {
		m.refreshFailures.Add(1)
		return
	}
	m.refreshes.Add(1)
}

// RecordPersistFailure records a session that could not be saved.
func (m *Metrics) RecordPersistFailure() {
	m.persistFailures.Add(1)
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	APICallsTotal   int64 `json:"api_calls_total"`
	APIErrorsTotal  int64 `json:"api_errors_total"`
	APILatencyNanos int64 `json:"api_latency_nanos"`
	APIRetries      int64 `json:"api_retries"`
	AuthCalls       int64 `json:"auth_calls"`
	DeviceCalls     int64 `json:"device_calls"`
	UserCalls       int64 `json:"user_calls"`
	FirmwareCalls   int64 `json:"firmware_calls"`
	FileCalls       int64 `json:"file_calls"`
	OtherCalls      int64 `json:"other_calls"`
	Authentications int64 `json:"authentications"`
	AuthFailures    int64 `json:"auth_failures"`
	Refreshes       int64 `json:"refreshes"`
	RefreshFailures int64 `json:"refresh_failures"`
	PersistFailures int64 `json:"persist_failures"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		APICallsTotal:   m.apiCallsTotal.Load(),
		APIErrorsTotal:  m.apiErrorsTotal.Load(),
		APILatencyNanos: m.apiLatencyNanos.Load(),
		APIRetries:      m.apiRetries.Load(),
		AuthCalls:       m.authCalls.Load(),
		DeviceCalls:     m.deviceCalls.Load(),
		UserCalls:       m.userCalls.Load(),
		FirmwareCalls:   m.firmwareCalls.Load(),
		FileCalls:       m.fileCalls.Load(),
		OtherCalls:      m.otherCalls.Load(),
		Authentications: m.authentications.Load(),
		AuthFailures:    m.authFailures.Load(),
		Refreshes:       m.refreshes.Load(),
		RefreshFailures: m.refreshFailures.Load(),
		PersistFailures: m.persistFailures.Load(),
	}
}

// APICallsTotal returns the total number of API calls made.
func (m *Metrics) APICallsTotal() int64 {
	return m.apiCallsTotal.Load()
}

// APIErrorsTotal returns the total number of failed API calls.
func (m *Metrics) APIErrorsTotal() int64 {
	return m.apiErrorsTotal.Load()
}

// Refreshes returns the number of successful token refreshes.
func (m *Metrics) Refreshes() int64 {
	return m.refreshes.Load()
}

// APILatencyAvgMs returns the average API latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) APILatencyAvgMs() float64 {
	calls := m.apiCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	nanos := m.apiLatencyNanos.Load()
	return float64(nanos) / float64(calls) / 1e6
}

// ErrorRate returns the API error rate as a percentage (0-100).
// Returns 0 if no calls have been made.
func (m *Metrics) ErrorRate() float64 {
	calls := m.apiCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.apiErrorsTotal.Load()) / float64(calls) * 100
}

// Reset resets all metrics to zero.
// Useful for testing.
func (m *Metrics) Reset() {
	m.apiCallsTotal.Store(0)
	m.apiErrorsTotal.Store(0)
	m.apiLatencyNanos.Store(0)
	m.apiRetries.Store(0)
	m.authCalls.Store(0)
	m.deviceCalls.Store(0)
	m.userCalls.Store(0)
	m.firmwareCalls.Store(0)
	m.fileCalls.Store(0)
	m.otherCalls.Store(0)
	m.authentications.Store(0)
	m.authFailures.Store(0)
	m.refreshes.Store(0)
	m.refreshFailures.Store(0)
	m.persistFailures.Store(0)
}
