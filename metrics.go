package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint8

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricMFARequired
	MetricMFASuccess
	MetricMFAFailure
	MetricBackupCodeUsed
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuse
	MetricLogout
	MetricLogoutAll
	MetricPasswordChanged
	MetricPasswordChangeFailed
	MetricAccountCreated
	MetricMFAEnrolled
	MetricMFADisabled
	MetricTokensSwept
	MetricAuditFailure
	metricCount
)

var metricNames = [metricCount]string{
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricMFARequired:          "mfa_required",
	MetricMFASuccess:           "mfa_success",
	MetricMFAFailure:           "mfa_failure",
	MetricBackupCodeUsed:       "backup_code_used",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshFailure:       "refresh_failure",
	MetricRefreshReuse:         "refresh_reuse_detected",
	MetricLogout:               "logout",
	MetricLogoutAll:            "logout_all",
	MetricPasswordChanged:      "password_changed",
	MetricPasswordChangeFailed: "password_change_failed",
	MetricAccountCreated:       "account_created",
	MetricMFAEnrolled:          "mfa_enrolled",
	MetricMFADisabled:          "mfa_disabled",
	MetricTokensSwept:          "tokens_swept",
	MetricAuditFailure:         "audit_failure",
}

// Name returns the stable snake_case identifier used in exports.
func (id MetricID) Name() string {
	if int(id) < len(metricNames) {
		return metricNames[id]
	}
	return "unknown"
}

// Metrics is a fixed set of lock-free counters. A disabled Metrics
// swallows increments and snapshots empty.
type Metrics struct {
	enabled  bool
	counters [metricCount]atomic.Uint64
}

// NewMetrics returns a counter set.
func NewMetrics(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Inc adds n to the counter.
func (m *Metrics) Inc(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricCount {
		return
	}
	m.counters[id].Add(n)
}

// Snapshot returns the current counter values keyed by MetricID.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricCount)
	if m == nil || !m.enabled {
		return out
	}
	for id := MetricID(0); id < metricCount; id++ {
		out[id] = m.counters[id].Load()
	}
	return out
}
