// Package prometheus renders engine counters in the Prometheus text
// exposition format without depending on the client library; the
// counter set is small and fixed, so a writer is all that is needed.
package prometheus

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/veritasec/authcore"
)

var counterHelp = map[authcore.MetricID]string{
	authcore.MetricLoginSuccess:         "Successful password or MFA logins.",
	authcore.MetricLoginFailure:         "Rejected login attempts.",
	authcore.MetricMFARequired:          "Logins answered with an MFA challenge.",
	authcore.MetricMFASuccess:           "Successful second-factor confirmations.",
	authcore.MetricMFAFailure:           "Rejected second-factor attempts.",
	authcore.MetricBackupCodeUsed:       "Backup codes consumed for login.",
	authcore.MetricRefreshSuccess:       "Successful refresh-token rotations.",
	authcore.MetricRefreshFailure:       "Rejected refresh attempts.",
	authcore.MetricRefreshReuse:         "Refresh reuse events that revoked a token family.",
	authcore.MetricLogout:               "Single-session logouts.",
	authcore.MetricLogoutAll:            "All-session logouts.",
	authcore.MetricPasswordChanged:      "Completed password changes.",
	authcore.MetricPasswordChangeFailed: "Rejected password changes.",
	authcore.MetricAccountCreated:       "Accounts created.",
	authcore.MetricMFAEnrolled:          "Completed MFA enrollments.",
	authcore.MetricMFADisabled:          "MFA enrollments removed.",
	authcore.MetricTokensSwept:          "Expired refresh records garbage-collected.",
	authcore.MetricAuditFailure:         "Audit appends rejected by the sink.",
}

// Exporter renders snapshots from an Engine.
type Exporter struct {
	snapshot  func() map[authcore.MetricID]uint64
	namespace string
}

// NewExporter wires an exporter to the engine's snapshot function.
func NewExporter(snapshot func() map[authcore.MetricID]uint64, namespace string) *Exporter {
	if namespace == "" {
		namespace = "authcore"
	}
	return &Exporter{snapshot: snapshot, namespace: namespace}
}

// Render returns the full exposition document.
func (e *Exporter) Render() string {
	snap := e.snapshot()
	ids := make([]authcore.MetricID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for _, id := range ids {
		name := e.namespace + "_" + id.Name() + "_total"
		fmt.Fprintf(&b, "# HELP %s %s\n", name, counterHelp[id])
		fmt.Fprintf(&b, "# TYPE %s counter\n", name)
		fmt.Fprintf(&b, "%s %d\n", name, snap[id])
	}
	return b.String()
}

// Handler serves Render over HTTP for scraping.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}
