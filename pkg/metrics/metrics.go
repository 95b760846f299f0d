// Package metrics exposes Prometheus counters for the deploy-matrix
// synthesis stage, in the style of the teacher's pkg/httphelper and
// pkg/controller/util metrics helpers: package-level vectors registered
// against a private registry, with an optional HTTP handler callers can
// serve from --metrics-addr.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	groupDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lechange_group_decisions_total",
		Help: "Deploy decisions made per group, partitioned by action.",
	}, []string{"group", "action"})

	filesRebuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lechange_files_rebuilt_total",
		Help: "Files marked for rebuild, partitioned by reason.",
	}, []string{"reason"})

	groupsConcurrencyBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lechange_groups_concurrency_blocked_total",
		Help: "Groups annotated as concurrency-blocked by an overlapping earlier in-flight run.",
	}, []string{"group"})
)

func init() {
	registry.MustRegister(groupDecisions, filesRebuilt, groupsConcurrencyBlocked)
}

// Handler returns the promhttp handler serving this package's registry,
// for a caller to mount on an arbitrary --metrics-addr server.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveGroupDecision records one group's resolved action.
func ObserveGroupDecision(group, action string) {
	groupDecisions.WithLabelValues(group, action).Inc()
}

// ObserveFileRebuilt records one file selected for rebuild, by reason.
func ObserveFileRebuilt(reason string) {
	filesRebuilt.WithLabelValues(reason).Inc()
}

// ObserveConcurrencyBlocked records one group annotated as concurrency-blocked
// by an overlapping run.
func ObserveConcurrencyBlocked(group string) {
	groupsConcurrencyBlocked.WithLabelValues(group).Inc()
}
