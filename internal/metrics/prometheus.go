package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromRecorder implements Recorder on a Prometheus registry.
type PromRecorder struct {
	tasksCreated    *prometheus.CounterVec
	tasksCancelled  *prometheus.CounterVec
	catalogRefresh  *prometheus.CounterVec
	catalogItems    prometheus.Gauge
	stateRecoveries *prometheus.CounterVec
	historyLength   prometheus.Gauge
}

// Ensure PromRecorder implements Recorder.
var _ Recorder = (*PromRecorder)(nil)

// NewPromRecorder registers the session metrics on reg and returns a recorder.
func NewPromRecorder(reg prometheus.Registerer) *PromRecorder {
	factory := promauto.With(reg)

	return &PromRecorder{
		tasksCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mariecoder_tasks_created_total",
			Help: "Number of tasks created, by reinitialization status.",
		}, []string{"reinit"}),
		tasksCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mariecoder_tasks_cancelled_total",
			Help: "Number of task cancellations, by wait outcome.",
		}, []string{"timed_out"}),
		catalogRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mariecoder_catalog_refresh_total",
			Help: "Number of marketplace catalog refresh attempts, by result.",
		}, []string{"result"}),
		catalogItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mariecoder_catalog_items",
			Help: "Item count of the last successfully fetched catalog.",
		}),
		stateRecoveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mariecoder_state_recoveries_total",
			Help: "Number of single-shot persistence recoveries, by result.",
		}, []string{"result"}),
		historyLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mariecoder_task_history_length",
			Help: "Length of the task history list after the last update.",
		}),
	}
}

// TaskCreated implements Recorder.
func (r *PromRecorder) TaskCreated(reinit bool) {
	r.tasksCreated.WithLabelValues(strconv.FormatBool(reinit)).Inc()
}

// TaskCancelled implements Recorder.
func (r *PromRecorder) TaskCancelled(timedOut bool) {
	r.tasksCancelled.WithLabelValues(strconv.FormatBool(timedOut)).Inc()
}

// CatalogRefreshed implements Recorder.
func (r *PromRecorder) CatalogRefreshed(success bool, itemCount int) {
	result := "success"
	if !success {
		result = "error"
	}
	r.catalogRefresh.WithLabelValues(result).Inc()
	if success {
		r.catalogItems.Set(float64(itemCount))
	}
}

// StateRecovery implements Recorder.
func (r *PromRecorder) StateRecovery(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	r.stateRecoveries.WithLabelValues(result).Inc()
}

// HistoryLength implements Recorder.
func (r *PromRecorder) HistoryLength(n int) {
	r.historyLength.Set(float64(n))
}
