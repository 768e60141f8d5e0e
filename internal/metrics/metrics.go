// Package metrics records per-operation counters and latency histograms
// with VictoriaMetrics/metrics and exposes them in Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"strconv"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Metric names.
const (
	OpsTotal    = "larder_ops_total"
	ErrorsTotal = "larder_op_errors_total"
	OpDuration  = "larder_op_duration_seconds"
)

var set = vm.NewSet()

// Observe records one finished operation on store.
func Observe(op, store string, start time.Time, err error) {
	set.GetOrCreateCounter(name(OpsTotal, op, store)).Inc()
	if err != nil {
		set.GetOrCreateCounter(name(ErrorsTotal, op, store)).Inc()
	}
	set.GetOrCreateHistogram(fmt.Sprintf(`%s{op=%s}`, OpDuration, strconv.Quote(op))).UpdateDuration(start)
}

// WritePrometheus writes every larder metric to w.
func WritePrometheus(w io.Writer) {
	set.WritePrometheus(w)
}

func name(metric, op, store string) string {
	return fmt.Sprintf(`%s{op=%s,store=%s}`, metric, strconv.Quote(op), strconv.Quote(store))
}
