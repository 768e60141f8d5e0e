package metrics

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func counter(metric, op, store string) uint64 {
	return set.GetOrCreateCounter(name(metric, op, store)).Get()
}

func TestObserve(t *testing.T) {
	before := counter(OpsTotal, "get", "metrics_test")
	beforeErr := counter(ErrorsTotal, "get", "metrics_test")

	Observe("get", "metrics_test", time.Now(), nil)
	Observe("get", "metrics_test", time.Now(), errors.New("boom"))

	assert.Equal(t, before+2, counter(OpsTotal, "get", "metrics_test"))
	assert.Equal(t, beforeErr+1, counter(ErrorsTotal, "get", "metrics_test"))
}

func TestWritePrometheus(t *testing.T) {
	Observe("count", "metrics_test_write", time.Now(), nil)

	var buf bytes.Buffer
	WritePrometheus(&buf)
	out := buf.String()

	assert.Contains(t, out, `larder_ops_total{op="count",store="metrics_test_write"}`)
	assert.Contains(t, out, `larder_op_duration_seconds_bucket{op="count"`)
}
