package tds

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"
)

var (
	callLabels = []string{"proc", "success"}
	callTimer  = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tdslock",
		Subsystem: "tds",
		Name:      "call_duration_seconds",
		Help:      "Stored procedure call duration, including stream drain time.",
	}, callLabels)
	callCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tdslock",
		Subsystem: "tds",
		Name:      "call_total",
		Help:      "Stored procedure call count.",
	}, callLabels)
)

// call carries the per-invocation metric state.
type call struct {
	labels prometheus.Labels
	timer  *prometheus.Timer
}

func newCall(proc string) call {
	return call{labels: prometheus.Labels{"proc": proc}}
}

func (c *call) start(err *error) func() {
	c.timer = prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
		callTimer.With(c.labels).Observe(v)
	}))
	return func() {
		if c.timer == nil {
			return
		}
		c.labels["success"] = strconv.FormatBool(*err == nil)
		callCounter.With(c.labels).Inc()
		c.timer.ObserveDuration()
		c.timer = nil
	}
}

// Call invokes the named stored procedure with positional arguments and
// folds the result stream via [CollectResult].
//
// The connection is exclusively in use for the duration of the call. Rows
// and metadata produced by the procedure are discarded; callers that need
// row data use [Conn.Exec] with [ForEachRow] instead.
func Call(ctx context.Context, c Conn, proc string, args ...Value) (_ Result, err error) {
	ctx = zlog.ContextWithValues(ctx, "component", "tds/Call", "proc", proc)
	m := newCall(proc)
	defer m.start(&err)()

	s, err := c.CallProc(ctx, proc, args)
	if err != nil {
		return Result{}, fmt.Errorf("tds: call %q: %w", proc, err)
	}
	res, err := CollectResult(ctx, s)
	if err != nil {
		return res, fmt.Errorf("tds: call %q: %w", proc, err)
	}
	ev := zlog.Debug(ctx).
		Uint64("rows_affected", res.RowsAffected)
	if res.ReturnStatus != nil {
		ev = ev.Int32("return_status", *res.ReturnStatus)
	}
	ev.Msg("procedure call complete")
	return res, nil
}
