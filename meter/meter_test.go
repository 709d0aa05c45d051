package meter_test

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/cyclequota"
	"github.com/ineyio/cyclequota/meter"
)

var (
	admitted = cyclequota.AdmissionEvent{
		CycleID:     "c1",
		Category:    "balances",
		Cost:        400,
		Limit:       500,
		Consumed:    400,
		Constrained: true,
		Admitted:    true,
	}
	rejected = cyclequota.AdmissionEvent{
		CycleID:     "c1",
		Category:    "balances",
		Cost:        200,
		Limit:       500,
		Consumed:    400,
		Constrained: true,
	}
	unconstrained = cyclequota.AdmissionEvent{
		CycleID:  "c1",
		Category: "other",
		Cost:     7,
		Admitted: true,
	}
)

func newTestLogger(level slog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})
	return slog.New(h), &buf
}

func TestLogMeter_Levels(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelInfo)
	m := meter.NewLogMeter(logger)

	m.OnAdmission(admitted)
	m.OnAdmission(unconstrained)
	assert.Empty(t, buf.String(), "admissions are logged at debug")

	m.OnAdmission(rejected)
	out := buf.String()
	assert.Contains(t, out, "msg=reject")
	assert.Contains(t, out, "category=balances")
	assert.Contains(t, out, "cost=200")
	assert.Contains(t, out, "consumed=400")
	assert.Contains(t, out, "limit=500")

	buf.Reset()
	m.OnReset(cyclequota.ResetEvent{PreviousCycleID: "c1", CycleID: "c2"})
	assert.Contains(t, buf.String(), "msg=cycle_reset")
	assert.Contains(t, buf.String(), "previous_cycle=c1")
	assert.Contains(t, buf.String(), "cycle=c2")
}

func TestLogMeter_Debug(t *testing.T) {
	logger, buf := newTestLogger(slog.LevelDebug)
	m := meter.NewLogMeter(logger)

	m.OnAdmission(admitted)
	m.OnAdmission(unconstrained)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "msg=admit ")
	assert.Contains(t, lines[1], "msg=admit_unconstrained")
}

func TestLogMeter_DefaultLogger(t *testing.T) {
	m := meter.NewLogMeter(nil)
	assert.Equal(t, slog.Default(), m.Logger)
}

func TestPrometheusMeter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := meter.NewPrometheusMeter(reg, "")

	m.OnAdmission(admitted)
	m.OnAdmission(rejected)
	m.OnAdmission(rejected)
	m.OnAdmission(unconstrained)

	expected := `
# HELP cyclequota_admissions_total Total number of admission checks by outcome
# TYPE cyclequota_admissions_total counter
cyclequota_admissions_total{category="balances",result="admitted"} 1
cyclequota_admissions_total{category="balances",result="rejected"} 2
cyclequota_admissions_total{category="other",result="unconstrained"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cyclequota_admissions_total"))

	expected = `
# HELP cyclequota_consumed Resource units consumed by a category in the current cycle
# TYPE cyclequota_consumed gauge
cyclequota_consumed{category="balances"} 400
# HELP cyclequota_limit Resource units a category may consume in the current cycle
# TYPE cyclequota_limit gauge
cyclequota_limit{category="balances"} 500
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cyclequota_consumed", "cyclequota_limit"))

	m.OnReset(cyclequota.ResetEvent{PreviousCycleID: "c1", CycleID: "c2"})

	count, err := testutil.GatherAndCount(reg, "cyclequota_consumed")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = testutil.GatherAndCount(reg, "cyclequota_limit")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = testutil.GatherAndCount(reg, "cyclequota_cycle_resets_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrometheusMeter_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := meter.NewPrometheusMeter(reg, "chain")
	m.OnReset(cyclequota.ResetEvent{})

	count, err := testutil.GatherAndCount(reg, "chain_cycle_resets_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type countingMeter struct {
	admissions, resets int
}

func (m *countingMeter) OnAdmission(cyclequota.AdmissionEvent) { m.admissions++ }
func (m *countingMeter) OnReset(cyclequota.ResetEvent)         { m.resets++ }

func TestMulti(t *testing.T) {
	a, b := &countingMeter{}, &countingMeter{}
	m := meter.Multi{a, &meter.NoopMeter{}, b}

	m.OnAdmission(admitted)
	m.OnAdmission(rejected)
	m.OnReset(cyclequota.ResetEvent{})

	assert.Equal(t, 2, a.admissions)
	assert.Equal(t, 2, b.admissions)
	assert.Equal(t, 1, a.resets)
	assert.Equal(t, 1, b.resets)
}
