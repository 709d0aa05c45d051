package meter

import (
	"log/slog"

	"github.com/ineyio/cyclequota"
)

// LogMeter logs enforcement events using slog. Rejections are routine
// outcomes of quota pressure and are logged at Info, admissions at Debug.
type LogMeter struct {
	Logger *slog.Logger
}

var _ cyclequota.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmission(e cyclequota.AdmissionEvent) {
	if !e.Constrained {
		m.Logger.Debug("admit_unconstrained",
			"cycle", e.CycleID,
			"category", e.Category,
			"cost", uint64(e.Cost),
		)
		return
	}

	if e.Admitted {
		m.Logger.Debug("admit",
			"cycle", e.CycleID,
			"category", e.Category,
			"cost", uint64(e.Cost),
			"consumed", uint64(e.Consumed),
			"limit", uint64(e.Limit),
		)
	} else {
		m.Logger.Info("reject",
			"cycle", e.CycleID,
			"category", e.Category,
			"cost", uint64(e.Cost),
			"consumed", uint64(e.Consumed),
			"limit", uint64(e.Limit),
		)
	}
}

func (m *LogMeter) OnReset(e cyclequota.ResetEvent) {
	m.Logger.Info("cycle_reset",
		"previous_cycle", e.PreviousCycleID,
		"cycle", e.CycleID,
	)
}
