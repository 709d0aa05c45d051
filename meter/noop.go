package meter

import "github.com/ineyio/cyclequota"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ cyclequota.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAdmission(cyclequota.AdmissionEvent) {}
func (m *NoopMeter) OnReset(cyclequota.ResetEvent)         {}
