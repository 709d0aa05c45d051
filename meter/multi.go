package meter

import "github.com/ineyio/cyclequota"

// Multi fans events out to several meters in order.
type Multi []cyclequota.Meter

var _ cyclequota.Meter = Multi(nil)

func (m Multi) OnAdmission(e cyclequota.AdmissionEvent) {
	for _, mm := range m {
		mm.OnAdmission(e)
	}
}

func (m Multi) OnReset(e cyclequota.ResetEvent) {
	for _, mm := range m {
		mm.OnReset(e)
	}
}
