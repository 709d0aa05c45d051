package cyclequota

// Meter observes enforcement events for monitoring/logging.
//
// Events are delivered while the Enforcer holds its cycle lock, so an
// admission is never observed after the Reset that ended its cycle.
// Implementations must be quick and must not call back into the Enforcer.
type Meter interface {
	// OnAdmission is called after every CheckAndAccount decision.
	OnAdmission(event AdmissionEvent)

	// OnReset is called after the ledger is cleared at a cycle boundary.
	OnReset(event ResetEvent)
}

// AdmissionEvent describes a single admission decision.
type AdmissionEvent struct {
	CycleID     string
	Category    Category
	Cost        Amount // effective cost including base overhead
	Limit       Amount
	Consumed    Amount // category total after the decision
	Constrained bool   // false for categories without a configured share
	Admitted    bool
}

// ResetEvent describes a cycle boundary.
type ResetEvent struct {
	PreviousCycleID string
	CycleID         string
}
