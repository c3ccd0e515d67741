package models

import "time"

// OperationRecord is an append-only audit entry for one executed (or
// dry-run) scaling operation. It is never mutated after completion.
type OperationRecord struct {
	ID          string         `json:"id"`
	VMID        int            `json:"vmid"`
	Action      ScalingAction  `json:"action"`
	Reason      DecisionReason `json:"reason"`
	Previous    Allocation     `json:"previous"`
	New         Allocation     `json:"new"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Success     bool           `json:"success"`
	Error       string         `json:"error,omitempty"`
	DryRun      bool           `json:"dry_run,omitempty"`
}

func NewOperationRecord(decision ScalingDecision) OperationRecord {
	return OperationRecord{
		ID:        NewUUID(),
		VMID:      decision.VMID,
		Action:    decision.Action,
		Reason:    decision.Reason,
		Previous:  decision.Current,
		New:       decision.Current,
		StartedAt: time.Now(),
	}
}

func (r *OperationRecord) CompleteSuccess(applied Allocation) {
	r.CompletedAt = time.Now()
	r.Success = true
	r.New = applied
}

func (r *OperationRecord) CompleteFailure(err error) {
	r.CompletedAt = time.Now()
	r.Success = false
	if err != nil {
		r.Error = err.Error()
	}
}

func (r OperationRecord) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// OperationStats accumulates per-container operation outcomes.
type OperationStats struct {
	Operations int `json:"operations"`
	Successes  int `json:"successes"`
	Failures   int `json:"failures"`
}

func (s *OperationStats) Record(success bool) {
	s.Operations++
	if success {
		s.Successes++
	} else {
		s.Failures++
	}
}

// SuccessRate returns the percentage of successful operations (0-100).
func (s OperationStats) SuccessRate() float64 {
	if s.Operations == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Operations) * 100
}
