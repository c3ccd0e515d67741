package models

import "time"

type ScalingAction string

const (
	ActionNone               ScalingAction = "no_op"
	ActionScaleUp            ScalingAction = "scale_up"
	ActionScaleDown          ScalingAction = "scale_down"
	ActionEmergencyScaleDown ScalingAction = "emergency_scale_down"
)

type DecisionReason string

const (
	ReasonCPUHigh           DecisionReason = "cpu_usage_high"
	ReasonMemoryHigh        DecisionReason = "memory_usage_high"
	ReasonUnderutilized     DecisionReason = "resource_usage_low"
	ReasonLimitReached      DecisionReason = "resource_limit_reached"
	ReasonCooldown          DecisionReason = "cooldown_period"
	ReasonInsufficientData  DecisionReason = "insufficient_data"
	ReasonNotRunning        DecisionReason = "container_not_running"
	ReasonEmergency         DecisionReason = "safety_threshold_exceeded"
	ReasonHostProtection    DecisionReason = "host_protection"
	ReasonOperationDeferred DecisionReason = "operation_deferred"
	ReasonNormal            DecisionReason = "within_normal_parameters"
)

// ScalingDecision is the outcome of a single container evaluation. It is
// produced fresh each tick and carries no identity beyond it.
type ScalingDecision struct {
	VMID           int            `json:"vmid"`
	Timestamp      time.Time      `json:"timestamp"`
	Action         ScalingAction  `json:"action"`
	Reason         DecisionReason `json:"reason"`
	Current        Allocation     `json:"current"`
	Target         Allocation     `json:"target"`
	CPUUsage       float64        `json:"cpu_usage"`
	MemoryUsage    float64        `json:"memory_usage"`
	CooldownActive bool           `json:"cooldown_active"`
}

func (d ScalingDecision) RequiresScaling() bool {
	return d.Action != ActionNone
}

func (d ScalingDecision) IsEmergency() bool {
	return d.Action == ActionEmergencyScaleDown
}

// IsScaleDown reports whether the decision shrinks the allocation,
// including the emergency variant.
func (d ScalingDecision) IsScaleDown() bool {
	return d.Action == ActionScaleDown || d.Action == ActionEmergencyScaleDown
}
