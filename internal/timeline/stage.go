// Package timeline holds the order-fulfillment stage model: the fixed
// 13-stage sequence, status derivation, and the admin toggle rules.
package timeline

import (
	"fmt"
)

// Stage is one of the 13 fixed named steps in the order-fulfillment sequence.
type Stage string

const (
	StageDesignProposal      Stage = "DesignProposal"
	StageProofApproval       Stage = "ProofApproval"
	StageMeasurements        Stage = "Measurements"
	StageProductionPlanning  Stage = "ProductionPlanning"
	StageCutting             Stage = "Cutting"
	StageSewing              Stage = "Sewing"
	StageQualityControl      Stage = "QualityControl"
	StageFinishing           Stage = "Finishing"
	StageFinalInspection     Stage = "FinalInspection"
	StagePackaging           Stage = "Packaging"
	StageShippingPreparation Stage = "ShippingPreparation"
	StageShipOrder           Stage = "ShipOrder"
	StageDelivery            Stage = "Delivery"
)

// stages is the canonical fulfillment order. The sequence is total and fixed:
// no branching, no skipping.
var stages = [13]Stage{
	StageDesignProposal,
	StageProofApproval,
	StageMeasurements,
	StageProductionPlanning,
	StageCutting,
	StageSewing,
	StageQualityControl,
	StageFinishing,
	StageFinalInspection,
	StagePackaging,
	StageShippingPreparation,
	StageShipOrder,
	StageDelivery,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(stages))
	for i, s := range stages {
		m[s] = i
	}
	return m
}()

// Stages returns the 13 stages in canonical fulfillment order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages[:])
	return out
}

// StageCount is the number of stages in the sequence.
const StageCount = len(stages)

// Index returns the stage's position in the canonical sequence, or -1 for an
// unknown value.
func (s Stage) Index() int {
	i, ok := stageIndex[s]
	if !ok {
		return -1
	}
	return i
}

// Valid reports whether s is one of the 13 defined stages.
func (s Stage) Valid() bool {
	_, ok := stageIndex[s]
	return ok
}

// Label returns a human-readable name for display and notification subjects.
func (s Stage) Label() string {
	switch s {
	case StageDesignProposal:
		return "Design Proposal"
	case StageProofApproval:
		return "Proof Approval"
	case StageMeasurements:
		return "Measurements"
	case StageProductionPlanning:
		return "Production Planning"
	case StageCutting:
		return "Cutting"
	case StageSewing:
		return "Sewing"
	case StageQualityControl:
		return "Quality Control"
	case StageFinishing:
		return "Finishing"
	case StageFinalInspection:
		return "Final Inspection"
	case StagePackaging:
		return "Packaging"
	case StageShippingPreparation:
		return "Shipping Preparation"
	case StageShipOrder:
		return "Ship Order"
	case StageDelivery:
		return "Delivery"
	default:
		return string(s)
	}
}

// ParseStage validates a raw stage string.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order stage %q", raw)
	}
	return s, nil
}

// StageStatus is the derived presentation status of a stage relative to the
// order's current stage.
type StageStatus string

const (
	StatusCompleted StageStatus = "completed"
	StatusCurrent   StageStatus = "current"
	StatusPending   StageStatus = "pending"
)

// StatusOf derives a stage's status from the order's current stage. The rule
// is a pure function of indices: strictly before current is completed, equal
// is current, after is pending. Exactly one stage is ever current.
func StatusOf(stage, current Stage) StageStatus {
	ci := current.Index()
	switch si := stage.Index(); {
	case si < ci:
		return StatusCompleted
	case si == ci:
		return StatusCurrent
	default:
		return StatusPending
	}
}
