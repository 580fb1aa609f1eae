package timeline

import "testing"

func TestDecideToggle(t *testing.T) {
	history := NewStageSet(StageDesignProposal, StageProofApproval)
	current := StageMeasurements

	tests := []struct {
		name  string
		stage Stage
		want  ToggleDecision
	}{
		{"current stage advances without confirmation", StageMeasurements, ToggleAllowed},
		{"future stage advances without confirmation", StageDelivery, ToggleAllowed},
		{"completed stage with history needs confirmation", StageDesignProposal, ToggleNeedsConfirmation},
		{"completed stage with history needs confirmation (second)", StageProofApproval, ToggleNeedsConfirmation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DecideToggle(tc.stage, current, history); got != tc.want {
				t.Errorf("DecideToggle(%s, current=%s) = %s, want %s", tc.stage, current, got, tc.want)
			}
		})
	}
}

// A past stage without a history entry must be disabled: history and
// currentStage disagree, and the guard refuses to toggle fictitious state.
func TestDecideTogglePastStageWithoutHistory(t *testing.T) {
	history := NewStageSet(StageDesignProposal) // ProofApproval entry missing
	current := StageMeasurements

	if got := DecideToggle(StageProofApproval, current, history); got != ToggleDisabled {
		t.Errorf("DecideToggle(ProofApproval) = %s, want disabled", got)
	}
	if got := DecideToggle(StageDesignProposal, current, history); got != ToggleNeedsConfirmation {
		t.Errorf("DecideToggle(DesignProposal) = %s, want needs_confirmation", got)
	}
}

func TestDecideToggleNilHistory(t *testing.T) {
	if got := DecideToggle(StageDesignProposal, StageMeasurements, nil); got != ToggleDisabled {
		t.Errorf("nil history: DecideToggle = %s, want disabled", got)
	}
	// Forward toggles never consult history.
	if got := DecideToggle(StageDelivery, StageMeasurements, nil); got != ToggleAllowed {
		t.Errorf("nil history forward: DecideToggle = %s, want allowed", got)
	}
}

func TestDecideToggleFirstStageCurrent(t *testing.T) {
	// Nothing is completed yet, so every stage is toggleable forward.
	for _, s := range Stages() {
		if got := DecideToggle(s, StageDesignProposal, NewStageSet()); got != ToggleAllowed {
			t.Errorf("DecideToggle(%s, current=DesignProposal) = %s, want allowed", s, got)
		}
	}
}
