package timeline

// ToggleDecision is the admin-mode toggle permission for a single stage row.
type ToggleDecision string

const (
	// ToggleAllowed permits the toggle immediately (advancing the current
	// stage forward needs no confirmation).
	ToggleAllowed ToggleDecision = "allowed"
	// ToggleNeedsConfirmation permits the toggle only after an explicit
	// confirmation: unchecking a completed stage is destructive.
	ToggleNeedsConfirmation ToggleDecision = "needs_confirmation"
	// ToggleDisabled forbids the toggle: the stage is in the past but has no
	// history entry, so there is nothing real to uncheck.
	ToggleDisabled ToggleDecision = "disabled"
)

// HistorySet answers whether a persisted history entry exists for a stage.
type HistorySet interface {
	Has(stage Stage) bool
}

// StageSet is a HistorySet over an in-memory collection of stages.
type StageSet map[Stage]struct{}

// NewStageSet builds a StageSet from the given stages.
func NewStageSet(list ...Stage) StageSet {
	set := make(StageSet, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s StageSet) Has(stage Stage) bool {
	_, ok := s[stage]
	return ok
}

// DecideToggle applies the admin toggle contract for a stage given the
// order's current stage and its persisted history:
//
//   - index >= currentIndex: allowed (advance, no confirmation);
//   - index < currentIndex with a history entry: needs confirmation
//     before the destructive uncheck;
//   - index < currentIndex without a history entry: disabled. This should not
//     normally occur, but guards against toggling fictitious past state when
//     history and currentStage disagree.
func DecideToggle(stage, current Stage, history HistorySet) ToggleDecision {
	if stage.Index() >= current.Index() {
		return ToggleAllowed
	}
	if history != nil && history.Has(stage) {
		return ToggleNeedsConfirmation
	}
	return ToggleDisabled
}
