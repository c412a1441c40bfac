package goal

import "testing"

func TestAnalysisValidate(t *testing.T) {
	valid := Analysis{
		CoreObjective:           "Ship the beta",
		Subtasks:                []string{"research", "implement"},
		RequiredSpecializations: []string{"Coder"},
		EstimatedTimelineHours:  4,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	missing := valid
	missing.CoreObjective = ""
	if err := missing.Validate(); err == nil {
		t.Error("expected error for empty core objective")
	}

	noSubtasks := valid
	noSubtasks.Subtasks = nil
	if err := noSubtasks.Validate(); err == nil {
		t.Error("expected error for empty subtasks")
	}

	negative := valid
	negative.EstimatedTimelineHours = -1
	if err := negative.Validate(); err == nil {
		t.Error("expected error for negative timeline")
	}
}
