package types

// SolutionAction is one proposed step in a strategy's output, before the
// planner assigns weights and parent edges. InputParameters must include
// "resource_id" for resource-scoped action types. Parents optionally names
// explicit dependencies by index into the solution's action list; the
// planner merges them with its rule-derived edges.
type SolutionAction struct {
	ActionType      string
	ResourceID      string
	InputParameters map[string]any
	Parents         []int
}

// EfficacyValue is one measured indicator attached to a solution.
type EfficacyValue struct {
	Name        string
	Description string
	Unit        string
	Value       float64
	Data        map[string]any
}

// Solution is the in-memory output of a strategy run: an unordered list of
// proposed actions plus the efficacy indicators measured over the snapshot.
// An empty Actions list is valid and means "no improvement found".
type Solution struct {
	Actions        []SolutionAction
	Efficacy       []EfficacyValue
	GlobalEfficacy map[string]any
}

// AddAction appends a proposed action, folding the resource id into the
// input parameters so the persisted form is self-contained.
func (s *Solution) AddAction(actionType, resourceID string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	if resourceID != "" {
		params["resource_id"] = resourceID
	}
	s.Actions = append(s.Actions, SolutionAction{
		ActionType:      actionType,
		ResourceID:      resourceID,
		InputParameters: params,
	})
}
