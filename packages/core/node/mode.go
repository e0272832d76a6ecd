package node

import "strings"

// Mode holds the per-node flags that control traversal. It is fixed at construction.
type Mode struct {
	// BypassBeforeWhenBypass skips the before-hooks entirely when the node is bypassed.
	BypassBeforeWhenBypass bool `json:"bypassBeforeWhenBypass,omitempty" yaml:"bypassBeforeWhenBypass,omitempty"`
	// BypassAfterWhenBypass skips the after-hooks entirely when the node is bypassed.
	BypassAfterWhenBypass bool `json:"bypassAfterWhenBypass,omitempty" yaml:"bypassAfterWhenBypass,omitempty"`
	// BypassChildrenAfterIterationError skips the remaining children once one has failed.
	BypassChildrenAfterIterationError bool `json:"bypassChildrenAfterIterationError,omitempty" yaml:"bypassChildrenAfterIterationError,omitempty"`
	// DryBeforesOnDry runs the before-hooks dry, instead of skipping them, when the node is dry.
	DryBeforesOnDry bool `json:"dryBeforesOnDry,omitempty" yaml:"dryBeforesOnDry,omitempty"`
	// DryAftersOnDry runs the after-hooks dry, instead of skipping them, when the node is dry.
	DryAftersOnDry bool `json:"dryAftersOnDry,omitempty" yaml:"dryAftersOnDry,omitempty"`
	// SwitchToDryForChild forces every direct child, target included, to execute dry.
	SwitchToDryForChild bool `json:"switchToDryForChild,omitempty" yaml:"switchToDryForChild,omitempty"`
	// DryTargetsOnDry invokes the target dry, instead of skipping it, when the node is dry.
	DryTargetsOnDry bool `json:"dryTargetsOnDry,omitempty" yaml:"dryTargetsOnDry,omitempty"`
}

var (
	// SuiteMode is the mode of a classic test suite.
	SuiteMode = Mode{
		BypassBeforeWhenBypass:            true,
		BypassAfterWhenBypass:             true,
		BypassChildrenAfterIterationError: true,
	}

	// TestCaseMode is the mode of a classic test case.
	TestCaseMode = SuiteMode

	// BDDTestMode is the mode of a scenario-style test: hooks follow the test into dry
	// mode and the steps after a failing one are skipped.
	BDDTestMode = Mode{
		BypassChildrenAfterIterationError: true,
		DryBeforesOnDry:                   true,
		DryAftersOnDry:                    true,
	}

	// DryRunMode forces every child dry while keeping hooks and targets in dry runs.
	DryRunMode = Mode{
		DryBeforesOnDry:     true,
		DryAftersOnDry:      true,
		SwitchToDryForChild: true,
		DryTargetsOnDry:     true,
	}

	// StepContainerMode wraps a single step target with its step hooks.
	StepContainerMode = Mode{
		DryBeforesOnDry: true,
		DryAftersOnDry:  true,
		DryTargetsOnDry: true,
	}
)

// Union returns a mode with every flag set in either m or other.
func (m Mode) Union(other Mode) Mode {
	return Mode{
		BypassBeforeWhenBypass:            m.BypassBeforeWhenBypass || other.BypassBeforeWhenBypass,
		BypassAfterWhenBypass:             m.BypassAfterWhenBypass || other.BypassAfterWhenBypass,
		BypassChildrenAfterIterationError: m.BypassChildrenAfterIterationError || other.BypassChildrenAfterIterationError,
		DryBeforesOnDry:                   m.DryBeforesOnDry || other.DryBeforesOnDry,
		DryAftersOnDry:                    m.DryAftersOnDry || other.DryAftersOnDry,
		SwitchToDryForChild:               m.SwitchToDryForChild || other.SwitchToDryForChild,
		DryTargetsOnDry:                   m.DryTargetsOnDry || other.DryTargetsOnDry,
	}
}

// String lists the set flags, for logs and reports.
func (m Mode) String() string {
	var flags []string
	if m.BypassBeforeWhenBypass {
		flags = append(flags, "BYPASS_BEFORE_WHEN_BYPASS")
	}
	if m.BypassAfterWhenBypass {
		flags = append(flags, "BYPASS_AFTER_WHEN_BYPASS")
	}
	if m.BypassChildrenAfterIterationError {
		flags = append(flags, "BYPASS_CHILDREN_AFTER_ITERATION_ERROR")
	}
	if m.DryBeforesOnDry {
		flags = append(flags, "DRY_BEFORES_ON_DRY")
	}
	if m.DryAftersOnDry {
		flags = append(flags, "DRY_AFTERS_ON_DRY")
	}
	if m.SwitchToDryForChild {
		flags = append(flags, "SWITCH_TO_DRY_FOR_CHILD")
	}
	if m.DryTargetsOnDry {
		flags = append(flags, "DRY_TARGETS_ON_DRY")
	}
	if len(flags) == 0 {
		return "NONE"
	}
	return strings.Join(flags, "|")
}
