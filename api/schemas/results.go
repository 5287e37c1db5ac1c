package schemas

import "time"

// Strategy names the resolver that produced a result.
type Strategy string

const (
	StrategyNone            Strategy = "none"
	StrategyAccessibleLabel Strategy = "accessible_label"
	StrategyGroupRow        Strategy = "group_row"
	StrategyNearestLabel    Strategy = "nearest_label"
	StrategySelectorProbe   Strategy = "selector_probe"
	StrategyPositionalScan  Strategy = "positional_scan"
	StrategyDocumentWrite   Strategy = "document_write"
	StrategyKindSelect      Strategy = "kind_select"
	StrategySelectScan      Strategy = "select_scan"
	StrategyOptionMatch     Strategy = "option_match"
	StrategyToggle          Strategy = "toggle"
	StrategyNotRequired     Strategy = "not_required"
)

// ResolutionResult is the only thing the orchestrator sees of a resolver run.
type ResolutionResult struct {
	Matched  bool               `json:"matched"`
	Strategy Strategy           `json:"strategy"`
	Element  *ElementDescriptor `json:"element,omitempty"`
}

// NoMatch is the zero-information result.
func NoMatch() ResolutionResult {
	return ResolutionResult{Strategy: StrategyNone}
}

// Matched builds a positive result for the given strategy.
func Matched(strategy Strategy, desc *ElementDescriptor) ResolutionResult {
	return ResolutionResult{Matched: true, Strategy: strategy, Element: desc}
}

// ValidationReport records, per mandatory intent, whether a plausible value was observed.
type ValidationReport struct {
	Fields map[FieldIntent]bool `json:"fields"`
	Valid  bool                 `json:"valid"`
}

// Failing returns the intents that did not pass, in MandatoryIntents order.
func (r ValidationReport) Failing() []FieldIntent {
	var out []FieldIntent
	for _, intent := range MandatoryIntents {
		if ok, seen := r.Fields[intent]; seen && !ok {
			out = append(out, intent)
		}
	}
	return out
}

// FormState is a state of the per-form resolution machine.
type FormState string

const (
	StateResolving     FormState = "resolving"
	StateValidating    FormState = "validating"
	StateRepairing     FormState = "repairing"
	StateDone          FormState = "done"
	StateUnrecoverable FormState = "unrecoverable"
)

// FormOutcome is what the orchestrator hands back to its caller.
type FormOutcome struct {
	State    FormState                        `json:"state"`
	Results  map[FieldIntent]ResolutionResult `json:"results"`
	Report   ValidationReport                 `json:"report"`
	Repaired []FieldIntent                    `json:"repaired,omitempty"`
	Failed   []FieldIntent                    `json:"failed,omitempty"`
}

// AnomalyOutcome is the tri-state result of waiting out a challenge page.
type AnomalyOutcome string

const (
	AnomalyCleared          AnomalyOutcome = "cleared"
	AnomalyStillPresent     AnomalyOutcome = "still_present"
	AnomalyDeadlineExceeded AnomalyOutcome = "deadline_exceeded"
)

// AccountResult is one line of a run report.
type AccountResult struct {
	RunID      string         `json:"run_id"`
	SessionID  string         `json:"session_id"`
	Email      string         `json:"email"`
	Country    string         `json:"country"`
	Anomaly    AnomalyOutcome `json:"anomaly,omitempty"`
	Outcome    *FormOutcome   `json:"outcome,omitempty"`
	Submitted  bool           `json:"submitted"`
	FormErrors bool           `json:"form_errors"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}

// Account statuses, as counted in metrics and reports.
const (
	StatusDone          = "done"
	StatusUnrecoverable = "unrecoverable"
	StatusFormErrors    = "form_errors"
	StatusError         = "error"
)

// Status summarizes how the account ended.
func (r AccountResult) Status() string {
	switch {
	case r.Error != "":
		return StatusError
	case r.FormErrors:
		return StatusFormErrors
	case r.Outcome != nil && r.Outcome.State == StateUnrecoverable:
		return StatusUnrecoverable
	default:
		return StatusDone
	}
}
