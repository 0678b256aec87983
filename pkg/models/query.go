package models

import "time"

// BackendKind identifies which generation backend served a call.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// BackendHint is the caller's routing preference for a request.
type BackendHint string

const (
	HintAuto   BackendHint = "auto"
	HintLocal  BackendHint = "local"
	HintRemote BackendHint = "remote"
)

// ParseBackendHint maps user input onto a hint. Empty input means auto.
func ParseBackendHint(s string) (BackendHint, bool) {
	switch BackendHint(s) {
	case "", HintAuto:
		return HintAuto, true
	case HintLocal:
		return HintLocal, true
	case HintRemote:
		return HintRemote, true
	default:
		return "", false
	}
}

// DraftQuery is a candidate statement produced by the synthesizer.
type DraftQuery struct {
	Text           string      `json:"text"`
	TargetTables   []string    `json:"target_tables"`
	BackendUsed    BackendKind `json:"backend_used"`
	RawModelOutput string      `json:"raw_model_output,omitempty"`
}

// ValidationStatus is the terminal outcome of a request.
type ValidationStatus string

const (
	StatusValid    ValidationStatus = "valid"
	StatusRepaired ValidationStatus = "repaired"
	StatusRejected ValidationStatus = "rejected"
)

// Severity of a validation issue. Errors block acceptance, warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// IssueCode is a machine-readable category for an Issue.
type IssueCode string

const (
	IssueSyntaxError          IssueCode = "syntax_error"
	IssueMultipleStatements   IssueCode = "multiple_statements"
	IssueUnknownTable         IssueCode = "unknown_table"
	IssueUnknownColumn        IssueCode = "unknown_column"
	IssueAmbiguousColumn      IssueCode = "ambiguous_column"
	IssueDestructiveOperation IssueCode = "destructive_operation"
	IssueSuspiciousLiteral    IssueCode = "suspicious_literal"
	IssueGroupingMismatch     IssueCode = "grouping_mismatch"

	// Pipeline-level failures surfaced as issues on a rejected result.
	IssueInvalidInput       IssueCode = "invalid_input"
	IssueSynthesisFailed    IssueCode = "synthesis_failed"
	IssueBackendUnavailable IssueCode = "backend_unavailable"
	IssueRequestCanceled    IssueCode = "request_canceled"
	IssueRetrievalSkipped   IssueCode = "retrieval_skipped"
	IssueSnapshotMissing    IssueCode = "snapshot_unavailable"
)

// Repairable reports whether a failure of this code may be sent back to the
// synthesizer for one repair attempt.
func (c IssueCode) Repairable() bool {
	switch c {
	case IssueUnknownTable, IssueUnknownColumn, IssueAmbiguousColumn, IssueGroupingMismatch:
		return true
	default:
		return false
	}
}

// Issue is one finding about a draft query or a failed request.
type Issue struct {
	Code       IssueCode `json:"code"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// RoutingPurpose names why a backend call was made.
type RoutingPurpose string

const (
	PurposeSynthesis   RoutingPurpose = "synthesis"
	PurposeStrictRetry RoutingPurpose = "strict_retry"
	PurposeRepair      RoutingPurpose = "repair"
)

// RoutingDecision records one backend attempt.
type RoutingDecision struct {
	Backend          BackendKind    `json:"backend"`
	Reason           string         `json:"reason"`
	Purpose          RoutingPurpose `json:"purpose"`
	Attempt          int            `json:"attempt"`
	Latency          time.Duration  `json:"latency"`
	EstimatedCostUSD float64        `json:"estimated_cost_usd"`
	Err              string         `json:"error,omitempty"`
}

// RequestState is a pipeline lifecycle state.
type RequestState string

const (
	StateReceived    RequestState = "received"
	StateExtracted   RequestState = "extracted"
	StateClassified  RequestState = "classified"
	StateRetrieved   RequestState = "retrieved"
	StateSynthesized RequestState = "synthesized"
	StateValidating  RequestState = "validating"
	StateRepaired    RequestState = "repaired"
	StateValid       RequestState = "valid"
	StateRejected    RequestState = "rejected"
)

// IsTerminal reports whether the request is finished.
func (s RequestState) IsTerminal() bool {
	return s == StateValid || s == StateRejected
}

// CanTransitionTo reports whether the lifecycle allows moving to target.
// Any non-terminal state may move to rejected.
func (s RequestState) CanTransitionTo(target RequestState) bool {
	if target == StateRejected {
		return !s.IsTerminal()
	}
	switch s {
	case StateReceived:
		return target == StateExtracted
	case StateExtracted:
		return target == StateClassified
	case StateClassified:
		return target == StateRetrieved
	case StateRetrieved:
		return target == StateSynthesized
	case StateSynthesized:
		return target == StateValidating
	case StateValidating:
		return target == StateValid || target == StateRepaired
	case StateRepaired:
		return target == StateValidating
	default:
		return false
	}
}

// Diagnostics describes how a result was produced.
type Diagnostics struct {
	RequestID        string                   `json:"request_id"`
	SnapshotVersion  string                   `json:"snapshot_version"`
	Question         string                   `json:"question"`
	Intent           Intent                   `json:"intent"`
	Complexity       string                   `json:"complexity,omitempty"`
	Entities         []Entity                 `json:"entities"`
	ContextHits      RetrievedContext         `json:"context_hits"`
	Draft            *DraftQuery              `json:"draft,omitempty"`
	Routing          []RoutingDecision        `json:"routing"`
	States           []RequestState           `json:"states"`
	RepairAttempted  bool                     `json:"repair_attempted"`
	EstimatedCostUSD float64                  `json:"estimated_cost_usd"`
	Timings          map[string]time.Duration `json:"timings"`
}

// ValidationResult is the pipeline's output. FinalQuery is set only when
// Status is valid or repaired.
type ValidationResult struct {
	Status      ValidationStatus `json:"status"`
	FinalQuery  string           `json:"final_query,omitempty"`
	Confidence  float64          `json:"confidence"`
	Issues      []Issue          `json:"issues"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// Accepted reports whether the result carries a usable query.
func (r ValidationResult) Accepted() bool {
	return r.Status == StatusValid || r.Status == StatusRepaired
}

// HasIssue reports whether any issue carries the given code.
func (r ValidationResult) HasIssue(code IssueCode) bool {
	for _, is := range r.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}
