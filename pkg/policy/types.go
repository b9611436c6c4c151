package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the operation.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Operation is the operation the violation applies to.
	Operation string `json:"operation,omitempty"`
}

// Result represents the result of evaluating an operation against all
// enabled policies.
type Result struct {
	// Allowed indicates if the operation may proceed. Only error and
	// critical violations block.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation occurred.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Denial returns the first blocking violation message, or an empty string
// if the operation was allowed.
func (r *Result) Denial() string {
	for i := range r.Violations {
		if r.Violations[i].Severity == SeverityError || r.Violations[i].Severity == SeverityCritical {
			return r.Violations[i].Message
		}
	}
	return ""
}

// DeniedBy returns the name of the first blocking policy, or an empty
// string if the operation was allowed.
func (r *Result) DeniedBy() string {
	for i := range r.Violations {
		if r.Violations[i].Severity == SeverityError || r.Violations[i].Severity == SeverityCritical {
			return r.Violations[i].Policy
		}
	}
	return ""
}

// Input is the document policies evaluate against.
type Input struct {
	// Operation names the guarded operation, e.g. "system.update".
	Operation string `json:"operation"`

	// Environment is the platform environment, e.g. "production".
	Environment string `json:"environment"`

	// AppID is the target application for app-scoped operations.
	AppID string `json:"app_id,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}
