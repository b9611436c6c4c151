package policy

import (
	"time"
)

// GetBuiltinPolicies returns the built-in policies that ship with the
// platform. Builtins cover the stock guard rules; operators layer
// their own policies on top via the loader.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		environmentGuardPolicy(),
		restartLockPolicy(),
	}
}

// environmentGuardPolicy restricts system-wide operations to production
// environments. Demo and staging installs reject them so a shared
// instance cannot be updated or restarted from the dashboard.
func environmentGuardPolicy() Policy {
	return Policy{
		Name:        "environment-guard",
		Description: "Restricts system update and restart to production environments",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"builtin", "environment"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tipi.policies.environment

import rego.v1

restricted := {"system.update", "system.restart"}

deny contains violation if {
	input.operation in restricted
	input.environment != "production"
	violation := {
		"message": sprintf("%s is not allowed in the %s environment", [input.operation, input.environment]),
		"severity": "error",
		"operation": input.operation,
	}
}
`,
	}
}

// restartLockPolicy denies system restarts outright. Disabled by
// default, intended for kiosk-style installs where the process is
// supervised externally.
func restartLockPolicy() Policy {
	return Policy{
		Name:        "restart-lock",
		Description: "Denies system restart requests regardless of environment",
		Severity:    SeverityError,
		Enabled:     false,
		Tags:        []string{"builtin", "restart"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package tipi.policies.restart_lock

import rego.v1

deny contains violation if {
	input.operation == "system.restart"
	violation := {
		"message": "system restart is locked on this instance",
		"severity": "error",
		"operation": input.operation,
	}
}
`,
	}
}
