package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEngine(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if eng == nil {
		t.Fatal("Engine is nil")
	}

	// Check that built-in policies are loaded
	policies := eng.ListPolicies()
	if len(policies) == 0 {
		t.Fatal("No built-in policies loaded")
	}

	expectedPolicies := []string{
		"environment-guard",
		"restart-lock",
	}

	for _, expected := range expectedPolicies {
		found := false
		for _, p := range policies {
			if p.Name == expected {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Expected built-in policy not found: %s", expected)
		}
	}
}

func TestEvaluateOperation_EnvironmentGuard(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	tests := []struct {
		name            string
		input           *Input
		expectAllowed   bool
		expectViolation bool
	}{
		{
			name: "system update in production",
			input: &Input{
				Operation:   "system.update",
				Environment: "production",
			},
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name: "system update in development",
			input: &Input{
				Operation:   "system.update",
				Environment: "development",
			},
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name: "system restart in staging",
			input: &Input{
				Operation:   "system.restart",
				Environment: "staging",
			},
			expectAllowed:   false,
			expectViolation: true,
		},
		{
			name: "system restart in production",
			input: &Input{
				Operation:   "system.restart",
				Environment: "production",
			},
			expectAllowed:   true,
			expectViolation: false,
		},
		{
			name: "app install in development",
			input: &Input{
				Operation:   "app.install",
				Environment: "development",
				AppID:       "nextcloud",
			},
			expectAllowed:   true,
			expectViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.EvaluateOperation(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}

			if result.Allowed != tt.expectAllowed {
				t.Errorf("Expected allowed=%v, got %v. Violations: %+v",
					tt.expectAllowed, result.Allowed, result.Violations)
			}

			hasViolation := len(result.Violations) > 0
			if hasViolation != tt.expectViolation {
				t.Errorf("Expected violation=%v, got %v violations: %+v",
					tt.expectViolation, hasViolation, result.Violations)
			}
		})
	}
}

func TestResultDenial(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	denied, err := eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "system.update",
		Environment: "development",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if denied.Denial() == "" {
		t.Error("Expected a denial message for a blocked operation")
	}

	allowed, err := eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "system.update",
		Environment: "production",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if allowed.Denial() != "" {
		t.Errorf("Expected no denial message, got %q", allowed.Denial())
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policyName := "environment-guard"

	// Disable the policy
	err = eng.DisablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}

	p, err := eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if p.Enabled {
		t.Error("Policy should be disabled")
	}

	// Evaluate - should pass because the guard is disabled
	result, err := eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "system.update",
		Environment: "development",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	for _, v := range result.Violations {
		if v.Policy == policyName {
			t.Error("Disabled policy should not generate violations")
		}
	}
	if !result.Allowed {
		t.Error("Operation should be allowed with the guard disabled")
	}

	// Re-enable the policy
	err = eng.EnablePolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	p, err = eng.GetPolicy(policyName)
	if err != nil {
		t.Fatalf("Failed to get policy: %v", err)
	}

	if !p.Enabled {
		t.Error("Policy should be enabled")
	}

	result, err = eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "system.update",
		Environment: "development",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Operation should be blocked with the guard enabled")
	}
}

func TestRestartLockPolicy(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	// Disabled by default, restarts in production pass
	result, err := eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "system.restart",
		Environment: "production",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected restart to be allowed, violations: %+v", result.Violations)
	}

	if err := eng.EnablePolicy("restart-lock"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}

	result, err = eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "system.restart",
		Environment: "production",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected restart to be blocked by restart-lock")
	}
}

func TestWarningSeverityDoesNotBlock(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	advisory := &Policy{
		Name:     "install-advisory",
		Severity: SeverityWarning,
		Enabled:  true,
		Rego: `package tipi.policies.advisory

import rego.v1

deny contains violation if {
	input.operation == "app.install"
	violation := {
		"message": "installs are monitored on this instance",
		"severity": "warning",
		"operation": input.operation,
	}
}
`,
	}

	if err := eng.compileAndStorePolicy(context.Background(), advisory); err != nil {
		t.Fatalf("Failed to compile policy: %v", err)
	}

	result, err := eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "app.install",
		Environment: "production",
		AppID:       "jellyfin",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Error("Warning-severity violations should not block the operation")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %d", len(result.Violations))
	}
	if result.Violations[0].Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", result.Violations[0].Severity)
	}
}

func TestLoadPoliciesFromDirectory(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	dir := t.TempDir()
	regoPath := filepath.Join(dir, "uninstall-lock.rego")
	rego := `package tipi.policies.uninstall_lock

import rego.v1

deny contains violation if {
	input.operation == "app.uninstall"
	violation := {
		"message": "uninstalls are locked on this instance",
		"severity": "error",
		"operation": input.operation,
	}
}
`
	if err := os.WriteFile(regoPath, []byte(rego), 0o644); err != nil {
		t.Fatalf("Failed to write policy file: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	if _, err := eng.GetPolicy("uninstall-lock"); err != nil {
		t.Fatalf("Loaded policy not found: %v", err)
	}

	result, err := eng.EvaluateOperation(context.Background(), &Input{
		Operation:   "app.uninstall",
		Environment: "production",
		AppID:       "nextcloud",
	})
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("Expected uninstall to be blocked by the loaded policy")
	}
}

func TestReloadPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	initialCount := len(eng.ListPolicies())

	// Load an extra policy, then reload back to builtins
	extra := &Policy{
		Name:     "extra",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package tipi.policies.extra

import rego.v1

deny contains msg if {
	input.operation == "never"
	msg := "unreachable"
}
`,
	}
	if err := eng.compileAndStorePolicy(context.Background(), extra); err != nil {
		t.Fatalf("Failed to compile policy: %v", err)
	}

	if len(eng.ListPolicies()) != initialCount+1 {
		t.Fatalf("Expected %d policies, got %d", initialCount+1, len(eng.ListPolicies()))
	}

	err = eng.ReloadPolicies(context.Background())
	if err != nil {
		t.Fatalf("Failed to reload policies: %v", err)
	}

	afterReloadCount := len(eng.ListPolicies())

	if initialCount != afterReloadCount {
		t.Errorf("Expected %d policies after reload, got %d", initialCount, afterReloadCount)
	}

	if _, err := eng.GetPolicy("extra"); err == nil {
		t.Error("Expected extra policy to be dropped by reload")
	}
}

func TestListPolicies(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	policies := eng.ListPolicies()

	if len(policies) == 0 {
		t.Fatal("No policies returned")
	}

	// Check that all policies have required fields
	for _, p := range policies {
		if p.Name == "" {
			t.Error("Policy has empty name")
		}
		if p.Rego == "" {
			t.Error("Policy has empty Rego code")
		}
		if p.CreatedAt.IsZero() {
			t.Error("Policy has zero CreatedAt")
		}
	}
}

func TestExtractPackageName(t *testing.T) {
	tests := []struct {
		name string
		rego string
		want string
	}{
		{
			name: "simple package",
			rego: "package tipi.policies.environment\n\nimport rego.v1\n",
			want: "tipi.policies.environment",
		},
		{
			name: "leading comment",
			rego: "# guard policy\npackage tipi.policies.guard\n",
			want: "tipi.policies.guard",
		},
		{
			name: "no package line",
			rego: "deny contains msg if { msg := \"x\" }",
			want: "tipi.policies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPackageName(tt.rego); got != tt.want {
				t.Errorf("extractPackageName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	eng, err := NewEngine(logger)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	if _, err := eng.GetPolicy("no-such-policy"); err == nil {
		t.Error("Expected error for unknown policy")
	}
	if err := eng.EnablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error enabling unknown policy")
	}
	if err := eng.DisablePolicy("no-such-policy"); err == nil {
		t.Error("Expected error disabling unknown policy")
	}
}
