// Package policy provides Rego-based guarding of lifecycle operations
// using Open Policy Agent (OPA).
//
// The policy engine sits in front of the system controller. Before a
// guarded operation such as a system update or restart runs, the
// controller submits an Input document describing the operation and the
// platform environment. Every enabled policy is evaluated against that
// document, and a single blocking violation rejects the operation
// before any state is written.
//
// # Architecture
//
// The engine compiles each policy once with rego.PrepareForEval and
// keeps the compiled form in memory. Evaluation queries the deny set of
// the policy's own package (data.<package>.deny), so policies are free
// to declare helpers and partial rules alongside their deny rules.
//
// Policies come from two sources:
//
//   - Built-in policies registered at construction time. They ship with
//     the platform and cover the stock guard rules.
//   - Operator policies loaded from .rego or .json files via the
//     Loader, typically from a policies directory under the data dir.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//		return err
//	}
//
//	result, err := engine.EvaluateOperation(ctx, &policy.Input{
//		Operation:   "system.update",
//		Environment: "development",
//	})
//	if err != nil {
//		return err
//	}
//	if !result.Allowed {
//		return errors.New(result.Denial())
//	}
//
// # Writing Policies
//
// A policy is a Rego module whose deny rule yields violation objects:
//
//	package tipi.policies.example
//
//	import rego.v1
//
//	deny contains violation if {
//		input.operation == "system.restart"
//		violation := {
//			"message": "restarts are not allowed here",
//			"severity": "error",
//			"operation": input.operation,
//		}
//	}
//
// The input document carries the operation name, the environment, the
// target app id for app-scoped operations, and a timestamp. A violation
// may be a plain string instead of an object, in which case the
// policy's default severity applies.
//
// # Severity Levels
//
// Violations carry one of four severities:
//
//   - info: informational, never blocks
//   - warning: surfaced to the operator, never blocks
//   - error: blocks the operation
//   - critical: blocks the operation
//
// # Hot Reload
//
// The Loader can watch policy paths with fsnotify and recompile on
// change, debounced to absorb editor write bursts. A policy that fails
// to compile is logged and skipped; the previously compiled version
// stays active until a good version replaces it.
package policy
