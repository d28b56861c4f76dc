// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/flowboard/flowboard/pkg/runner"
	"github.com/flowboard/flowboard/pkg/workflow"
)

// CreateTestTemplate creates a two-step template (one unit of work followed
// by an approval gate) with defaults that can be overridden.
func CreateTestTemplate(overrides ...func(*workflow.Template)) *workflow.Template {
	template := &workflow.Template{
		Name: "test",
		Steps: []workflow.StepSpec{
			WorkStep("one", "noop"),
			ApprovalStep("gate", time.Minute),
		},
	}

	for _, override := range overrides {
		override(template)
	}

	return template
}

// WithName sets the template name.
func WithName(name string) func(*workflow.Template) {
	return func(t *workflow.Template) {
		t.Name = name
	}
}

// WithSteps replaces the template's step list.
func WithSteps(steps ...workflow.StepSpec) func(*workflow.Template) {
	return func(t *workflow.Template) {
		t.Steps = steps
	}
}

// WorkStep builds a work step bound to the given factory id.
func WorkStep(name, work string, overrides ...func(*workflow.StepSpec)) workflow.StepSpec {
	step := workflow.StepSpec{
		Name: name,
		Kind: workflow.StepKindWork,
		Work: work,
	}

	for _, override := range overrides {
		override(&step)
	}

	return step
}

// WithConfig sets the step's work config.
func WithConfig(config map[string]any) func(*workflow.StepSpec) {
	return func(s *workflow.StepSpec) {
		s.Config = config
	}
}

// WithRetries sets the step's retry policy.
func WithRetries(policy runner.RetryPolicy) func(*workflow.StepSpec) {
	return func(s *workflow.StepSpec) {
		s.Retries = &policy
	}
}

// ApprovalStep builds an approval gate with the given wait timeout.
func ApprovalStep(name string, timeout time.Duration) workflow.StepSpec {
	return workflow.StepSpec{
		Name:        name,
		Kind:        workflow.StepKindApproval,
		WaitTimeout: timeout,
	}
}

// SleepStep builds a fixed-duration sleep step.
func SleepStep(name string, d time.Duration) workflow.StepSpec {
	return workflow.StepSpec{
		Name:  name,
		Kind:  workflow.StepKindSleep,
		Sleep: d,
	}
}
