// Package workflow defines the step template a run is instantiated from.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/runner"
)

// StepKind selects how the driver executes a step.
type StepKind string

const (
	// StepKindWork runs a configured unit of work under the runner's step
	// primitive.
	StepKindWork StepKind = "work"

	// StepKindApproval blocks the run until an external approval event
	// arrives.
	StepKindApproval StepKind = "approval"

	// StepKindSleep suspends the run for a fixed duration.
	StepKindSleep StepKind = "sleep"
)

// StepSpec describes one ordered step of the template.
type StepSpec struct {
	Name        string
	Kind        StepKind
	Work        string // step-work factory id, StepKindWork only
	Config      map[string]any
	Retries     *runner.RetryPolicy
	Timeout     time.Duration
	Sleep       time.Duration // StepKindSleep only
	WaitTimeout time.Duration // StepKindApproval only
}

// Template is the fixed, ordered step list every run is created from. Step
// positions become the stable step indexes of the stored run.
type Template struct {
	Name  string
	Steps []StepSpec
}

// StepNames returns the ordered names used to seed a run's step rows.
func (t *Template) StepNames() []string {
	names := make([]string, 0, len(t.Steps))
	for _, step := range t.Steps {
		names = append(names, step.Name)
	}

	return names
}

// Validate fails fast on structural problems and on work configs that their
// factory schemas reject. Called once at startup, before any run starts.
func (t *Template) Validate(reg *registry.Registry) error {
	if t.Name == "" {
		return errors.New("template name is required")
	}

	if len(t.Steps) == 0 {
		return errors.New("template must have at least one step")
	}

	seen := make(map[string]bool, len(t.Steps))

	for i, step := range t.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}

		if seen[step.Name] {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}

		seen[step.Name] = true

		switch step.Kind {
		case StepKindWork:
			err := reg.ValidateStepWork(step.Work, step.Config)
			if err != nil {
				return fmt.Errorf("step %q: %w", step.Name, err)
			}
		case StepKindApproval:
			if step.WaitTimeout <= 0 {
				return fmt.Errorf("step %q: approval steps need a wait timeout", step.Name)
			}
		case StepKindSleep:
			if step.Sleep <= 0 {
				return fmt.Errorf("step %q: sleep steps need a positive duration", step.Name)
			}
		default:
			return fmt.Errorf("step %q has unknown kind %q", step.Name, step.Kind)
		}
	}

	return nil
}

// ReportConfig parameterizes the canonical document-report pipeline.
type ReportConfig struct {
	InferenceEndpoint string
	InferenceModel    string
	DeliveryURL       string
	DeliveryHeaders   map[string]any
	ArchiveDir        string
	ApprovalTimeout   time.Duration
	CoolDown          time.Duration
}

// ReportPipeline is the six-step demo template: fetch the document, analyze
// it, gate on human approval, deliver the summary, cool down, and archive
// the report with in-step retries.
func ReportPipeline(cfg ReportConfig) *Template {
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 15 * time.Minute
	}

	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 5 * time.Second
	}

	analyzeConfig := map[string]any{"endpoint": cfg.InferenceEndpoint}
	if cfg.InferenceModel != "" {
		analyzeConfig["model"] = cfg.InferenceModel
	}

	deliverConfig := map[string]any{"url": cfg.DeliveryURL}
	if len(cfg.DeliveryHeaders) > 0 {
		deliverConfig["headers"] = cfg.DeliveryHeaders
	}

	archiveConfig := map[string]any{}
	if cfg.ArchiveDir != "" {
		archiveConfig["directory"] = cfg.ArchiveDir
	}

	return &Template{
		Name: "document-report",
		Steps: []StepSpec{
			{
				Name:    "fetch-document",
				Kind:    StepKindWork,
				Work:    "fetch",
				Config:  map[string]any{},
				Timeout: time.Minute,
			},
			{
				Name:    "analyze-document",
				Kind:    StepKindWork,
				Work:    "analyze",
				Config:  analyzeConfig,
				Timeout: 2 * time.Minute,
			},
			{
				Name:        "approval",
				Kind:        StepKindApproval,
				WaitTimeout: cfg.ApprovalTimeout,
			},
			{
				Name:    "deliver-summary",
				Kind:    StepKindWork,
				Work:    "deliver",
				Config:  deliverConfig,
				Timeout: time.Minute,
			},
			{
				Name:  "cool-down",
				Kind:  StepKindSleep,
				Sleep: cfg.CoolDown,
			},
			{
				Name:   "archive-report",
				Kind:   StepKindWork,
				Work:   "archive",
				Config: archiveConfig,
				Retries: &runner.RetryPolicy{
					Limit:   4,
					Delay:   2 * time.Second,
					Backoff: 2,
				},
				Timeout: 30 * time.Second,
			},
		},
	}
}
