package protocol

import "context"

// StartRequest asks for a fresh run of the document pipeline.
type StartRequest struct {
	DocumentURL string         `json:"document_url"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// IntakeCallback starts a run for an externally sourced request.
type IntakeCallback func(ctx context.Context, req StartRequest) error

// Intake is a source of run-start requests, such as a queue consumer or a
// cron schedule.
type Intake interface {
	Start(ctx context.Context, callback IntakeCallback) error
	Stop(ctx context.Context) error
	Validate(ctx context.Context) error
}
