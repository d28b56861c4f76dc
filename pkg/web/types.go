// Package web provides the HTTP surface of the dashboard: the run API and
// the live event stream.
package web

// CreateWorkflowRequest represents the request body for starting a new run.
type CreateWorkflowRequest struct {
	DocumentURL string         `json:"document_url"       validate:"required,url"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Params flattens the request into the opaque run input fed to the first
// step.
func (r *CreateWorkflowRequest) Params() map[string]any {
	params := map[string]any{"document_url": r.DocumentURL}
	if len(r.Metadata) > 0 {
		params["metadata"] = r.Metadata
	}

	return params
}

// ContinueWorkflowRequest represents the optional body of an approval. The
// payload is handed to the waiting step verbatim.
type ContinueWorkflowRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}
