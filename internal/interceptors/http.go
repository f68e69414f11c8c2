// Package interceptors tags outbound tool traffic with the workflow that
// caused it, so external API logs can be correlated with a run.
package interceptors

import (
	"net/http"

	"go.temporal.io/sdk/activity"
)

type workflowRoundTripper struct {
	base http.RoundTripper
}

// NewWorkflowRoundTripper wraps base so requests issued from inside an
// activity carry X-Workflow-ID and X-Run-ID headers.
func NewWorkflowRoundTripper(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &workflowRoundTripper{base: base}
}

func (w *workflowRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// activity.GetInfo panics outside an activity context. Tool clients are
	// also used directly in tests, so swallow that case.
	func() {
		defer func() { _ = recover() }()
		info := activity.GetInfo(req.Context())
		if info.WorkflowExecution.ID != "" {
			req.Header.Set("X-Workflow-ID", info.WorkflowExecution.ID)
			req.Header.Set("X-Run-ID", info.WorkflowExecution.RunID)
		}
	}()
	return w.base.RoundTrip(req)
}
