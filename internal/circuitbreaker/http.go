package circuitbreaker

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPWrapper runs an http.Client through a circuit breaker. 5xx responses
// count as breaker failures; 4xx do not, since they indicate a caller
// problem rather than a sick dependency.
type HTTPWrapper struct {
	client *http.Client
	cb     *Breaker
}

func NewHTTPWrapper(client *http.Client, name string, logger *zap.Logger) *HTTPWrapper {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPWrapper{
		client: client,
		cb:     New(name, DefaultConfig(), logger),
	}
}

// Do executes the request. When the breaker trips on a 5xx the response is
// still returned to the caller so status-based error classification works.
func (w *HTTPWrapper) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := w.cb.Execute(req.Context(), func() error {
		var doErr error
		resp, doErr = w.client.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= 500 {
			return &statusError{code: resp.StatusCode}
		}
		return nil
	})

	if _, ok := err.(*statusError); ok {
		return resp, nil
	}
	return resp, err
}

// State exposes the breaker state for health reporting.
func (w *HTTPWrapper) State() State { return w.cb.State() }

type statusError struct{ code int }

func (e *statusError) Error() string { return http.StatusText(e.code) }
