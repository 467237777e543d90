package llm

import "fmt"

// APIError is returned when a backend call fails or yields an unusable response.
type APIError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Body       string
	Cause      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// truncate bounds response bodies kept in errors.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
