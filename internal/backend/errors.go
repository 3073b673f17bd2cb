package backend

import "fmt"

// UpstreamError is returned when the completion endpoint answers with a
// non-success status. Body holds the raw response text.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.StatusCode, e.Body)
}

// NetworkError is returned when the request never produced a response.
// Its message stays generic; the transport error is available via Unwrap.
type NetworkError struct {
	Host string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("Network Error: failed to reach %s", e.Host)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
