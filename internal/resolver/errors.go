package resolver

import (
	"fmt"
)

const maxBodyInError = 512

type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ResolutionError reports a manifest that did not yield a usable download URL.
// Body holds the raw response for diagnosis.
type ResolutionError struct {
	URL    string
	Field  string
	Reason string
	Body   []byte
}

func (e *ResolutionError) Error() string {
	body := string(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	return fmt.Sprintf("could not resolve %q from %s: %s (response: %s)", e.Field, e.URL, e.Reason, body)
}
